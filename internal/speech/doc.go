// Package speech holds the stages of a voice turn that sit between raw
// audio and the answer text: trimming silence around an utterance, routing
// it to a transcription engine with fallback, and turning the answer back
// into a single WAVE file through a chunked TTS engine.
//
// All types are safe for concurrent use once constructed. The only mutable
// shared state is the active voice of a [Synthesizer], which is guarded by
// a mutex.
package speech
