// Package config provides the configuration schema, loader, and provider
// registry for the natuvoice kiosk backend.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then well-known environment variables. The result is read-only once the
// process has started.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool { return f == LogFormatText || f == LogFormatJSON }

// Mode selects which engine family serves a stage.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool { return m == ModeLocal || m == ModeCloud }

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	STT       STTConfig       `yaml:"stt"`
	TTS       TTSConfig       `yaml:"tts"`
	Answer    AnswerConfig    `yaml:"answer"`
	Kiosk     KioskConfig     `yaml:"kiosk"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// TurnTimeoutSec bounds a whole voice turn. Zero disables the limit.
	TurnTimeoutSec int `yaml:"turn_timeout_sec"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

// AudioConfig controls input normalization.
type AudioConfig struct {
	// SampleRate is the canonical PCM rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FFmpegBin is the decoder executable used for non-WAVE uploads.
	FFmpegBin string `yaml:"ffmpeg_bin"`

	// TempDir holds decoder scratch files. Empty means the OS default.
	TempDir string `yaml:"temp_dir"`

	// MaxUploadBytes caps the accepted request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// VADConfig controls silence trimming before transcription.
type VADConfig struct {
	Enabled        *bool `yaml:"enabled"`
	Aggressiveness *int  `yaml:"aggressiveness"`
	FrameMs        int   `yaml:"frame_ms"`
	EndSilenceMs   int   `yaml:"end_silence_ms"`

	// Engine selects the registered VAD engine. Default: "energy".
	Engine string `yaml:"engine"`
}

// IsEnabled reports whether trimming is on. Unset means enabled.
func (v VADConfig) IsEnabled() bool { return v.Enabled == nil || *v.Enabled }

// Level returns the configured aggressiveness, or [DefaultAggressiveness].
func (v VADConfig) Level() int {
	if v.Aggressiveness == nil {
		return DefaultAggressiveness
	}
	return *v.Aggressiveness
}

// STTConfig selects the transcription engines.
type STTConfig struct {
	Mode  Mode          `yaml:"mode"`
	Cloud ProviderEntry `yaml:"cloud"`
	Local ProviderEntry `yaml:"local"`

	// Breaker guards the cloud engine.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around a cloud engine.
type BreakerConfig struct {
	MaxFailures     int `yaml:"max_failures"`
	ResetTimeoutSec int `yaml:"reset_timeout_sec"`
}

// TTSConfig selects the synthesis engine.
type TTSConfig struct {
	Mode  Mode          `yaml:"mode"`
	Cloud ProviderEntry `yaml:"cloud"`
	Local ProviderEntry `yaml:"local"`

	// Voice is the initial voice identifier.
	Voice string `yaml:"voice"`

	// ChunkChars is the per-call character budget.
	ChunkChars int `yaml:"chunk_chars"`
}

// Active returns the entry selected by Mode.
func (t TTSConfig) Active() ProviderEntry {
	if t.Mode == ModeCloud {
		return t.Cloud
	}
	return t.Local
}

// AnswerConfig configures the retrieval-augmented answerer.
type AnswerConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`

	// BotName is the persona name used in prompts and the public config.
	BotName string `yaml:"bot_name"`

	// EmptyReply is returned without any model call for blank input.
	EmptyReply string `yaml:"empty_reply"`

	// WelcomeMessage and OfflineMessage are shown by the kiosk frontend.
	WelcomeMessage        string `yaml:"welcome_message"`
	WelcomeMessageVersion string `yaml:"welcome_message_version"`
	OfflineMessage        string `yaml:"offline_message"`

	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`

	// MaxMessageChars caps the length of a chat message.
	MaxMessageChars int `yaml:"max_message_chars"`

	TermsVersion string `yaml:"terms_version"`
	TermsFile    string `yaml:"terms_file"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// KioskConfig controls device authentication.
type KioskConfig struct {
	RequireAuth  *bool  `yaml:"require_auth"`
	RegistryFile string `yaml:"registry_file"`
}

// AuthRequired reports whether kiosk credentials are enforced. Unset means
// required.
func (k KioskConfig) AuthRequired() bool { return k.RequireAuth == nil || *k.RequireAuth }

// RateLimitConfig bounds requests per device.
type RateLimitConfig struct {
	// RPM is the number of requests allowed per window. Zero disables limiting.
	RPM       int `yaml:"rpm"`
	WindowSec int `yaml:"window_sec"`
}

// DatabaseConfig points to the knowledge base.
type DatabaseConfig struct {
	// URL is a PostgreSQL connection string. Empty disables retrieval.
	URL string `yaml:"url"`

	// Table holds the embedded knowledge chunks.
	Table string `yaml:"table"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider. For whisper-native it is
	// the path to the GGML model file.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or "".
func (e ProviderEntry) Option(key string) string {
	if e.Options == nil {
		return ""
	}
	s, _ := e.Options[key].(string)
	return s
}
