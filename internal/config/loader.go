package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt-cloud":  {"deepgram", "openai"},
	"stt-local":  {"whisper", "whisper-native"},
	"tts-cloud":  {"elevenlabs"},
	"tts-local":  {"coqui"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
	"vad":        {"energy"},
}

// Load builds a [Config] from defaults, the YAML file at path and the
// process environment, in that order, and validates it. An empty path skips
// the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Env lists the environment variables understood by [ApplyEnv]. Nil
// pointers mean the variable is unset and the file value stays.
type Env struct {
	ListenAddr *string `env:"LISTEN_ADDR"`
	LogLevel   *string `env:"LOG_LEVEL"`

	SampleRate *int    `env:"AUDIO_SAMPLE_RATE"`
	FFmpegBin  *string `env:"FFMPEG_BIN"`

	VADEnabled        *bool `env:"VAD_ENABLED"`
	VADAggressiveness *int  `env:"VAD_AGGRESSIVENESS"`
	VADFrameMs        *int  `env:"VAD_FRAME_MS"`
	VADEndSilenceMs   *int  `env:"VAD_END_SILENCE_MS"`

	STTMode          *string `env:"STT_MODE"`
	STTProviderCloud *string `env:"STT_PROVIDER_CLOUD"`
	STTProviderLocal *string `env:"STT_PROVIDER_LOCAL"`
	WhisperModelPath *string `env:"WHISPER_MODEL_PATH"`

	TTSMode       *string `env:"TTS_MODE"`
	TTSVoice      *string `env:"TTS_VOICE"`
	TTSChunkChars *int    `env:"TTS_CHUNK_CHARS"`

	RateLimitRPM       *int `env:"RATE_LIMIT_RPM"`
	RateLimitWindowSec *int `env:"RATE_LIMIT_WINDOW_SEC"`

	RequireKioskAuth  *bool   `env:"REQUIRE_KIOSK_AUTH"`
	KioskRegistryFile *string `env:"KIOSK_REGISTRY_FILE"`

	BotName         *string `env:"BOT_NAME"`
	TermsVersion    *string `env:"TERMS_VERSION"`
	TermsFile       *string `env:"TERMS_FILE"`
	MaxMessageChars *int    `env:"MAX_MESSAGE_CHARS"`
	DefaultTopK     *int    `env:"DEFAULT_TOP_K"`
	MaxTopK         *int    `env:"MAX_TOP_K"`

	DatabaseURL *string `env:"DATABASE_URL"`

	DeepgramAPIKey   string `env:"DEEPGRAM_API_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
}

// ApplyEnv overlays the process environment onto cfg. Credentials only fill
// provider entries of the matching provider that have no key yet.
func ApplyEnv(cfg *Config) error {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	e.apply(cfg)
	return nil
}

func (e Env) apply(cfg *Config) {
	set(&cfg.Server.ListenAddr, e.ListenAddr)
	if e.LogLevel != nil {
		cfg.Server.LogLevel = LogLevel(*e.LogLevel)
	}

	set(&cfg.Audio.SampleRate, e.SampleRate)
	set(&cfg.Audio.FFmpegBin, e.FFmpegBin)

	if e.VADEnabled != nil {
		cfg.VAD.Enabled = e.VADEnabled
	}
	if e.VADAggressiveness != nil {
		cfg.VAD.Aggressiveness = e.VADAggressiveness
	}
	set(&cfg.VAD.FrameMs, e.VADFrameMs)
	set(&cfg.VAD.EndSilenceMs, e.VADEndSilenceMs)

	if e.STTMode != nil {
		cfg.STT.Mode = Mode(*e.STTMode)
	}
	set(&cfg.STT.Cloud.Name, e.STTProviderCloud)
	set(&cfg.STT.Local.Name, e.STTProviderLocal)
	if e.WhisperModelPath != nil && cfg.STT.Local.Name == "whisper-native" {
		cfg.STT.Local.Model = *e.WhisperModelPath
	}

	if e.TTSMode != nil {
		cfg.TTS.Mode = Mode(*e.TTSMode)
	}
	set(&cfg.TTS.Voice, e.TTSVoice)
	set(&cfg.TTS.ChunkChars, e.TTSChunkChars)

	set(&cfg.RateLimit.RPM, e.RateLimitRPM)
	set(&cfg.RateLimit.WindowSec, e.RateLimitWindowSec)

	if e.RequireKioskAuth != nil {
		cfg.Kiosk.RequireAuth = e.RequireKioskAuth
	}
	set(&cfg.Kiosk.RegistryFile, e.KioskRegistryFile)

	set(&cfg.Answer.BotName, e.BotName)
	set(&cfg.Answer.TermsVersion, e.TermsVersion)
	set(&cfg.Answer.TermsFile, e.TermsFile)
	set(&cfg.Answer.MaxMessageChars, e.MaxMessageChars)
	set(&cfg.Answer.DefaultTopK, e.DefaultTopK)
	set(&cfg.Answer.MaxTopK, e.MaxTopK)

	set(&cfg.Database.URL, e.DatabaseURL)

	keys := map[string]string{
		"deepgram":   e.DeepgramAPIKey,
		"openai":     e.OpenAIAPIKey,
		"elevenlabs": e.ElevenLabsAPIKey,
	}
	for _, entry := range []*ProviderEntry{
		&cfg.STT.Cloud, &cfg.TTS.Cloud, &cfg.Answer.LLM, &cfg.Answer.Embeddings,
	} {
		if k := keys[entry.Name]; k != "" && entry.APIKey == "" {
			entry.APIKey = k
		}
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Defaults for a kiosk deployment.
const (
	DefaultListenAddr      = ":8080"
	DefaultSampleRate      = 16000
	DefaultFFmpegBin       = "ffmpeg"
	DefaultMaxUploadBytes  = 20 << 20
	DefaultAggressiveness  = 2
	DefaultFrameMs         = 30
	DefaultEndSilenceMs    = 800
	DefaultChunkChars      = 700
	DefaultRateLimitRPM    = 30
	DefaultRateLimitWindow = 60
	DefaultRegistryFile    = "kiosks.json"
	DefaultBotName         = "NatuBot"
	DefaultMaxMessageChars = 4000
	DefaultTopK            = 5
	DefaultMaxTopK         = 10
	DefaultTermsVersion    = "2026-01-12_v1"
	DefaultTermsFile       = "terms_es.md"
	DefaultEmptyReply      = "No logré escuchar bien tu mensaje. ¿Podrías repetirlo, por favor?"
	DefaultOfflineMessage  = "Sin internet. Este servicio no funciona sin conexión."
	DefaultKnowledgeTable  = "knowledge_chunks"
)

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	defInt := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}

	def(&cfg.Server.ListenAddr, DefaultListenAddr)
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	defInt(&cfg.Server.ShutdownTimeoutSec, 15)

	defInt(&cfg.Audio.SampleRate, DefaultSampleRate)
	def(&cfg.Audio.FFmpegBin, DefaultFFmpegBin)
	if cfg.Audio.MaxUploadBytes == 0 {
		cfg.Audio.MaxUploadBytes = DefaultMaxUploadBytes
	}

	defInt(&cfg.VAD.FrameMs, DefaultFrameMs)
	defInt(&cfg.VAD.EndSilenceMs, DefaultEndSilenceMs)
	def(&cfg.VAD.Engine, "energy")

	if cfg.STT.Mode == "" {
		cfg.STT.Mode = ModeLocal
	}
	defInt(&cfg.STT.Breaker.MaxFailures, 5)
	defInt(&cfg.STT.Breaker.ResetTimeoutSec, 30)

	if cfg.TTS.Mode == "" {
		cfg.TTS.Mode = ModeLocal
	}
	defInt(&cfg.TTS.ChunkChars, DefaultChunkChars)

	defInt(&cfg.RateLimit.RPM, DefaultRateLimitRPM)
	defInt(&cfg.RateLimit.WindowSec, DefaultRateLimitWindow)

	def(&cfg.Kiosk.RegistryFile, DefaultRegistryFile)

	def(&cfg.Answer.BotName, DefaultBotName)
	def(&cfg.Answer.EmptyReply, DefaultEmptyReply)
	def(&cfg.Answer.OfflineMessage, DefaultOfflineMessage)
	if cfg.Answer.WelcomeMessage == "" {
		cfg.Answer.WelcomeMessage = fmt.Sprintf("¡Hola! Soy %s. Pregúntame lo que quieras sobre la reserva.", cfg.Answer.BotName)
	}
	def(&cfg.Answer.WelcomeMessageVersion, "v1")
	def(&cfg.Answer.TermsVersion, DefaultTermsVersion)
	def(&cfg.Answer.TermsFile, DefaultTermsFile)
	defInt(&cfg.Answer.MaxMessageChars, DefaultMaxMessageChars)
	defInt(&cfg.Answer.DefaultTopK, DefaultTopK)
	defInt(&cfg.Answer.MaxTopK, DefaultMaxTopK)

	def(&cfg.Database.Table, DefaultKnowledgeTable)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.TurnTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("server.turn_timeout_sec must not be negative"))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}

	if cfg.VAD.FrameMs != 10 && cfg.VAD.FrameMs != 20 && cfg.VAD.FrameMs != 30 {
		errs = append(errs, fmt.Errorf("vad.frame_ms %d is invalid; valid values: 10, 20, 30", cfg.VAD.FrameMs))
	}
	if cfg.VAD.EndSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("vad.end_silence_ms must not be negative"))
	}
	if lvl := cfg.VAD.Level(); lvl < 0 || lvl > 3 {
		slog.Warn("vad.aggressiveness out of range, clamping to [0, 3]", "value", lvl)
	}

	if !cfg.STT.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("stt.mode %q is invalid; valid values: local, cloud", cfg.STT.Mode))
	}
	if !cfg.TTS.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("tts.mode %q is invalid; valid values: local, cloud", cfg.TTS.Mode))
	}
	if cfg.TTS.ChunkChars <= 0 {
		errs = append(errs, fmt.Errorf("tts.chunk_chars must be positive, got %d", cfg.TTS.ChunkChars))
	}

	validateProviderName("stt-cloud", cfg.STT.Cloud.Name)
	validateProviderName("stt-local", cfg.STT.Local.Name)
	validateProviderName("tts-cloud", cfg.TTS.Cloud.Name)
	validateProviderName("tts-local", cfg.TTS.Local.Name)
	validateProviderName("llm", cfg.Answer.LLM.Name)
	validateProviderName("embeddings", cfg.Answer.Embeddings.Name)
	validateProviderName("vad", cfg.VAD.Engine)

	if cfg.RateLimit.RPM < 0 || cfg.RateLimit.WindowSec <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit: rpm must be >= 0 and window_sec > 0 (got %d/%d)", cfg.RateLimit.RPM, cfg.RateLimit.WindowSec))
	}

	if cfg.Answer.DefaultTopK < 1 || cfg.Answer.MaxTopK < 1 {
		errs = append(errs, fmt.Errorf("answer: default_top_k and max_top_k must be >= 1"))
	} else if cfg.Answer.DefaultTopK > cfg.Answer.MaxTopK {
		errs = append(errs, fmt.Errorf("answer.default_top_k %d exceeds max_top_k %d", cfg.Answer.DefaultTopK, cfg.Answer.MaxTopK))
	}
	if cfg.Answer.MaxMessageChars <= 0 {
		errs = append(errs, fmt.Errorf("answer.max_message_chars must be positive"))
	}
	if cfg.Answer.LLM.Name == "" {
		slog.Warn("answer.llm is not configured; /chat and voice turns will be unavailable")
	}
	if cfg.Database.URL == "" {
		slog.Warn("database.url is empty; answers will be generated without retrieved context")
	}

	if cfg.Kiosk.AuthRequired() && cfg.Kiosk.RegistryFile == "" {
		errs = append(errs, fmt.Errorf("kiosk.registry_file is required when kiosk auth is enabled"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
