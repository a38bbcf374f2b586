package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"moodvox/internal/prosody"
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Audio       AudioConfig       `yaml:"audio"`
	Prosody     ProsodyConfig     `yaml:"prosody"`
	STT         STTConfig         `yaml:"stt"`
	TextEmotion TextEmotionConfig `yaml:"text_emotion"`
	Reply       ReplyConfig       `yaml:"reply"`
	TTS         TTSConfig         `yaml:"tts"`
	Assets      AssetsConfig      `yaml:"assets"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	IPC         IPCConfig         `yaml:"ipc"`
	Bus         BusConfig         `yaml:"bus"`
	Journal     JournalConfig     `yaml:"journal"`

	// Secrets come from the environment only.
	OpenAIKey     string `yaml:"-"`
	ElevenLabsKey string `yaml:"-"`
}

type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	Capture       string  `yaml:"capture"` // fixed, auto
	RecordSeconds float64 `yaml:"record_seconds"`
	MaxSeconds    float64 `yaml:"max_seconds"`
	VADMode       int     `yaml:"vad_mode"`
	SavePath      string  `yaml:"save_path"`
}

type ProsodyConfig struct {
	MinPitchHz      float64 `yaml:"min_pitch_hz"`
	MaxPitchHz      float64 `yaml:"max_pitch_hz"`
	SadMaxPitchHz   float64 `yaml:"sad_max_pitch_hz"`
	SadMaxEnergy    float64 `yaml:"sad_max_energy"`
	HappyMinPitchHz float64 `yaml:"happy_min_pitch_hz"`
	HappyMinEnergy  float64 `yaml:"happy_min_energy"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // whisper, exec
	ModelPath string `yaml:"model_path"`
	Command   string `yaml:"command"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
}

type TextEmotionConfig struct {
	Mode     string `yaml:"mode"` // http, openai
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Model    string `yaml:"model"`
}

type ReplyConfig struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // elevenlabs, espeak
	Endpoint   string `yaml:"endpoint"`
	Voice      string `yaml:"voice"`
	ModelID    string `yaml:"model_id"`
	OutputPath string `yaml:"output_path"`
	Language   string `yaml:"language"`
}

type AssetsConfig struct {
	Dir  string `yaml:"dir"`
	Calm string `yaml:"calm"`
	Cue  string `yaml:"cue"`
}

// PlaybackConfig controls lowering other applications while we speak.
type PlaybackConfig struct {
	Duck          bool    `yaml:"duck"`
	DuckFactor    float64 `yaml:"duck_factor"`
	DuckMinVolume int     `yaml:"duck_min_volume"`
	DuckFadeMS    int     `yaml:"duck_fade_ms"`
}

type ProxyConfig struct {
	Socks string `yaml:"socks"`
}

type IPCConfig struct {
	Socket string `yaml:"socket"`
}

type BusConfig struct {
	URL string `yaml:"url"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxTurns      int    `yaml:"max_turns"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			Capture:       "fixed",
			RecordSeconds: 6,
			MaxSeconds:    15,
			VADMode:       2,
			SavePath:      "input.wav",
		},
		Prosody: ProsodyConfig{
			MinPitchHz:      prosody.DefaultMinPitchHz,
			MaxPitchHz:      prosody.DefaultMaxPitchHz,
			SadMaxPitchHz:   prosody.SadMaxPitchHz,
			SadMaxEnergy:    prosody.SadMaxEnergy,
			HappyMinPitchHz: prosody.HappyMinPitchHz,
			HappyMinEnergy:  prosody.HappyMinEnergy,
		},
		STT: STTConfig{
			Mode:      "whisper",
			ModelPath: "models/ggml-base.bin",
			Language:  "auto",
		},
		TextEmotion: TextEmotionConfig{
			Mode:     "http",
			Endpoint: "http://localhost:8001",
			Model:    "gpt-4o-mini",
		},
		Reply: ReplyConfig{
			Model:        "gpt-3.5-turbo",
			SystemPrompt: "You are a kind and supportive AI companion.",
		},
		TTS: TTSConfig{
			Mode:       "elevenlabs",
			Endpoint:   "https://api.elevenlabs.io",
			Voice:      "Rachel",
			ModelID:    "eleven_monolingual_v1",
			OutputPath: "response_audio.mp3",
			Language:   "en",
		},
		Assets: AssetsConfig{
			Dir:  ".",
			Calm: "calm.mp3",
			Cue:  "beep.mp3",
		},
		Playback: PlaybackConfig{
			DuckFactor:    0.3,
			DuckMinVolume: 10,
			DuckFadeMS:    300,
		},
		IPC: IPCConfig{
			Socket: "/tmp/moodvox.sock",
		},
		Journal: JournalConfig{
			Path:          "./data/moodvox.db",
			RetentionDays: 30,
			MaxTurns:      1000,
		},
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cfg again after command-line flags were applied on top of
// what Load returned.
func (c Config) Validate() error {
	return validate(c)
}

func (p ProsodyConfig) PitchRange() prosody.PitchRange {
	return prosody.PitchRange{MinHz: p.MinPitchHz, MaxHz: p.MaxPitchHz}
}

func (p ProsodyConfig) Thresholds() prosody.Thresholds {
	return prosody.Thresholds{
		SadMaxPitchHz:   p.SadMaxPitchHz,
		SadMaxEnergy:    p.SadMaxEnergy,
		HappyMinPitchHz: p.HappyMinPitchHz,
		HappyMinEnergy:  p.HappyMinEnergy,
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.OpenAIKey, "OPENAI_API_KEY")
	overrideString(&cfg.ElevenLabsKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.LogLevel, "MOODVOX_LOG_LEVEL")
	overrideInt(&cfg.Audio.SampleRate, "MOODVOX_AUDIO_SAMPLE_RATE")
	overrideString(&cfg.Audio.Capture, "MOODVOX_AUDIO_CAPTURE")
	overrideFloat(&cfg.Audio.RecordSeconds, "MOODVOX_AUDIO_RECORD_SECONDS")
	overrideFloat(&cfg.Audio.MaxSeconds, "MOODVOX_AUDIO_MAX_SECONDS")
	overrideInt(&cfg.Audio.VADMode, "MOODVOX_AUDIO_VAD_MODE")
	overrideString(&cfg.Audio.SavePath, "MOODVOX_AUDIO_SAVE_PATH")
	overrideFloat(&cfg.Prosody.MinPitchHz, "MOODVOX_PROSODY_MIN_PITCH_HZ")
	overrideFloat(&cfg.Prosody.MaxPitchHz, "MOODVOX_PROSODY_MAX_PITCH_HZ")
	overrideFloat(&cfg.Prosody.SadMaxPitchHz, "MOODVOX_PROSODY_SAD_MAX_PITCH_HZ")
	overrideFloat(&cfg.Prosody.SadMaxEnergy, "MOODVOX_PROSODY_SAD_MAX_ENERGY")
	overrideFloat(&cfg.Prosody.HappyMinPitchHz, "MOODVOX_PROSODY_HAPPY_MIN_PITCH_HZ")
	overrideFloat(&cfg.Prosody.HappyMinEnergy, "MOODVOX_PROSODY_HAPPY_MIN_ENERGY")
	overrideString(&cfg.STT.Mode, "MOODVOX_STT_MODE")
	overrideString(&cfg.STT.ModelPath, "MOODVOX_STT_MODEL_PATH")
	overrideString(&cfg.STT.Command, "MOODVOX_STT_COMMAND")
	overrideString(&cfg.STT.Language, "MOODVOX_STT_LANGUAGE")
	overrideInt(&cfg.STT.Threads, "MOODVOX_STT_THREADS")
	overrideString(&cfg.TextEmotion.Mode, "MOODVOX_TEXT_EMOTION_MODE")
	overrideString(&cfg.TextEmotion.Endpoint, "MOODVOX_TEXT_EMOTION_ENDPOINT")
	overrideString(&cfg.TextEmotion.Token, "MOODVOX_TEXT_EMOTION_TOKEN")
	overrideString(&cfg.TextEmotion.Model, "MOODVOX_TEXT_EMOTION_MODEL")
	overrideString(&cfg.Reply.Model, "MOODVOX_REPLY_MODEL")
	overrideString(&cfg.Reply.SystemPrompt, "MOODVOX_REPLY_SYSTEM_PROMPT")
	overrideString(&cfg.TTS.Mode, "MOODVOX_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "MOODVOX_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Voice, "MOODVOX_TTS_VOICE")
	overrideString(&cfg.TTS.ModelID, "MOODVOX_TTS_MODEL_ID")
	overrideString(&cfg.TTS.OutputPath, "MOODVOX_TTS_OUTPUT_PATH")
	overrideString(&cfg.TTS.Language, "MOODVOX_TTS_LANGUAGE")
	overrideString(&cfg.Assets.Dir, "MOODVOX_ASSETS_DIR")
	overrideString(&cfg.Assets.Calm, "MOODVOX_ASSETS_CALM")
	overrideString(&cfg.Assets.Cue, "MOODVOX_ASSETS_CUE")
	overrideBool(&cfg.Playback.Duck, "MOODVOX_PLAYBACK_DUCK")
	overrideFloat(&cfg.Playback.DuckFactor, "MOODVOX_PLAYBACK_DUCK_FACTOR")
	overrideString(&cfg.Proxy.Socks, "MOODVOX_PROXY_SOCKS")
	overrideString(&cfg.IPC.Socket, "MOODVOX_IPC_SOCKET")
	overrideString(&cfg.Bus.URL, "MOODVOX_BUS_URL")
	overrideString(&cfg.Journal.Path, "MOODVOX_JOURNAL_PATH")
	overrideInt(&cfg.Journal.RetentionDays, "MOODVOX_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxTurns, "MOODVOX_JOURNAL_MAX_TURNS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log_level must be one of debug|info|warn|error")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1")
	}
	switch cfg.Audio.Capture {
	case "fixed":
		if cfg.Audio.RecordSeconds <= 0 {
			return errors.New("audio.record_seconds must be positive when capture=fixed")
		}
	case "auto":
		if cfg.Audio.MaxSeconds <= 0 {
			return errors.New("audio.max_seconds must be positive when capture=auto")
		}
	default:
		return errors.New("audio.capture must be one of fixed|auto")
	}
	if cfg.Audio.VADMode < 0 || cfg.Audio.VADMode > 3 {
		return errors.New("audio.vad_mode must be between 0 and 3")
	}
	if cfg.Prosody.MinPitchHz <= 0 || cfg.Prosody.MaxPitchHz <= cfg.Prosody.MinPitchHz {
		return errors.New("prosody pitch range must satisfy 0 < min_pitch_hz < max_pitch_hz")
	}
	if cfg.Prosody.SadMaxEnergy < 0 || cfg.Prosody.HappyMinEnergy < 0 {
		return errors.New("prosody energy thresholds must be >= 0")
	}
	switch cfg.STT.Mode {
	case "whisper":
		if cfg.STT.ModelPath == "" {
			return errors.New("stt.model_path must be set when mode=whisper")
		}
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of whisper|exec")
	}
	switch cfg.TextEmotion.Mode {
	case "http":
		if cfg.TextEmotion.Endpoint == "" {
			return errors.New("text_emotion.endpoint must be set when mode=http")
		}
	case "openai":
		if cfg.TextEmotion.Model == "" {
			return errors.New("text_emotion.model must be set when mode=openai")
		}
	default:
		return errors.New("text_emotion.mode must be one of http|openai")
	}
	if cfg.Reply.Model == "" {
		return errors.New("reply.model must not be empty")
	}
	switch cfg.TTS.Mode {
	case "elevenlabs":
		if cfg.TTS.Endpoint == "" || cfg.TTS.Voice == "" {
			return errors.New("tts.endpoint and tts.voice must be set when mode=elevenlabs")
		}
	case "espeak":
	default:
		return errors.New("tts.mode must be one of elevenlabs|espeak")
	}
	if cfg.Assets.Calm == "" {
		return errors.New("assets.calm must not be empty")
	}
	if cfg.Playback.DuckFactor < 0 || cfg.Playback.DuckFactor > 1 {
		return errors.New("playback.duck_factor must be between 0 and 1")
	}
	if cfg.Playback.DuckMinVolume < 0 || cfg.Playback.DuckFadeMS < 0 {
		return errors.New("playback duck volume and fade must be >= 0")
	}
	if cfg.IPC.Socket == "" {
		return errors.New("ipc.socket must not be empty")
	}
	if cfg.Journal.RetentionDays < 0 || cfg.Journal.MaxTurns < 0 {
		return errors.New("journal retention values must be >= 0")
	}
	return nil
}
