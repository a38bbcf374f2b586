// Package app assembles the runtime from configuration: capture, the turn
// runner and its collaborators, and the report sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"moodvox/internal/assets"
	"moodvox/internal/audio"
	"moodvox/internal/bus"
	"moodvox/internal/config"
	"moodvox/internal/journal"
	"moodvox/internal/mixer"
	"moodvox/internal/playback"
	"moodvox/internal/policy"
	"moodvox/internal/proxy"
	"moodvox/internal/reply"
	"moodvox/internal/textemotion"
	"moodvox/internal/tts"
	"moodvox/internal/tts/espeak"
	"moodvox/internal/turn"
	"moodvox/pkg/audioconv"
	"moodvox/pkg/pcm"
	"moodvox/pkg/stt"
	"moodvox/pkg/stt/whispercpp"
)

const BusShard = "moodvox"

type Options struct {
	// Microphone initializes PortAudio for Capture.
	Microphone bool
}

type App struct {
	cfg      config.Config
	runner   *turn.Runner
	player   *playback.Player
	recorder *audio.Recorder
	journal  *journal.Store
	bus      *bus.Bus
	closers  []func() error
}

func New(ctx context.Context, cfg config.Config, opt Options) (*App, error) {
	a := &App{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}

	httpClient, err := proxy.NewClient(cfg.Proxy.Socks)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	log.Debug("Loaded http client", "proxy", cfg.Proxy.Socks)

	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIKey),
		option.WithHTTPClient(httpClient),
	)

	a.player = newPlayer(cfg)

	transcriber, err := a.newTranscriber(cfg.STT)
	if err != nil {
		return nil, err
	}

	var classifier turn.TextClassifier
	switch cfg.TextEmotion.Mode {
	case "openai":
		classifier = textemotion.NewOpenAI(client, cfg.TextEmotion.Model)
	default:
		classifier = textemotion.NewHTTP(cfg.TextEmotion.Endpoint, cfg.TextEmotion.Token, nil)
	}

	speaker, err := newSpeaker(cfg, httpClient, a.player)
	if err != nil {
		return nil, err
	}

	deps := turn.Deps{
		Transcriber: transcriber,
		Classifier:  classifier,
		Reply:       reply.NewOpenAI(client, cfg.Reply.Model, cfg.Reply.SystemPrompt),
		Speaker:     speaker,
		Assets:      a.player,
	}

	if cfg.Journal.Path != "" {
		a.journal, err = journal.Open(ctx, journal.Config{
			Path:          cfg.Journal.Path,
			RetentionDays: cfg.Journal.RetentionDays,
			MaxTurns:      cfg.Journal.MaxTurns,
		})
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		a.closers = append(a.closers, a.journal.Close)
		deps.Sinks = append(deps.Sinks, a.journal)
		log.Debug("Loaded journal", "path", cfg.Journal.Path)
	}

	if cfg.Bus.URL != "" {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		a.bus, err = bus.Dial(dctx, cfg.Bus.URL, BusShard)
		cancel()
		if err != nil {
			log.Warn("Bus unavailable, reports stay local", "url", cfg.Bus.URL, "err", err)
			a.bus, err = nil, nil
		} else {
			a.closers = append(a.closers, a.bus.Close)
			deps.Sinks = append(deps.Sinks, a.bus)
		}
	}

	if opt.Microphone {
		rec := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.VADMode)
		if err := rec.Init(); err != nil {
			return nil, fmt.Errorf("init audio: %w", err)
		}
		a.recorder = rec
		a.closers = append(a.closers, func() error { rec.Close(); return nil })
		log.Debug("Loaded recorder", "rate", cfg.Audio.SampleRate)
	}

	a.runner = turn.NewRunner(turn.Config{
		PitchRange: cfg.Prosody.PitchRange(),
		Thresholds: cfg.Prosody.Thresholds(),
	}, deps)

	ready = true
	return a, nil
}

func newPlayer(cfg config.Config) *playback.Player {
	lib := assets.NewLibrary(cfg.Assets.Dir, map[string]string{
		policy.CalmAsset: cfg.Assets.Calm,
	})
	opts := []playback.Option{playback.WithCue(cfg.Assets.Cue)}
	if cfg.Playback.Duck {
		opts = append(opts, playback.WithDucker(mixer.NewDucker(mixer.Options{
			Factor:    cfg.Playback.DuckFactor,
			MinVolume: cfg.Playback.DuckMinVolume,
			Fade:      time.Duration(cfg.Playback.DuckFadeMS) * time.Millisecond,
			SelfNames: []string{BusShard},
		})))
	}
	return playback.NewPlayer(lib, opts...)
}

func (a *App) newTranscriber(cfg config.STTConfig) (turn.Transcriber, error) {
	switch cfg.Mode {
	case "exec":
		t, err := stt.NewExec(cfg.Command)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		t, err := whispercpp.NewTranscriber(cfg.ModelPath, whispercpp.Options{
			Language: cfg.Language,
			Threads:  cfg.Threads,
		})
		if err != nil {
			return nil, fmt.Errorf("init whisper: %w", err)
		}
		a.closers = append(a.closers, t.Close)
		log.Debug("Loaded whisper", "model", cfg.ModelPath)
		return t, nil
	}
}

func newSpeaker(cfg config.Config, c *http.Client, player *playback.Player) (turn.Speaker, error) {
	switch cfg.TTS.Mode {
	case "espeak":
		return espeak.New(cfg.TTS.Language), nil
	default:
		if cfg.ElevenLabsKey == "" {
			return nil, errors.New("ELEVENLABS_API_KEY not set")
		}
		return tts.NewElevenLabs(tts.ElevenLabsConfig{
			Endpoint:   cfg.TTS.Endpoint,
			APIKey:     cfg.ElevenLabsKey,
			Voice:      cfg.TTS.Voice,
			ModelID:    cfg.TTS.ModelID,
			OutputPath: cfg.TTS.OutputPath,
		}, c, player), nil
	}
}

// Cue plays the listening sound. Failures are only logged.
func (a *App) Cue(ctx context.Context) {
	if err := a.player.Cue(ctx); err != nil {
		log.Warn("Failed to play cue", "err", err)
	}
}

// Capture records one utterance from the microphone and stores it at
// audio.save_path when configured.
func (a *App) Capture(ctx context.Context) (pcm.Buffer, error) {
	if a.recorder == nil {
		return pcm.Buffer{}, errors.New("microphone not initialized")
	}

	var (
		buf pcm.Buffer
		err error
	)
	switch a.cfg.Audio.Capture {
	case "auto":
		buf, err = a.recorder.RecordAuto(ctx, seconds(a.cfg.Audio.MaxSeconds))
	default:
		buf, err = a.recorder.Record(ctx, seconds(a.cfg.Audio.RecordSeconds))
	}
	if err != nil {
		return pcm.Buffer{}, fmt.Errorf("record: %w", err)
	}

	log.Info("Recorded", "samples", buf.Len(), "duration", buf.Duration())

	if a.cfg.Audio.SavePath != "" {
		if err := audioconv.WriteWAV(a.cfg.Audio.SavePath, buf); err != nil {
			log.Warn("Failed to save recording", "path", a.cfg.Audio.SavePath, "err", err)
		}
	}
	return buf, nil
}

// Load reads an audio file at the configured sample rate.
func (a *App) Load(ctx context.Context, path string) (pcm.Buffer, error) {
	buf, err := audioconv.Decode(ctx, path, audioconv.Options{SampleRate: a.cfg.Audio.SampleRate})
	if err != nil {
		return pcm.Buffer{}, err
	}
	log.Info("Loaded", "file", path, "samples", buf.Len(), "duration", buf.Duration())
	return buf, nil
}

func (a *App) Run(ctx context.Context, buf pcm.Buffer) (turn.Report, error) {
	return a.runner.Run(ctx, buf)
}

// Bus is nil when no hub is configured or reachable.
func (a *App) Bus() *bus.Bus { return a.bus }

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("Close failed", "err", err)
		}
	}
	a.closers = nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
