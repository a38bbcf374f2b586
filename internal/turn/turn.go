// Package turn runs one voice interaction: it reads emotion from the
// captured audio and its transcript, fuses the two signals, and carries out
// the response the policy picks.
package turn

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"moodvox/internal/emotion"
	"moodvox/internal/policy"
	"moodvox/internal/prosody"
	"moodvox/pkg/pcm"
)

var (
	ErrTranscription  = errors.New("transcription failed")
	ErrClassification = errors.New("text emotion classification failed")
	ErrGeneration     = errors.New("reply generation failed")
	ErrSynthesis      = errors.New("speech synthesis failed")
	ErrAsset          = errors.New("asset playback failed")
)

type Transcriber interface {
	Transcribe(ctx context.Context, b pcm.Buffer) (string, error)
}

// TextClassifier returns the raw label of an external text emotion model.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

type ReplyGenerator interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Speaker synthesizes text and plays it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type AssetPlayer interface {
	PlayAsset(ctx context.Context, name string) error
}

// Sink receives every finished report. Sink failures are logged only.
type Sink interface {
	Record(ctx context.Context, r Report) error
}

type Config struct {
	PitchRange prosody.PitchRange
	Thresholds prosody.Thresholds
}

func DefaultConfig() Config {
	return Config{
		PitchRange: prosody.DefaultPitchRange(),
		Thresholds: prosody.DefaultThresholds(),
	}
}

type Deps struct {
	Transcriber Transcriber
	Classifier  TextClassifier
	Reply       ReplyGenerator
	Speaker     Speaker
	Assets      AssetPlayer
	Sinks       []Sink
}

type Runner struct {
	cfg   Config
	deps  Deps
	clock func() time.Time
	newID func() string
}

func NewRunner(cfg Config, deps Deps) *Runner {
	return &Runner{
		cfg:   cfg,
		deps:  deps,
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Report describes one finished turn.
type Report struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	AudioLength  time.Duration `json:"audio_length"`
	PitchHz      *float64      `json:"pitch_hz,omitempty"`
	Energy       float64       `json:"energy"`
	Transcript   string        `json:"transcript"`
	TextLabel    string        `json:"text_label"`
	TextEmotion  emotion.Label `json:"text_emotion"`
	AudioEmotion emotion.Label `json:"audio_emotion"`
	Emotion      emotion.Label `json:"emotion"`
	Action       string        `json:"action"`
	Reply        string        `json:"reply,omitempty"`
	Error        string        `json:"error,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Run processes one captured buffer. Collaborator failures are returned
// wrapped in one of the Err* sentinels; the report is filled as far as the
// turn got either way.
func (r *Runner) Run(ctx context.Context, buf pcm.Buffer) (Report, error) {
	rep := Report{
		ID:          r.newID(),
		StartedAt:   r.clock(),
		AudioLength: buf.Duration(),
	}

	err := r.run(ctx, buf, &rep)
	if err != nil {
		rep.Error = err.Error()
	}
	rep.Elapsed = r.clock().Sub(rep.StartedAt)

	// a canceled turn is still recorded
	sinkCtx := context.WithoutCancel(ctx)
	for _, s := range r.deps.Sinks {
		if serr := s.Record(sinkCtx, rep); serr != nil {
			log.Warn("Failed to record turn", "id", rep.ID, "err", serr)
		}
	}

	return rep, err
}

func (r *Runner) run(ctx context.Context, buf pcm.Buffer, rep *Report) error {
	feat := prosody.Extract(buf, r.cfg.PitchRange)
	rep.Energy = feat.Energy
	if feat.Valid() {
		p := feat.AveragePitchHz
		rep.PitchHz = &p
	} else {
		log.Warn("Prosody undefined, audio emotion defaults to neutral", "samples", buf.Len())
	}
	rep.AudioEmotion = r.cfg.Thresholds.Classify(feat)

	log.Info("Transcribing", "samples", buf.Len(), "rate", buf.SampleRate)

	text, err := r.deps.Transcriber.Transcribe(ctx, buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	rep.Transcript = text

	log.Info("You said", "text", text)

	if text != "" {
		raw, err := r.deps.Classifier.Classify(ctx, text)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrClassification, err)
		}
		rep.TextLabel = raw

		label, ok := emotion.Normalize(raw)
		if !ok {
			log.Warn("Unmapped text emotion label, using neutral", "label", raw)
		}
		rep.TextEmotion = label
	}

	rep.Emotion = emotion.Fuse(rep.TextEmotion, rep.AudioEmotion)

	log.Info("Emotion",
		"audio", rep.AudioEmotion,
		"text", rep.TextEmotion,
		"final", rep.Emotion,
	)

	action := policy.Decide(emotion.Result{Label: rep.Emotion, Transcript: text})
	rep.Action = action.String()

	return r.act(ctx, action, rep)
}

func (r *Runner) act(ctx context.Context, action policy.Action, rep *Report) error {
	switch a := action.(type) {
	case policy.PlayFixedMessage:
		log.Info("Playing fixed message", "asset", a.Asset)

		var errs []error
		if err := r.deps.Speaker.Speak(ctx, a.Text); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrSynthesis, err))
		}
		if err := r.deps.Assets.PlayAsset(ctx, a.Asset); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrAsset, err))
		}
		return errors.Join(errs...)

	case policy.GenerateAndSpeak:
		log.Info("Generating reply")

		reply, err := r.deps.Reply.Reply(ctx, a.Context)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		rep.Reply = reply

		log.Info("Reply", "text", reply)

		if err := r.deps.Speaker.Speak(ctx, reply); err != nil {
			return fmt.Errorf("%w: %w", ErrSynthesis, err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}
