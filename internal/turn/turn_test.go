package turn

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"moodvox/internal/emotion"
	"moodvox/internal/policy"
	"moodvox/pkg/pcm"
)

type fakeSTT struct {
	text   string
	err    error
	before func()
}

func (f *fakeSTT) Transcribe(ctx context.Context, b pcm.Buffer) (string, error) {
	if f.before != nil {
		f.before()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type fakeClassifier struct {
	label string
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (string, error) {
	f.calls++
	return f.label, f.err
}

type fakeReply struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeReply) Reply(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeSpeaker struct {
	spoken []string
	err    error
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.spoken = append(f.spoken, text)
	return f.err
}

type fakeAssets struct {
	played []string
	err    error
}

func (f *fakeAssets) PlayAsset(ctx context.Context, name string) error {
	f.played = append(f.played, name)
	return f.err
}

type fakeSink struct {
	reports []Report
	err     error
}

func (f *fakeSink) Record(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.reports = append(f.reports, r)
	return f.err
}

type fixture struct {
	stt     *fakeSTT
	cls     *fakeClassifier
	reply   *fakeReply
	speaker *fakeSpeaker
	assets  *fakeAssets
	sink    *fakeSink
	runner  *Runner
}

func newFixture(text, label string) *fixture {
	f := &fixture{
		stt:     &fakeSTT{text: text},
		cls:     &fakeClassifier{label: label},
		reply:   &fakeReply{reply: "That sounds wonderful!"},
		speaker: &fakeSpeaker{},
		assets:  &fakeAssets{},
		sink:    &fakeSink{},
	}
	f.runner = NewRunner(DefaultConfig(), Deps{
		Transcriber: f.stt,
		Classifier:  f.cls,
		Reply:       f.reply,
		Speaker:     f.speaker,
		Assets:      f.assets,
		Sinks:       []Sink{f.sink},
	})
	f.runner.newID = func() string { return "turn-1" }
	return f
}

func sine(freq, amp float64, rate int, d float64) pcm.Buffer {
	n := int(float64(rate) * d)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return pcm.Buffer{Samples: out, SampleRate: rate}
}

func silence() pcm.Buffer {
	return pcm.Buffer{Samples: make([]int16, 8000), SampleRate: 16000}
}

// quiet, low voice: pitch ~100 Hz, energy ~0.004
func sadVoice() pcm.Buffer { return sine(100, 0.001, 16000, 0.5) }

// bright, loud voice: pitch ~250 Hz
func happyVoice() pcm.Buffer { return sine(250, 0.3, 16000, 0.5) }

func TestTextDominates(t *testing.T) {
	f := newFixture("I got the job!", "joy")
	rep, err := f.runner.Run(context.Background(), sadVoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.AudioEmotion != emotion.Sad {
		t.Fatalf("expected sad audio, got %v", rep.AudioEmotion)
	}
	if rep.TextEmotion != emotion.Happy || rep.Emotion != emotion.Happy {
		t.Fatalf("expected happy text and final, got %v/%v", rep.TextEmotion, rep.Emotion)
	}
	if len(f.reply.prompts) != 1 || f.reply.prompts[0] != "I got the job!" {
		t.Fatalf("expected transcript as reply prompt, got %v", f.reply.prompts)
	}
	if len(f.speaker.spoken) != 1 || f.speaker.spoken[0] != "That sounds wonderful!" {
		t.Fatalf("expected generated reply spoken, got %v", f.speaker.spoken)
	}
	if rep.Reply != "That sounds wonderful!" {
		t.Fatalf("expected reply in report, got %q", rep.Reply)
	}
	if len(f.assets.played) != 0 {
		t.Fatalf("expected no assets, got %v", f.assets.played)
	}
}

func TestNeutralTextFallsBackToAudio(t *testing.T) {
	f := newFixture("it is what it is", "neutral")
	rep, err := f.runner.Run(context.Background(), sadVoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Emotion != emotion.Sad {
		t.Fatalf("expected sad, got %v", rep.Emotion)
	}
	if len(f.speaker.spoken) != 1 || f.speaker.spoken[0] != policy.ComfortMessage {
		t.Fatalf("expected comfort message, got %v", f.speaker.spoken)
	}
	if len(f.assets.played) != 1 || f.assets.played[0] != policy.CalmAsset {
		t.Fatalf("expected calm asset, got %v", f.assets.played)
	}
	if len(f.reply.prompts) != 0 {
		t.Fatalf("reply generator must not be called for sad, got %v", f.reply.prompts)
	}
}

func TestUnmappedLabelFallsBackToAudio(t *testing.T) {
	f := newFixture("this is outrageous", "anger")
	rep, err := f.runner.Run(context.Background(), happyVoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.TextLabel != "anger" || rep.TextEmotion != emotion.Neutral {
		t.Fatalf("expected raw anger normalized to neutral, got %q/%v", rep.TextLabel, rep.TextEmotion)
	}
	if rep.Emotion != emotion.Happy {
		t.Fatalf("expected happy from audio, got %v", rep.Emotion)
	}
}

func TestSilentBufferIsNeutral(t *testing.T) {
	f := newFixture("", "joy")
	rep, err := f.runner.Run(context.Background(), silence())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PitchHz != nil {
		t.Fatalf("expected undefined pitch, got %v", *rep.PitchHz)
	}
	if rep.Emotion != emotion.Neutral {
		t.Fatalf("expected neutral, got %v", rep.Emotion)
	}
	if f.cls.calls != 0 {
		t.Fatalf("classifier must not run on empty transcript")
	}
	if len(f.reply.prompts) != 1 || f.reply.prompts[0] != "" {
		t.Fatalf("expected reply with empty context, got %v", f.reply.prompts)
	}
}

func TestCollaboratorFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(f *fixture)
		buf   pcm.Buffer
		want  error
	}{
		{"transcription", func(f *fixture) { f.stt.err = boom }, happyVoice(), ErrTranscription},
		{"classification", func(f *fixture) { f.cls.err = boom }, happyVoice(), ErrClassification},
		{"generation", func(f *fixture) { f.reply.err = boom }, happyVoice(), ErrGeneration},
		{"synthesis", func(f *fixture) { f.speaker.err = boom }, happyVoice(), ErrSynthesis},
		{"asset", func(f *fixture) { f.cls.label = "sadness"; f.assets.err = boom }, happyVoice(), ErrAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("hello", "joy")
			tt.setup(f)
			rep, err := f.runner.Run(context.Background(), tt.buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, boom) {
				t.Fatalf("expected cause preserved, got %v", err)
			}
			if rep.Error == "" {
				t.Fatal("expected error recorded in report")
			}
			if len(f.sink.reports) != 1 {
				t.Fatalf("expected report delivered to sink, got %d", len(f.sink.reports))
			}
		})
	}
}

func TestSadPathReportsBothFailures(t *testing.T) {
	f := newFixture("everything went wrong", "sadness")
	f.speaker.err = errors.New("tts down")
	f.assets.err = errors.New("calm.mp3 missing")

	_, err := f.runner.Run(context.Background(), happyVoice())
	if !errors.Is(err, ErrSynthesis) || !errors.Is(err, ErrAsset) {
		t.Fatalf("expected both synthesis and asset errors, got %v", err)
	}
	if len(f.assets.played) != 1 {
		t.Fatal("asset must still be attempted after synthesis failure")
	}
}

func TestSinkFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture("hello", "joy")
	f.sink.err = errors.New("disk full")
	if _, err := f.runner.Run(context.Background(), happyVoice()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCanceledTurnIsStillRecorded(t *testing.T) {
	f := newFixture("", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.stt.before = cancel

	rep, err := f.runner.Run(ctx, happyVoice())
	if !errors.Is(err, ErrTranscription) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled transcription, got %v", err)
	}
	if len(f.sink.reports) != 1 {
		t.Fatalf("expected canceled turn delivered to sink, got %d", len(f.sink.reports))
	}
	if f.sink.reports[0].ID != rep.ID || f.sink.reports[0].Error == "" {
		t.Fatalf("unexpected recorded report %+v", f.sink.reports[0])
	}
}

func TestReportMetadata(t *testing.T) {
	f := newFixture("hello", "neutral")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	f.runner.clock = func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks-1) * time.Second)
	}

	rep, err := f.runner.Run(context.Background(), happyVoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.ID != "turn-1" {
		t.Fatalf("unexpected id %q", rep.ID)
	}
	if !rep.StartedAt.Equal(start) || rep.Elapsed != time.Second {
		t.Fatalf("unexpected timing: %v %v", rep.StartedAt, rep.Elapsed)
	}
	if rep.AudioLength != 500*time.Millisecond {
		t.Fatalf("unexpected audio length %v", rep.AudioLength)
	}
	if rep.PitchHz == nil || math.Abs(*rep.PitchHz-250) > 4 {
		t.Fatalf("expected pitch ~250, got %v", rep.PitchHz)
	}
	if rep.Action != "generate_and_speak" {
		t.Fatalf("unexpected action %q", rep.Action)
	}
}
