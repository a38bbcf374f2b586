package audioconv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"moodvox/pkg/pcm"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec", "input.wav")
	in := pcm.Buffer{Samples: []int16{0, 1000, -1000, 8000, -8000, 12}, SampleRate: 16000}

	if err := WriteWAV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := Decode(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", out.SampleRate)
	}
	if out.Len() != in.Len() {
		t.Fatalf("expected %d samples, got %d", in.Len(), out.Len())
	}
	for i := range in.Samples {
		if d := int(out.Samples[i]) - int(in.Samples[i]); d < -1 || d > 1 {
			t.Fatalf("sample %d: expected %d, got %d", i, in.Samples[i], out.Samples[i])
		}
	}
}

func TestDecodeResampleAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := pcm.Buffer{Samples: make([]int16, 32000), SampleRate: 32000}
	if err := WriteWAV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := Decode(context.Background(), path, Options{SampleRate: 16000})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SampleRate != 16000 || out.Len() != 16000 {
		t.Fatalf("expected 16000 samples at 16 kHz, got %d at %d", out.Len(), out.SampleRate)
	}

	out, err = Decode(context.Background(), path, Options{MaxSamples: 100})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Len() != 100 {
		t.Fatalf("expected 100 samples, got %d", out.Len())
	}
}

func TestDecodeStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{2000, 0, 4000, 4000, -2000, 2000},
		SourceBitDepth: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := Decode(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []int16{1000, 4000, 0}
	if out.Len() != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), out.Len())
	}
	for i, w := range want {
		if d := int(out.Samples[i]) - int(w); d < -1 || d > 1 {
			t.Fatalf("frame %d: expected %d, got %d", i, w, out.Samples[i])
		}
	}
}

func TestDecodeUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello, not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Decode(context.Background(), path, Options{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestDecodeMissingFile(t *testing.T) {
	_, err := Decode(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDecodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Decode(ctx, "whatever.wav", Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriteWAVRejectsBadRate(t *testing.T) {
	if err := WriteWAV(filepath.Join(t.TempDir(), "x.wav"), pcm.Buffer{Samples: []int16{1}}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}
