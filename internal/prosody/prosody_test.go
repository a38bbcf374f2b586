package prosody

import (
	"math"
	"testing"

	"moodvox/internal/emotion"
	"moodvox/pkg/pcm"
)

func sine(freq float64, amp float64, rate int, d float64) pcm.Buffer {
	n := int(float64(rate) * d)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return pcm.Buffer{Samples: out, SampleRate: rate}
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name string
		f    Features
		want emotion.Label
	}{
		{"sad", Features{AveragePitchHz: 100, Energy: 0.005}, emotion.Sad},
		{"happy", Features{AveragePitchHz: 250, Energy: 0.05}, emotion.Happy},
		{"middle", Features{AveragePitchHz: 150, Energy: 0.02}, emotion.Neutral},
		{"low pitch loud", Features{AveragePitchHz: 100, Energy: 0.05}, emotion.Neutral},
		{"high pitch quiet", Features{AveragePitchHz: 250, Energy: 0.005}, emotion.Neutral},
		{"pitch at sad bound", Features{AveragePitchHz: 130, Energy: 0.005}, emotion.Neutral},
		{"energy at sad bound", Features{AveragePitchHz: 100, Energy: 0.01}, emotion.Neutral},
		{"pitch at happy bound", Features{AveragePitchHz: 200, Energy: 0.05}, emotion.Neutral},
		{"energy at happy bound", Features{AveragePitchHz: 250, Energy: 0.03}, emotion.Neutral},
		{"nan pitch", Features{AveragePitchHz: math.NaN(), Energy: 0}, emotion.Neutral},
		{"inf energy", Features{AveragePitchHz: 250, Energy: math.Inf(1)}, emotion.Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.Classify(tt.f); got != tt.want {
				t.Fatalf("Classify(%+v) = %v, want %v", tt.f, got, tt.want)
			}
		})
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	th := Thresholds{SadMaxPitchHz: 160, SadMaxEnergy: 1, HappyMinPitchHz: 180, HappyMinEnergy: 2}
	if got := th.Classify(Features{AveragePitchHz: 150, Energy: 0.5}); got != emotion.Sad {
		t.Fatalf("expected sad, got %v", got)
	}
}

func TestExtractSine(t *testing.T) {
	for _, rate := range []int{16000, 22050, 44100} {
		b := sine(150, 0.5, rate, 1)
		f := Extract(b, DefaultPitchRange())
		if f.VoicedFrames == 0 {
			t.Fatalf("rate %d: expected voiced frames", rate)
		}
		if math.Abs(f.AveragePitchHz-150) > 3 {
			t.Fatalf("rate %d: expected ~150 Hz, got %.2f", rate, f.AveragePitchHz)
		}
		want := float64(b.Len()) * 0.125
		if math.Abs(f.Energy-want)/want > 0.01 {
			t.Fatalf("rate %d: expected energy ~%.1f, got %.1f", rate, want, f.Energy)
		}
	}
}

func TestExtractHighPitch(t *testing.T) {
	f := Extract(sine(250, 0.3, 16000, 0.5), DefaultPitchRange())
	if math.Abs(f.AveragePitchHz-250) > 4 {
		t.Fatalf("expected ~250 Hz, got %.2f", f.AveragePitchHz)
	}
}

func TestExtractSilence(t *testing.T) {
	b := pcm.Buffer{Samples: make([]int16, 16000), SampleRate: 16000}
	f := Extract(b, DefaultPitchRange())
	if !math.IsNaN(f.AveragePitchHz) {
		t.Fatalf("expected NaN pitch, got %v", f.AveragePitchHz)
	}
	if f.Energy != 0 {
		t.Fatalf("expected zero energy, got %v", f.Energy)
	}
	if got := DefaultThresholds().Classify(f); got != emotion.Neutral {
		t.Fatalf("expected neutral for silence, got %v", got)
	}
}

func TestExtractTooShort(t *testing.T) {
	b := sine(150, 0.5, 16000, 0.01)
	f := Extract(b, DefaultPitchRange())
	if !math.IsNaN(f.AveragePitchHz) {
		t.Fatalf("expected NaN pitch for short buffer, got %v", f.AveragePitchHz)
	}
	if f.Energy <= 0 {
		t.Fatalf("expected positive energy, got %v", f.Energy)
	}
}

func TestEstimatePitchStaysInRange(t *testing.T) {
	r := DefaultPitchRange()
	// 40 Hz is below the search range; estimates must still be clamped to it.
	for _, p := range EstimatePitch(sine(40, 0.5, 16000, 1).Float64(), 16000, r) {
		if p < r.MinHz || p > r.MaxHz {
			t.Fatalf("estimate %.2f outside [%v, %v]", p, r.MinHz, r.MaxHz)
		}
	}
}

func TestEstimatePitchBadInput(t *testing.T) {
	if got := EstimatePitch(make([]float64, 10000), 0, DefaultPitchRange()); got != nil {
		t.Fatalf("expected nil for zero rate, got %v", got)
	}
	if got := EstimatePitch(make([]float64, 10000), 16000, PitchRange{MinHz: 300, MaxHz: 50}); got != nil {
		t.Fatalf("expected nil for inverted range, got %v", got)
	}
}
