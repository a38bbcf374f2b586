// Package prosody derives pitch and energy from captured speech and maps them
// to an emotion label with fixed thresholds.
package prosody

import (
	"math"

	"moodvox/pkg/pcm"
)

const (
	DefaultMinPitchHz = 50.0
	DefaultMaxPitchHz = 300.0

	// YIN trough threshold on the cumulative mean normalized difference.
	yinThreshold = 0.1

	// Analysis frame of 2048 samples at 22050 Hz, scaled to the buffer rate.
	refFrameLength = 2048
	refSampleRate  = 22050

	silentFrameEnergy = 1e-10
)

// PitchRange bounds the fundamental frequency search.
type PitchRange struct {
	MinHz float64
	MaxHz float64
}

func DefaultPitchRange() PitchRange {
	return PitchRange{MinHz: DefaultMinPitchHz, MaxHz: DefaultMaxPitchHz}
}

// Features summarise one buffer. AveragePitchHz is NaN when no frame could be
// analysed (silence, or a buffer shorter than one frame).
type Features struct {
	AveragePitchHz float64 `json:"average_pitch_hz"`
	Energy         float64 `json:"energy"`
	VoicedFrames   int     `json:"voiced_frames"`
}

// Valid reports whether both values are finite and non-negative.
func (f Features) Valid() bool {
	for _, v := range []float64{f.AveragePitchHz, f.Energy} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// Extract computes the whole-buffer average pitch and the energy, i.e. the
// sum of squared samples normalized to [-1, 1].
func Extract(b pcm.Buffer, r PitchRange) Features {
	x := b.Float64()

	var energy float64
	for _, v := range x {
		energy += v * v
	}

	pitches := EstimatePitch(x, b.SampleRate, r)
	avg := math.NaN()
	if len(pitches) > 0 {
		var sum float64
		for _, p := range pitches {
			sum += p
		}
		avg = sum / float64(len(pitches))
	}

	return Features{
		AveragePitchHz: avg,
		Energy:         energy,
		VoicedFrames:   len(pitches),
	}
}

// EstimatePitch runs YIN over x and returns one f0 estimate per non-silent
// frame. Lag bounds follow from sampleRate, so any rate is accepted.
func EstimatePitch(x []float64, sampleRate int, r PitchRange) []float64 {
	if sampleRate <= 0 || r.MinHz <= 0 || r.MaxHz <= r.MinHz {
		return nil
	}

	sr := float64(sampleRate)
	tauMin := int(math.Floor(sr / r.MaxHz))
	if tauMin < 1 {
		tauMin = 1
	}
	tauMax := int(math.Ceil(sr / r.MinHz))
	if tauMax <= tauMin {
		return nil
	}

	frameLength := int(math.Round(sr * refFrameLength / refSampleRate))
	if frameLength < 2*(tauMax+1) {
		frameLength = 2 * (tauMax + 1)
	}
	win := frameLength / 2
	hop := frameLength / 4

	if len(x) < frameLength {
		return nil
	}

	diff := make([]float64, tauMax+1)
	cmnd := make([]float64, tauMax+1)

	var out []float64
	for start := 0; start+frameLength <= len(x); start += hop {
		frame := x[start : start+frameLength]
		if frameEnergy(frame) < silentFrameEnergy {
			continue
		}

		difference(frame, win, diff)
		normalize(diff, cmnd)

		tau := pickLag(cmnd, tauMin, tauMax)
		period := float64(tau) + parabolicShift(cmnd, tau, tauMax)
		if period <= 0 {
			continue
		}

		f0 := sr / period
		out = append(out, math.Min(math.Max(f0, r.MinHz), r.MaxHz))
	}

	return out
}

func frameEnergy(frame []float64) float64 {
	var s float64
	for _, v := range frame {
		s += v * v
	}
	return s
}

// difference fills d[tau] = sum_j (x[j] - x[j+tau])^2 over a window of win samples.
func difference(frame []float64, win int, d []float64) {
	d[0] = 0
	for tau := 1; tau < len(d); tau++ {
		var s float64
		for j := 0; j < win; j++ {
			delta := frame[j] - frame[j+tau]
			s += delta * delta
		}
		d[tau] = s
	}
}

// normalize computes the cumulative mean normalized difference.
func normalize(d, c []float64) {
	c[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running == 0 {
			c[tau] = 1
			continue
		}
		c[tau] = d[tau] * float64(tau) / running
	}
}

// pickLag returns the first trough under the threshold, or the global
// minimum in range when there is none.
func pickLag(c []float64, tauMin, tauMax int) int {
	for tau := tauMin; tau <= tauMax; tau++ {
		if c[tau] < yinThreshold {
			for tau+1 <= tauMax && c[tau+1] < c[tau] {
				tau++
			}
			return tau
		}
	}

	best := tauMin
	for tau := tauMin + 1; tau <= tauMax; tau++ {
		if c[tau] < c[best] {
			best = tau
		}
	}
	return best
}

func parabolicShift(c []float64, tau, tauMax int) float64 {
	if tau < 2 || tau+1 > tauMax {
		return 0
	}
	a, b, n := c[tau-1], c[tau], c[tau+1]
	denom := a - 2*b + n
	if denom == 0 {
		return 0
	}
	shift := 0.5 * (a - n) / denom
	if shift > 1 || shift < -1 {
		return 0
	}
	return shift
}
