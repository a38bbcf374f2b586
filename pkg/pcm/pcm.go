package pcm

import (
	"math"
	"time"
)

// Buffer is mono signed 16-bit audio at SampleRate Hz.
// It is treated as immutable once captured.
type Buffer struct {
	Samples    []int16
	SampleRate int
}

func (b Buffer) Len() int { return len(b.Samples) }

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Float32 returns samples scaled to [-1, 1].
func (b Buffer) Float32() []float32 {
	out := make([]float32, len(b.Samples))
	const scale = 1.0 / 32768.0
	for i, v := range b.Samples {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// Float64 is Float32 at double precision, for analysis code.
func (b Buffer) Float64() []float64 {
	out := make([]float64, len(b.Samples))
	const scale = 1.0 / 32768.0
	for i, v := range b.Samples {
		out[i] = float64(v) * scale
	}
	return out
}

// Resample returns a copy of the buffer at rate using linear interpolation.
func (b Buffer) Resample(rate int) Buffer {
	if rate <= 0 || rate == b.SampleRate || len(b.Samples) == 0 {
		return b
	}
	x := ResampleLinear(b.Float32(), b.SampleRate, rate)
	return FromFloat32(x, rate)
}

// FromFloat32 converts [-1, 1] samples to a Buffer, clamping out of range values.
func FromFloat32(x []float32, rate int) Buffer {
	out := make([]int16, len(x))
	for i, v := range x {
		f := clamp(float64(v), -1.0, 1.0)
		out[i] = int16(math.Round(f * 32767))
	}
	return Buffer{Samples: out, SampleRate: rate}
}

// FromInts converts integer PCM of the given bit depth to float32 in [-1, 1].
func FromInts(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func Int16ToFloat32(data []int16) []float32 {
	return Buffer{Samples: data}.Float32()
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func ResampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 || inSR <= 0 || outSR <= 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
