// Package vad decides when a speaker has finished talking.
package vad

import (
	"math"
	"time"
)

// DefaultEnergyThreshold is the RMS level above which a frame counts as
// speech when no trained detector is available.
const DefaultEnergyThreshold = 0.015

// DefaultHangover is how much trailing silence ends an utterance.
const DefaultHangover = 600 * time.Millisecond

// Detector labels one frame of 16-bit mono audio.
type Detector interface {
	IsSpeech(frame []int16) (bool, error)
}

// Energy is a plain RMS gate.
type Energy struct {
	Threshold float64
}

func (e Energy) IsSpeech(frame []int16) (bool, error) {
	return RMS(frame) > e.Threshold, nil
}

func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	const scale = 1.0 / 32768.0
	var s float64
	for _, v := range frame {
		x := float64(v) * scale
		s += x * x
	}
	return math.Sqrt(s / float64(len(frame)))
}

// Endpointer tracks speech over consecutive frames. Leading silence is
// dropped; trailing silence up to the hangover is kept.
type Endpointer struct {
	frame    time.Duration
	hangover time.Duration
	max      time.Duration

	speaking bool
	silence  time.Duration
	elapsed  time.Duration
}

func NewEndpointer(frame, hangover, max time.Duration) *Endpointer {
	if hangover <= 0 {
		hangover = DefaultHangover
	}
	return &Endpointer{frame: frame, hangover: hangover, max: max}
}

// Push records one frame. keep reports whether the frame belongs to the
// utterance; done reports that capture should stop.
func (e *Endpointer) Push(speech bool) (keep, done bool) {
	e.elapsed += e.frame

	switch {
	case speech:
		e.speaking = true
		e.silence = 0
		keep = true
	case e.speaking:
		e.silence += e.frame
		keep = true
		if e.silence >= e.hangover {
			done = true
		}
	}

	if e.max > 0 && e.elapsed >= e.max {
		done = true
	}
	return keep, done
}

// Heard reports whether any speech has been seen.
func (e *Endpointer) Heard() bool { return e.speaking }
