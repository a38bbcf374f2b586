package prosody

import (
	"moodvox/internal/emotion"
)

// Empirical thresholds. Comparisons are strict on both sides.
const (
	SadMaxPitchHz   = 130.0
	SadMaxEnergy    = 0.01
	HappyMinPitchHz = 200.0
	HappyMinEnergy  = 0.03
)

type Thresholds struct {
	SadMaxPitchHz   float64
	SadMaxEnergy    float64
	HappyMinPitchHz float64
	HappyMinEnergy  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SadMaxPitchHz:   SadMaxPitchHz,
		SadMaxEnergy:    SadMaxEnergy,
		HappyMinPitchHz: HappyMinPitchHz,
		HappyMinEnergy:  HappyMinEnergy,
	}
}

// Classify applies the rules in order: low pitch and low energy is Sad, high
// pitch and high energy is Happy, anything else (including features that are
// not Valid) is Neutral.
func (t Thresholds) Classify(f Features) emotion.Label {
	if !f.Valid() {
		return emotion.Neutral
	}
	if f.AveragePitchHz < t.SadMaxPitchHz && f.Energy < t.SadMaxEnergy {
		return emotion.Sad
	}
	if f.AveragePitchHz > t.HappyMinPitchHz && f.Energy > t.HappyMinEnergy {
		return emotion.Happy
	}
	return emotion.Neutral
}
