// Package emotion holds the three-way emotion label shared by the audio and
// text paths, the table that folds external classifier labels into it, and
// the fusion rule that picks the final label for a turn.
package emotion

import (
	"fmt"
	"strings"
)

type Label int

const (
	Neutral Label = iota
	Sad
	Happy
)

func (l Label) String() string {
	switch l {
	case Sad:
		return "sad"
	case Happy:
		return "happy"
	default:
		return "neutral"
	}
}

func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	v, ok := Normalize(string(b))
	if !ok {
		return fmt.Errorf("unknown emotion label %q", string(b))
	}
	*l = v
	return nil
}

// labelTable maps external classifier output to a Label. Keys are lower case.
// Anything missing from the table is treated as Neutral by Normalize.
var labelTable = map[string]Label{
	"sad":       Sad,
	"sadness":   Sad,
	"happy":     Happy,
	"happiness": Happy,
	"joy":       Happy,
	"neutral":   Neutral,
}

// Normalize folds a raw classifier label into a Label. ok reports whether the
// label was in the table; unknown labels (anger, fear, surprise...) yield
// Neutral with ok=false.
func Normalize(raw string) (Label, bool) {
	l, ok := labelTable[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return Neutral, false
	}
	return l, true
}

// Result is the fused decision for one turn.
type Result struct {
	Label      Label
	Transcript string
}

// Fuse returns text unless it is Neutral, in which case audio decides.
func Fuse(text, audio Label) Label {
	if text != Neutral {
		return text
	}
	return audio
}
