package policy

import (
	"fmt"

	"moodvox/internal/emotion"
)

const (
	ComfortMessage = "I'm here for you. Let's do something uplifting together."
	CalmAsset      = "calm.mp3"
)

// Action describes what to do in response to a turn. It is one of
// PlayFixedMessage or GenerateAndSpeak.
type Action interface {
	fmt.Stringer
	action()
}

// PlayFixedMessage speaks Text verbatim, then plays the named audio asset.
type PlayFixedMessage struct {
	Text  string `json:"text"`
	Asset string `json:"asset"`
}

func (PlayFixedMessage) action() {}

func (a PlayFixedMessage) String() string {
	return fmt.Sprintf("play_fixed_message(asset=%s)", a.Asset)
}

// GenerateAndSpeak asks the reply generator for a response to Context and
// speaks the result.
type GenerateAndSpeak struct {
	Context string `json:"context"`
}

func (GenerateAndSpeak) action() {}

func (a GenerateAndSpeak) String() string {
	return "generate_and_speak"
}

// Decide maps a fused result to an action. Happy and Neutral share a branch.
func Decide(r emotion.Result) Action {
	if r.Label == emotion.Sad {
		return PlayFixedMessage{Text: ComfortMessage, Asset: CalmAsset}
	}
	return GenerateAndSpeak{Context: r.Transcript}
}
