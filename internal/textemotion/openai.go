package textemotion

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const classifyPrompt = `
You label the emotion of a single user utterance.

Answer with ONLY a JSON object, no markdown:
{"label": "<one of: joy, sadness, anger, fear, surprise, disgust, neutral>"}

Rules:
1. Judge the words only.
2. If the emotion is unclear or mixed, answer "neutral".
3. Never add explanations.
`

type openaiResult struct {
	Label string `json:"label"`
}

// OpenAI asks a chat model for the label.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(client openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

func (o *OpenAI) Classify(ctx context.Context, text string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifyPrompt),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	log.Debug("Classified", "data", content)

	var out openaiResult
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", fmt.Errorf("unmarshal emotion label: %w (raw: %s)", err, content)
	}

	return out.Label, nil
}
