package reply

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const DefaultSystemPrompt = "You are a kind and supportive AI companion."

// OpenAI generates a companion reply to the user's words.
type OpenAI struct {
	client openai.Client
	model  string
	system string
}

func NewOpenAI(client openai.Client, model, system string) *OpenAI {
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &OpenAI{client: client, model: model, system: system}
}

func (o *OpenAI) Reply(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.system),
			openai.UserMessage(prompt),
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

	log.Debug("Reply ready", "model", o.model, "chars", len(content))

	return content, nil
}
