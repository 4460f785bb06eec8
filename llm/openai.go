package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
)

type OpenAIModel struct {
	client      openai.Client
	model       string
	temperature float64
}

func newOpenAIModel(s Settings) *OpenAIModel {
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		// retries are driven by the caller's policy
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &OpenAIModel{
		client:      openai.NewClient(opts...),
		model:       s.Model,
		temperature: s.Temperature,
	}
}

func (m *OpenAIModel) Name() string { return OpenAI + "/" + m.model }

func (m *OpenAIModel) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(m.temperature),
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", emptyReply(m.Name())
	}
	return resp.Choices[0].Message.Content, nil
}
