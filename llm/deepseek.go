package llm

import (
	"context"

	"github.com/go-deepseek/deepseek"
	"github.com/go-deepseek/deepseek/request"
	"github.com/pkg/errors"
)

type DeepseekModel struct {
	client      deepseek.Client
	model       string
	temperature float32
}

func newDeepseekModel(s Settings) (*DeepseekModel, error) {
	client, err := deepseek.NewClient(s.APIKey)
	if err != nil {
		return nil, errors.Wrap(err, "create deepseek client")
	}
	return &DeepseekModel{client: client, model: s.Model, temperature: float32(s.Temperature)}, nil
}

func (ds *DeepseekModel) Name() string { return DeepSeek + "/" + ds.model }

func (ds *DeepseekModel) newRequest(prompt string) *request.ChatCompletionsRequest {
	temperature := ds.temperature
	return &request.ChatCompletionsRequest{
		Model:       ds.model,
		Stream:      false,
		Temperature: &temperature,
		Messages: []*request.Message{
			{
				Role:    "user",
				Content: prompt,
			},
		},
	}
}

func (ds *DeepseekModel) Complete(ctx context.Context, prompt string) (string, error) {
	chatResp, err := ds.client.CallChatCompletionsChat(ctx, ds.newRequest(prompt))
	if err != nil {
		return "", errors.Wrap(err, "deepseek chat completion")
	}
	if len(chatResp.Choices) == 0 {
		return "", emptyReply(ds.Name())
	}
	return chatResp.Choices[0].Message.Content, nil
}
