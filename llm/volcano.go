package llm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	volModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// VolcanoModel talks to Volcano Engine Ark. Model is an Ark model or
// endpoint id, see https://www.volcengine.com/docs/82379/1330310.
type VolcanoModel struct {
	client      *arkruntime.Client
	model       string
	temperature float32
}

func newVolcanoModel(s Settings) *VolcanoModel {
	return &VolcanoModel{
		client:      arkruntime.NewClientWithApiKey(s.APIKey),
		model:       s.Model,
		temperature: float32(s.Temperature),
	}
}

func (v *VolcanoModel) Name() string { return Ark + "/" + v.model }

func (v *VolcanoModel) newRequest(prompt string) volModel.CreateChatCompletionRequest {
	return volModel.CreateChatCompletionRequest{
		Model:       v.model,
		Temperature: volcengine.Float32(v.temperature),
		Messages: []*volModel.ChatCompletionMessage{
			{
				Role: volModel.ChatMessageRoleUser,
				Content: &volModel.ChatCompletionMessageContent{
					StringValue: volcengine.String(prompt),
				},
			},
		},
	}
}

func (v *VolcanoModel) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := v.client.CreateChatCompletion(ctx, v.newRequest(prompt))
	if err != nil {
		return "", errors.Wrap(err, "ark chat completion")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil ||
		resp.Choices[0].Message.Content.StringValue == nil {
		return "", emptyReply(v.Name())
	}
	return *resp.Choices[0].Message.Content.StringValue, nil
}
