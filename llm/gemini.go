package llm

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

func newGeminiModel(ctx context.Context, s Settings) (*GeminiModel, error) {
	cfg := &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiModel{client: client, model: s.Model, temperature: float32(s.Temperature)}, nil
}

func (g *GeminiModel) Name() string { return Gemini + "/" + g.model }

func (g *GeminiModel) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)},
	)
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}
	return result.Text(), nil
}
