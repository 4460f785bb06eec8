package llm

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Provider names accepted by NewAIModel.
const (
	OpenAI   = "openai"
	DeepSeek = "deepseek"
	Gemini   = "gemini"
	Ark      = "ark"
)

// DefaultModels is the model used per provider when Settings.Model is empty.
var DefaultModels = map[string]string{
	OpenAI:   "gpt-4o-mini",
	DeepSeek: "deepseek-chat",
	Gemini:   "gemini-2.5-flash",
	Ark:      "doubao-seed-1-6-lite-251015",
}

// AIModel is a hosted completion API.
type AIModel interface {
	// Complete sends prompt as a single user message and returns the reply text.
	// Implementations must honour ctx cancellation and deadlines.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name identifies the provider and model, e.g. "openai/gpt-4o-mini".
	Name() string
}

// Settings selects and configures a backend.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}

// NewAIModel builds the backend named by s.Provider.
func NewAIModel(ctx context.Context, s Settings) (AIModel, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider == "" {
		provider = OpenAI
	}
	if _, ok := DefaultModels[provider]; !ok {
		return nil, errors.Errorf("unknown llm provider %q", s.Provider)
	}
	if s.APIKey == "" {
		return nil, errors.Errorf("missing api key for llm provider %q", provider)
	}
	if s.Model == "" {
		s.Model = DefaultModels[provider]
	}

	switch provider {
	case DeepSeek:
		return newDeepseekModel(s)
	case Gemini:
		return newGeminiModel(ctx, s)
	case Ark:
		return newVolcanoModel(s), nil
	default:
		return newOpenAIModel(s), nil
	}
}

func emptyReply(name string) error {
	return errors.Errorf("%s returned no choices", name)
}
