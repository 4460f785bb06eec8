// Package qa answers free-form questions about a CSV table with a completion model.
package qa

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/byBit-ovo/coral_lineage/lineage"
	"github.com/byBit-ovo/coral_lineage/llm"
	"github.com/byBit-ovo/coral_lineage/retry"
	"github.com/byBit-ovo/coral_lineage/store"
)

const DefaultPreviewRows = 200

// ErrUnauthorized is returned when the caller's api key does not match.
var ErrUnauthorized = errors.New("unauthorized")

type Service struct {
	table       *store.Table
	model       llm.AIModel
	apiKey      string
	policy      retry.Policy
	timeout     time.Duration
	previewRows int
}

// NewService answers questions about table. Callers must present apiKey.
func NewService(table *store.Table, model llm.AIModel, apiKey string, policy retry.Policy, timeout time.Duration) *Service {
	return &Service{
		table:       table,
		model:       model,
		apiKey:      apiKey,
		policy:      policy,
		timeout:     timeout,
		previewRows: DefaultPreviewRows,
	}
}

// SetPreviewRows caps how many table rows go into a prompt. n <= 0 keeps the default.
func (s *Service) SetPreviewRows(n int) {
	if n > 0 {
		s.previewRows = n
	}
}

func (s *Service) Answer(ctx context.Context, apiKey, question string) (string, error) {
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.apiKey)) != 1 {
		return "", errors.Wrap(ErrUnauthorized, "invalid api key")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.Wrap(lineage.ErrInputMissing, "question")
	}

	prompt := llm.TablePrompt(s.table.Render(s.previewRows), question)
	answer, err := lineage.Complete(ctx, s.model, s.policy, s.timeout, prompt)
	if err != nil {
		return "", err
	}
	log.Info("question answered", zap.String("model", s.model.Name()), zap.Int("question_len", len(question)))
	return strings.TrimSpace(answer), nil
}
