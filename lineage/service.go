// Package lineage asks a completion model for column-level lineage of stored
// SQL/code and optionally persists the answer.
package lineage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/byBit-ovo/coral_lineage/extract"
	"github.com/byBit-ovo/coral_lineage/llm"
	"github.com/byBit-ovo/coral_lineage/retry"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Service runs the lookup, prompt, complete, extract, persist sequence.
type Service struct {
	codes     CodeStore
	results   ResultStore
	model     llm.AIModel
	extractor extract.Extractor
	policy    retry.Policy
	timeout   time.Duration
	newID     func() string
	now       func() time.Time
}

type Option func(*Service)

func WithExtractor(e extract.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithTimeout bounds every single model call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

func WithClock(f func() time.Time) Option {
	return func(s *Service) { s.now = f }
}

// NewService wires a Service. results may be nil when nothing is ever persisted.
func NewService(codes CodeStore, results ResultStore, model llm.AIModel, opts ...Option) *Service {
	s := &Service{
		codes:     codes,
		results:   results,
		model:     model,
		extractor: extract.Default(),
		policy: retry.Policy{
			MaxAttempts: DefaultMaxAttempts,
			Backoff:     retry.Constant(DefaultRetryDelay),
		},
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate extracts lineage for the code record codeID, persisting it when
// persist is set.
func (s *Service) Generate(ctx context.Context, codeID string, persist bool) (*Outcome, error) {
	codeID = strings.TrimSpace(codeID)
	if codeID == "" {
		return nil, errors.Wrap(ErrInputMissing, "code id")
	}
	record, err := s.codes.GetCode(ctx, codeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrUpstream, "load code %s: %v", codeID, err)
	}

	reply, err := s.complete(ctx, llm.LineagePrompt(record.Code))
	if err != nil {
		return nil, err
	}

	mappings, err := s.parse(reply)
	if err != nil {
		log.Warn("lineage reply not parseable",
			zap.String("code_id", codeID),
			zap.String("model", s.model.Name()),
			zap.Error(err))
		return nil, err
	}

	out := &Outcome{Lineage: mappings, Raw: reply, CreatedAt: s.now().UTC()}
	if !persist {
		return out, nil
	}
	if s.results == nil {
		return nil, errors.Wrap(ErrUpstream, "no result store configured")
	}
	result := &Result{
		ID:        s.newID(),
		CodeID:    codeID,
		Lineage:   mappings,
		Model:     s.model.Name(),
		Raw:       reply,
		CreatedAt: out.CreatedAt,
	}
	if err := s.results.SaveResult(ctx, result); err != nil {
		return nil, errors.Wrapf(ErrUpstream, "save lineage result: %v", err)
	}
	out.DocumentID = result.ID
	log.Info("lineage result saved", zap.String("code_id", codeID), zap.String("document_id", result.ID))
	return out, nil
}

// Lookup returns a previously persisted result.
func (s *Service) Lookup(ctx context.Context, documentID string) (*Result, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, errors.Wrap(ErrInputMissing, "document id")
	}
	if s.results == nil {
		return nil, errors.Wrap(ErrNotFound, "no result store configured")
	}
	result, err := s.results.GetResult(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrUpstream, "load result %s: %v", documentID, err)
	}
	return result, nil
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	return Complete(ctx, s.model, s.policy, s.timeout, prompt)
}

func (s *Service) parse(reply string) ([]Mapping, error) {
	raw, err := s.extractor.Extract(reply)
	if err != nil {
		return nil, &ParseError{Raw: reply, Cause: err}
	}
	mappings, err := DecodeMappings(raw)
	if err != nil {
		return nil, &ParseError{Raw: reply, Cause: err}
	}
	return mappings, nil
}

// Complete calls model under policy, giving each attempt its own timeout.
// Exhausted timeouts become ErrTransientTimeout, other failures ErrUpstream.
func Complete(ctx context.Context, model llm.AIModel, policy retry.Policy, timeout time.Duration, prompt string) (string, error) {
	var reply string
	attempt := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		text, err := model.Complete(callCtx, prompt)
		if err != nil {
			log.Warn("model call failed",
				zap.String("model", model.Name()),
				zap.Int("attempt", attempt),
				zap.Bool("timeout", retry.IsTimeout(err)),
				zap.Error(err))
			return err
		}
		reply = text
		return nil
	})
	switch {
	case err == nil:
		return reply, nil
	case retry.IsTimeout(err):
		return "", errors.Wrapf(ErrTransientTimeout, "%s after %d attempts: %v", model.Name(), attempt, err)
	default:
		return "", errors.Wrapf(ErrUpstream, "%s: %v", model.Name(), err)
	}
}
