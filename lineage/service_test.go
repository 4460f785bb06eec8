package lineage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byBit-ovo/coral_lineage/retry"
)

const goodReply = "Here you go:\n```json\n" + `{
  "Source_Column": "amount",
  "Source_Table": "orders",
  "Target_Column": "total_amount",
  "Target_Table": "daily_sales",
  "Transformation": "SUM"
}` + "\n```"

type memCodes map[string]string

func (m memCodes) GetCode(ctx context.Context, id string) (*CodeRecord, error) {
	code, ok := m[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "code %s", id)
	}
	return &CodeRecord{ID: id, Code: code}, nil
}

type memResults struct {
	mu   sync.Mutex
	docs map[string]*Result
	err  error
}

func newMemResults() *memResults { return &memResults{docs: map[string]*Result{}} }

func (m *memResults) SaveResult(ctx context.Context, r *Result) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[r.ID] = r
	return nil
}

func (m *memResults) GetResult(ctx context.Context, id string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.docs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "result %s", id)
	}
	return r, nil
}

// scriptedModel replays errs in order, then answers with reply.
type scriptedModel struct {
	errs    []error
	reply   string
	calls   int
	prompts []string
}

func (m *scriptedModel) Name() string { return "fake/model" }

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.calls <= len(m.errs) {
		return "", m.errs[m.calls-1]
	}
	return m.reply, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(5 * time.Millisecond)}
}

func newTestService(model *scriptedModel, results ResultStore, opts ...Option) *Service {
	codes := memCodes{"c1": "INSERT INTO daily_sales SELECT SUM(amount) AS total_amount FROM orders"}
	opts = append([]Option{WithRetryPolicy(fastPolicy())}, opts...)
	return NewService(codes, results, model, opts...)
}

func TestGenerateDecodesFencedBlock(t *testing.T) {
	model := &scriptedModel{reply: goodReply}
	svc := newTestService(model, nil)

	out, err := svc.Generate(context.Background(), "c1", false)
	require.NoError(t, err)

	assert.Equal(t, []Mapping{{
		SourceTable:    "orders",
		SourceColumn:   "amount",
		TargetTable:    "daily_sales",
		TargetColumn:   "total_amount",
		Transformation: "SUM",
	}}, out.Lineage)
	assert.Empty(t, out.DocumentID)
	assert.Equal(t, goodReply, out.Raw)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "FROM orders")
}

func TestGenerateUnknownCode(t *testing.T) {
	model := &scriptedModel{reply: goodReply}
	svc := newTestService(model, nil)

	_, err := svc.Generate(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, model.calls)
}

func TestGenerateRequiresCodeID(t *testing.T) {
	model := &scriptedModel{reply: goodReply}
	svc := newTestService(model, nil)

	_, err := svc.Generate(context.Background(), "   ", true)
	assert.ErrorIs(t, err, ErrInputMissing)
	assert.Zero(t, model.calls)
}

func TestGenerateParseFailureKeepsRawReply(t *testing.T) {
	reply := "Sorry, I cannot determine the lineage for this code."
	svc := newTestService(&scriptedModel{reply: reply}, nil)

	_, err := svc.Generate(context.Background(), "c1", false)
	require.ErrorIs(t, err, ErrParseFailure)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, reply, perr.Raw)
}

func TestGenerateMalformedFenceIsParseFailure(t *testing.T) {
	reply := "```json\n[\n" +
		`{"Source_Table": "orders", "Source_Column": "amount", "Target_Table": "daily_sales", "Target_Column": "total_amount", "Transformation": "SUM"},` + "\n" +
		`{"Source_Table": "orders", "Source_Column": "day", "Target_Table": "daily_sales", "Target_Column": "day", "Transformation": "copy"},` + "\n]\n```"
	results := newMemResults()
	svc := newTestService(&scriptedModel{reply: reply}, results)

	out, err := svc.Generate(context.Background(), "c1", true)
	require.ErrorIs(t, err, ErrParseFailure)
	assert.Nil(t, out)
	assert.Empty(t, results.docs)
}

func TestGeneratePersistsWithDistinctIDs(t *testing.T) {
	results := newMemResults()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	svc := newTestService(&scriptedModel{reply: goodReply}, results, WithClock(func() time.Time { return now }))

	first, err := svc.Generate(context.Background(), "c1", true)
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), "c1", true)
	require.NoError(t, err)

	assert.NotEmpty(t, first.DocumentID)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)

	saved, err := svc.Lookup(context.Background(), first.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "c1", saved.CodeID)
	assert.Equal(t, "fake/model", saved.Model)
	assert.Equal(t, first.Lineage, saved.Lineage)
	assert.Equal(t, now.UTC(), saved.CreatedAt)
}

func TestGeneratePersistFailureIsUpstream(t *testing.T) {
	results := newMemResults()
	results.err = errors.New("index unavailable")
	svc := newTestService(&scriptedModel{reply: goodReply}, results)

	_, err := svc.Generate(context.Background(), "c1", true)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGeneratePersistWithoutStore(t *testing.T) {
	svc := newTestService(&scriptedModel{reply: goodReply}, nil)

	_, err := svc.Generate(context.Background(), "c1", true)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGenerateRetriesTimeoutsThenSucceeds(t *testing.T) {
	model := &scriptedModel{
		errs:  []error{context.DeadlineExceeded, context.DeadlineExceeded},
		reply: goodReply,
	}
	svc := newTestService(model, nil)

	start := time.Now()
	out, err := svc.Generate(context.Background(), "c1", false)
	require.NoError(t, err)
	assert.Len(t, out.Lineage, 1)
	assert.Equal(t, 3, model.calls)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestGenerateGivesUpAfterThreeTimeouts(t *testing.T) {
	model := &scriptedModel{
		errs:  []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded},
		reply: goodReply,
	}
	svc := newTestService(model, nil)

	_, err := svc.Generate(context.Background(), "c1", false)
	assert.ErrorIs(t, err, ErrTransientTimeout)
	assert.Equal(t, 3, model.calls)
}

func TestGenerateDoesNotRetryUpstreamErrors(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("401 invalid api key")}, reply: goodReply}
	svc := newTestService(model, nil)

	_, err := svc.Generate(context.Background(), "c1", false)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrTransientTimeout)
	assert.Equal(t, 1, model.calls)
}

type blockingModel struct{ calls int }

func (m *blockingModel) Name() string { return "fake/slow" }

func (m *blockingModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerateBoundsEachAttempt(t *testing.T) {
	model := &blockingModel{}
	svc := NewService(memCodes{"c1": "SELECT 1"}, nil, model,
		WithTimeout(10*time.Millisecond),
		WithRetryPolicy(retry.Policy{MaxAttempts: 2, Backoff: retry.Constant(time.Millisecond)}))

	_, err := svc.Generate(context.Background(), "c1", false)
	assert.ErrorIs(t, err, ErrTransientTimeout)
	assert.Equal(t, 2, model.calls)
}

type brokenCodes struct{}

func (brokenCodes) GetCode(ctx context.Context, id string) (*CodeRecord, error) {
	return nil, errors.New("connection refused")
}

func TestGenerateStoreFailureIsUpstream(t *testing.T) {
	model := &scriptedModel{reply: goodReply}
	svc := NewService(brokenCodes{}, nil, model)

	_, err := svc.Generate(context.Background(), "c1", false)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Zero(t, model.calls)
}

func TestLookupUnknownResult(t *testing.T) {
	svc := newTestService(&scriptedModel{}, newMemResults())

	_, err := svc.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrInputMissing)
}
