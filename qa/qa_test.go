package qa

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byBit-ovo/coral_lineage/lineage"
	"github.com/byBit-ovo/coral_lineage/retry"
	"github.com/byBit-ovo/coral_lineage/store"
)

type echoModel struct {
	answer string
	prompt string
	calls  int
}

func (m *echoModel) Name() string { return "fake/echo" }

func (m *echoModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.answer, nil
}

func newTestService(t *testing.T, model *echoModel) *Service {
	t.Helper()
	table, err := store.ReadTable(strings.NewReader("city,population\nOslo,700000\nBergen,285000\n"))
	require.NoError(t, err)
	return NewService(table, model, "secret", retry.Policy{MaxAttempts: 1}, time.Second)
}

func TestAnswer(t *testing.T) {
	model := &echoModel{answer: "  Oslo has the larger population.\n"}
	svc := newTestService(t, model)

	answer, err := svc.Answer(context.Background(), "secret", "Which city is bigger?")
	require.NoError(t, err)
	assert.Equal(t, "Oslo has the larger population.", answer)
	assert.Contains(t, model.prompt, "city | population")
	assert.Contains(t, model.prompt, "Bergen | 285000")
	assert.Contains(t, model.prompt, "Question: Which city is bigger?")
}

func TestAnswerRejectsWrongKey(t *testing.T) {
	model := &echoModel{answer: "x"}
	svc := newTestService(t, model)

	_, err := svc.Answer(context.Background(), "guess", "Which city is bigger?")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, model.calls)
}

func TestAnswerRequiresQuestion(t *testing.T) {
	model := &echoModel{answer: "x"}
	svc := newTestService(t, model)

	_, err := svc.Answer(context.Background(), "secret", "  ")
	assert.ErrorIs(t, err, lineage.ErrInputMissing)
	assert.Zero(t, model.calls)
}

func TestSetPreviewRows(t *testing.T) {
	svc := NewService(nil, nil, "k", retry.Policy{MaxAttempts: 1}, time.Second)
	svc.SetPreviewRows(0)
	assert.Equal(t, DefaultPreviewRows, svc.previewRows)
	svc.SetPreviewRows(5)
	assert.Equal(t, 5, svc.previewRows)
}
