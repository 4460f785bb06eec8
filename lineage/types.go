package lineage

import (
	"context"
	"time"
)

// CodeRecord is a stored SQL/code snippet. The service never writes it.
type CodeRecord struct {
	ID   string `json:"code_id"`
	Code string `json:"code"`
}

// Mapping describes how one target column derives from a source column.
type Mapping struct {
	SourceDatabase string `json:"Source_Database,omitempty"`
	SourceTable    string `json:"Source_Table"`
	SourceColumn   string `json:"Source_Column"`
	TargetDatabase string `json:"Target_Database,omitempty"`
	TargetTable    string `json:"Target_Table"`
	TargetColumn   string `json:"Target_Column"`
	Transformation string `json:"Transformation"`
}

// Result is a persisted lineage extraction. CodeID references exactly one
// CodeRecord.
type Result struct {
	ID        string    `json:"id"`
	CodeID    string    `json:"code_id"`
	Lineage   []Mapping `json:"lineage"`
	Model     string    `json:"model"`
	Raw       string    `json:"raw_response,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is what a single extraction hands back to its caller.
// DocumentID is empty unless the result was persisted.
type Outcome struct {
	Lineage    []Mapping
	Raw        string
	DocumentID string
	CreatedAt  time.Time
}

// CodeStore resolves code records. Implementations return ErrNotFound for
// unknown ids.
type CodeStore interface {
	GetCode(ctx context.Context, id string) (*CodeRecord, error)
}

// ResultStore persists lineage results.
type ResultStore interface {
	SaveResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, id string) (*Result, error)
}
