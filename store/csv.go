package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Table is a CSV file held in memory; the first row is the header.
type Table struct {
	Columns []string
	Rows    [][]string
}

func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()
	t, err := ReadTable(f)
	return t, errors.Wrapf(err, "read %s", path)
}

func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header row")
	}
	t := &Table{Columns: records[0], Rows: records[1:]}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, errors.Errorf("row %d has %d fields, header has %d", i+2, len(row), len(t.Columns))
		}
	}
	return t, nil
}

// Render writes the header and at most maxRows rows as pipe separated lines,
// followed by a note when rows were left out. maxRows <= 0 renders every row.
func (t *Table) Render(maxRows int) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(t.Columns, " | "))
	sb.WriteByte('\n')
	rows := t.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for _, row := range rows {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteByte('\n')
	}
	if len(rows) < len(t.Rows) {
		fmt.Fprintf(&sb, "... (%d more rows, %d in total)\n", len(t.Rows)-len(rows), len(t.Rows))
	}
	return sb.String()
}
