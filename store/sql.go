package store

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/byBit-ovo/coral_lineage/lineage"
)

const DefaultCodeTable = "code_records"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenMySQL opens a pool for dsn, making sure time columns are parsed.
func OpenMySQL(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("mysql dsn is empty")
	}
	if !strings.Contains(dsn, "parseTime") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "parseTime=true&loc=Local"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return db, nil
}

// SQLCodeStore reads code records from a table with code_id and code columns.
type SQLCodeStore struct {
	db    *sql.DB
	query string
}

func NewSQLCodeStore(db *sql.DB, table string) (*SQLCodeStore, error) {
	if table == "" {
		table = DefaultCodeTable
	}
	if !identPattern.MatchString(table) {
		return nil, errors.Errorf("invalid code table name %q", table)
	}
	return &SQLCodeStore{
		db:    db,
		query: "SELECT code_id, code FROM " + table + " WHERE code_id = ?",
	}, nil
}

func (s *SQLCodeStore) GetCode(ctx context.Context, id string) (*lineage.CodeRecord, error) {
	record := &lineage.CodeRecord{}
	err := s.db.QueryRowContext(ctx, s.query, id).Scan(&record.ID, &record.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(lineage.ErrNotFound, "code record %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select code record %s", id)
	}
	return record, nil
}
