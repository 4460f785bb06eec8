package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byBit-ovo/coral_lineage/lineage"
)

var selectCode = regexp.QuoteMeta("SELECT code_id, code FROM code_records WHERE code_id = ?")

func newMockStore(t *testing.T) (*SQLCodeStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLCodeStore(db, "")
	require.NoError(t, err)
	return s, mock
}

func TestSQLCodeStoreGetCode(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectCode).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"code_id", "code"}).AddRow("c1", "INSERT INTO t SELECT * FROM s"))

	record, err := s.GetCode(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, &lineage.CodeRecord{ID: "c1", Code: "INSERT INTO t SELECT * FROM s"}, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCodeStoreNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectCode).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.GetCode(context.Background(), "missing")
	assert.ErrorIs(t, err, lineage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCodeStoreQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectCode).WithArgs("c1").WillReturnError(errors.New("connection reset"))

	_, err := s.GetCode(context.Background(), "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, lineage.ErrNotFound)
}

func TestNewSQLCodeStoreRejectsBadTable(t *testing.T) {
	_, err := NewSQLCodeStore(nil, "code; DROP TABLE users")
	assert.Error(t, err)
}

func TestOpenMySQLRequiresDSN(t *testing.T) {
	_, err := OpenMySQL("")
	assert.Error(t, err)

	db, err := OpenMySQL("user:pw@tcp(127.0.0.1:3306)/lineage")
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}
