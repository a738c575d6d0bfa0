package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	t.Parallel()

	o := Options{User: "app", Pass: "secret", Host: "db", Port: "3306", Name: "auction"}
	require.Equal(t, "app:secret@tcp(db:3306)/auction?charset=utf8mb4&parseTime=true&loc=UTC", o.DSN())

	o.Pass = ""
	require.Equal(t, "app@tcp(db:3306)/auction?charset=utf8mb4&parseTime=true&loc=UTC", o.DSN())
}

func TestEnsureSchemaRunsEveryStatement(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS auctions")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS bids")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_log")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS event_outbox")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
