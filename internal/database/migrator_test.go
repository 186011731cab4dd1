package database

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"002_withdrawals.up.sql": {Data: []byte("CREATE TABLE withdrawals (id BIGSERIAL);")},
		"001_terminals.up.sql":   {Data: []byte("CREATE TABLE terminals (id TEXT);")},
		"001_terminals.down.sql": {Data: []byte("DROP TABLE terminals;")},
		"README.md":              {Data: []byte("notes")},
	}
}

func TestListMigrations(t *testing.T) {
	names, err := ListMigrations(testFS(), ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_terminals.up.sql", "002_withdrawals.up.sql"}, names)
}

func TestMigrator_ApplySkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_terminals.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE withdrawals`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs("002_withdrawals.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	migrator := NewMigrator(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, migrator.Apply(context.Background(), testFS()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_ApplyRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE terminals`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	migrator := NewMigrator(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = migrator.Apply(context.Background(), testFS())
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
