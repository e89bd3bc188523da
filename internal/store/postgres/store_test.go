package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlstore/internal/store"
)

func TestOpenTableCreatesRelation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client, err := NewWithPool(mock, true)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS url").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	tbl, err := client.OpenTable(context.Background(), "url")
	require.NoError(t, err)
	require.Equal(t, "url", tbl.Name())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenTableRejectsInjection(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client, err := NewWithPool(mock, true)
	require.NoError(t, err)

	_, err = client.OpenTable(context.Background(), "url; DROP TABLE url")
	require.ErrorIs(t, err, store.ErrInvalidTableName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutUpsertsCellsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client, err := NewWithPool(mock, false)
	require.NoError(t, err)
	tbl, err := client.OpenTable(context.Background(), "url")
	require.NoError(t, err)

	row := []byte("com.a/x")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO url").
		WithArgs(row, "u", []byte("u"), []byte("http://a.com/x")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO url").
		WithArgs(row, "u", []byte("i"), []byte("10.0.0.1")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	put := store.NewPut(row).
		Add("u", []byte("u"), []byte("http://a.com/x")).
		Add("u", []byte("i"), []byte("10.0.0.1"))
	require.NoError(t, tbl.Put(context.Background(), put))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client, err := NewWithPool(mock, false)
	require.NoError(t, err)
	tbl, err := client.OpenTable(context.Background(), "url")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO url").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = tbl.Put(context.Background(), store.NewPut([]byte("r")).Add("u", []byte("u"), []byte("v")))
	require.ErrorIs(t, err, store.ErrIO)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsScansBoolean(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client, err := NewWithPool(mock, false)
	require.NoError(t, err)
	tbl, err := client.OpenTable(context.Background(), "url")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs([]byte("com.a/x")).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := tbl.Exists(context.Background(), []byte("com.a/x"))
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndPutReportsConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client, err := NewWithPool(mock, false)
	require.NoError(t, err)
	tbl, err := client.OpenTable(context.Background(), "content")
	require.NoError(t, err)

	key := []byte("aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d")
	mock.ExpectExec("ON CONFLICT").
		WithArgs(key, "c", []byte("r"), []byte{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("ON CONFLICT").
		WithArgs(key, "c", []byte("r"), []byte{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	won, err := tbl.CheckAndPut(context.Background(), key, "c", []byte("r"), nil)
	require.NoError(t, err)
	require.True(t, won)

	won, err = tbl.CheckAndPut(context.Background(), key, "c", []byte("r"), []byte{})
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "dsn is required")
}
