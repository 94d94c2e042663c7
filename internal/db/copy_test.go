package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromSchema_EmptyRows(t *testing.T) {
	n, err := CopyFromSchema(context.TODO(), nil, "spatial", "counties", []string{"a"}, [][]any{}, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFromSchema_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"spatial", "counties"}, []string{"a", "b"}).WillReturnResult(5)

	rows := [][]any{{1, "x"}, {2, "y"}, {3, "z"}, {4, "w"}, {5, "v"}}
	n, err := CopyFromSchema(context.Background(), mock, "spatial", "counties", []string{"a", "b"}, rows, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Batches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"a"}
	mock.ExpectCopyFrom(pgx.Identifier{"spatial", "mobility"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"spatial", "mobility"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"spatial", "mobility"}, cols).WillReturnResult(1)

	rows := [][]any{{1}, {2}, {3}, {4}, {5}}
	n, err := CopyFromSchema(context.Background(), mock, "spatial", "mobility", cols, rows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"spatial", "counties"}, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFromSchema(context.Background(), mock, "spatial", "counties", []string{"a"}, [][]any{{1}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO spatial.counties")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE "spatial"."counties"`)).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	require.NoError(t, Truncate(context.Background(), mock, "spatial", "counties"))

	mock.ExpectExec("TRUNCATE").WillReturnError(fmt.Errorf("no such table"))
	err = Truncate(context.Background(), mock, "spatial", "counties")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncate spatial.counties")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecAll_StopsAtFirstFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE SCHEMA").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE").WillReturnError(fmt.Errorf("boom"))

	err = ExecAll(context.Background(), mock, "CREATE SCHEMA x", "CREATE TABLE x.y ()\n(more)", "never run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"CREATE TABLE x.y ()"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_NoDSN(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
}
