package postgres

import (
	"errors"
	"testing"

	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	require.NoError(t, MapError(nil))

	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	require.ErrorIs(t, MapError(serialization), xerrors.ErrStorageConflict)

	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	require.ErrorIs(t, MapError(deadlock), xerrors.ErrStorageConflict)

	duplicate := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	require.ErrorIs(t, MapError(duplicate), xerrors.ErrDuplicateEntry)

	// Any other database failure is durable, not retryable.
	disk := &pgconn.PgError{Code: "53100", Message: "disk full"}
	require.ErrorIs(t, MapError(disk), xerrors.ErrStorageError)
	require.NotErrorIs(t, MapError(disk), xerrors.ErrStorageConflict)

	// Non-database errors pass through untouched.
	require.ErrorIs(t, MapError(pgx.ErrNoRows), pgx.ErrNoRows)
	plain := errors.New("context canceled")
	require.Equal(t, plain, MapError(plain))
}

func TestLockKeys(t *testing.T) {
	k1, k2 := lockKeys(1, 7)
	again1, again2 := lockKeys(1, 7)
	require.Equal(t, k1, again1)
	require.Equal(t, k2, again2)

	// (tenant<<32)^customer folds these two pairs onto one key once customer
	// ids pass 2^32; hashed halves keep them distinct.
	const big = int64(7) ^ (int64(1) << 32)
	a1, a2 := lockKeys(0, big)
	b1, b2 := lockKeys(1, 7)
	require.False(t, a1 == b1 && a2 == b2)

	c1, c2 := lockKeys(1, 8)
	require.False(t, b1 == c1 && b2 == c2)
}
