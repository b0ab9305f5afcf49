package postgres

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"

	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// BeginCustomerTx opens a REPEATABLE READ transaction and takes the advisory
// lock serializing all loyalty writes for one (tenant, customer). Concurrent
// bills for the same customer queue here; different customers proceed in
// parallel.
func (db *DB) BeginCustomerTx(ctx context.Context, tenantID, customerID int64) (pgx.Tx, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, MapError(err)
	}

	k1, k2 := lockKeys(tenantID, customerID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, k1, k2); err != nil {
		_ = tx.Rollback(ctx)
		return nil, MapError(err)
	}

	return tx, nil
}

// lockKeys hashes the pair into the two-int4 advisory lock space. Keeping the
// tenant and customer in separate halves means ids past 2^31 cannot fold two
// different pairs onto one key the way a shift-and-xor scheme would.
func lockKeys(tenantID, customerID int64) (int32, int32) {
	return hash32(tenantID), hash32(customerID)
}

func hash32(id int64) int32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return int32(h.Sum32())
}

// MapError translates storage failures into the engine's error taxonomy.
// Serialization failures and deadlocks become ErrStorageConflict so the
// caller can retry the whole operation once; any other database error is a
// durable ErrStorageError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return xerrors.Wrap(xerrors.ErrStorageConflict, pgErr.Message)
		case "23505":
			return xerrors.Wrap(xerrors.ErrDuplicateEntry, pgErr.Message)
		}
		return xerrors.Wrap(xerrors.ErrStorageError, pgErr.Message)
	}
	return err
}
