package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// migrate applies the idempotent schema and stamps its version. A database
// written by a newer build is refused rather than downgraded.
func migrate(ctx context.Context, db *sql.DB) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}

		version, err := readVersion(ctx, tx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, "INSERT INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(schemaVersion))
			if err != nil {
				return fmt.Errorf("stamp schema version: %w", err)
			}
			return nil
		case err != nil:
			return err
		case version > schemaVersion:
			return fmt.Errorf("state database schema %d is newer than supported %d", version, schemaVersion)
		case version < schemaVersion:
			_, err = tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE key = 'schema_version'", strconv.Itoa(schemaVersion))
			if err != nil {
				return fmt.Errorf("update schema version: %w", err)
			}
		}
		return nil
	})
}

func readVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	if err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
