package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// migration is one additive schema step. Steps must be idempotent: a store
// written by an older tool may already carry a column without having a
// schema_version row for it.
type migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{
		Version:     1,
		Description: "add fake_org_id to organizations",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return ensureColumn(ctx, tx, "organizations", "fake_org_id", "TEXT")
		},
	},
	{
		Version:     2,
		Description: "add organization coordinates",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if err := ensureColumn(ctx, tx, "organizations", "latitude", "REAL"); err != nil {
				return err
			}
			return ensureColumn(ctx, tx, "organizations", "longitude", "REAL")
		},
	},
	{
		Version:     3,
		Description: "index mrn hashes",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`CREATE INDEX IF NOT EXISTS idx_patient_org_mrn_hash ON patient_org_mrn(original_mrn_hash)`)
			return err
		},
	},
}

// migrate applies pending migrations in version order.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	pending := append([]migration(nil), migrations...)
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, description) VALUES (?, ?)`,
		m.Version, m.Description); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureColumn adds a column when it is missing. Existing columns are never
// dropped or renamed.
func ensureColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	exists, err := hasColumn(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
