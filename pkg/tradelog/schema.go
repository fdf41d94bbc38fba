package tradelog

import (
	"database/sql"
	"fmt"
)

func initSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	hasUpdatedAt, err := tableHasColumn(tx, "kv", "updated_at")
	if err != nil {
		return err
	}
	if !hasUpdatedAt {
		if err := exec(tx, "ALTER TABLE kv ADD COLUMN updated_at DATETIME"); err != nil {
			return err
		}
	}

	if err := migrateLegacyKeys(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// migrateLegacyKeys renames trading_<date> keys written by the first widget
// release. Keys already present under the new name win.
func migrateLegacyKeys(tx *sql.Tx) error {
	return exec(tx, `
		UPDATE kv SET key = 'journal:' || substr(key, 9)
		WHERE key GLOB 'trading_[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]'
		AND NOT EXISTS (SELECT 1 FROM kv AS other WHERE other.key = 'journal:' || substr(kv.key, 9))
	`)
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

func tableHasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
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
			defaultV  sql.NullString
			primaryKy int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultV, &primaryKy); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
