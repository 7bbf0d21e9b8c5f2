package sqlite

import (
	"context"
	"fmt"
)

// Load returns the stored manifest. An empty table is an empty manifest.
func (b *Backend) Load(ctx context.Context) (map[string]string, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT iteration_id, parent_id FROM manifest")
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	parents := map[string]string{}
	for rows.Next() {
		var id, parent string
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, fmt.Errorf("scan manifest: %w", err)
		}
		parents[id] = parent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parents, nil
}

// Save replaces the stored manifest in one transaction.
func (b *Backend) Save(ctx context.Context, parents map[string]string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin manifest save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM manifest"); err != nil {
		return fmt.Errorf("clear manifest: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO manifest (iteration_id, parent_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare manifest insert: %w", err)
	}
	defer stmt.Close()
	for id, parent := range parents {
		if _, err := stmt.ExecContext(ctx, id, parent); err != nil {
			return fmt.Errorf("insert manifest %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manifest save: %w", err)
	}
	return nil
}
