// Package pgstore keeps the document tree in a single PostgreSQL table,
// one row per path.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"socialsync/internal/store"
)

// Store implements store.Store on the documents table created by the
// database migrations.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type row struct {
	Key  string `db:"key"`
	Path string `db:"path"`
	Data []byte `db:"data"`
}

func (s *Store) Get(ctx context.Context, path string, dst any) error {
	path, err := clean(path)
	if err != nil {
		return err
	}

	var data []byte
	err = s.db.GetContext(ctx, &data, `SELECT data FROM documents WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return json.Unmarshal(data, dst)
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	path, err := clean(path)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM documents WHERE path = $1)`, path); err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return exists, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	raw, err := store.EncodeValue(value)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteTree(ctx, tx, path); err != nil {
		return err
	}
	if raw != nil {
		if err := upsert(ctx, tx, path, raw); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Update locks the row while merging so concurrent field updates on the
// same node do not overwrite each other.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.GetContext(ctx, &current, `SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	merged, err := store.MergeFields(current, fields)
	if err != nil {
		return err
	}
	if err := upsert(ctx, tx, path, merged); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	return deleteTree(ctx, s.db, path)
}

func (s *Store) Push(ctx context.Context, parent string, value any) (string, error) {
	if _, err := clean(parent); err != nil {
		return "", err
	}
	key := store.NewKey()
	if err := s.Set(ctx, store.Join(parent, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) List(ctx context.Context, parent string, opts store.ListOptions) ([]store.Snapshot, error) {
	parent, err := clean(parent)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := []any{parent}
	sb.WriteString(`SELECT key, path, data FROM documents WHERE parent = $1`)
	if opts.Before != "" {
		args = append(args, opts.Before)
		sb.WriteString(fmt.Sprintf(` AND key COLLATE "C" < $%d`, len(args)))
	}
	if opts.Descending {
		sb.WriteString(` ORDER BY key COLLATE "C" DESC`)
	} else {
		sb.WriteString(` ORDER BY key COLLATE "C" ASC`)
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sb.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", parent, err)
	}

	snaps := make([]store.Snapshot, len(rows))
	for i, r := range rows {
		snaps[i] = store.Snapshot{Key: r.Key, Path: r.Path, Data: r.Data}
	}
	return snaps, nil
}

func clean(path string) (string, error) {
	if err := store.ValidatePath(path); err != nil {
		return "", err
	}
	return strings.Trim(path, "/"), nil
}

func upsert(ctx context.Context, ext sqlx.ExtContext, path string, data []byte) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO documents (path, parent, key, data, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, NOW())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		path, store.Parent(path), store.Base(path), string(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func deleteTree(ctx context.Context, ext sqlx.ExtContext, path string) error {
	_, err := ext.ExecContext(ctx,
		`DELETE FROM documents WHERE path = $1 OR starts_with(path, $2)`,
		path, path+"/")
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
