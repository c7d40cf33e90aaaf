// Package rtdb stores the document tree in Firebase Realtime Database.
package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"socialsync/internal/store"
)

// Store implements store.Store with the Admin SDK database client.
//
// Realtime Database nests children inside their parent's value, so Get on a
// node also returns its descendants. Record types decode only the fields
// they declare, which keeps reads equivalent to the other backends.
type Store struct {
	client *db.Client
}

func New(client *db.Client) *Store {
	return &Store{client: client}
}

// Open connects to the database at url using an initialized Firebase app.
func Open(ctx context.Context, app *firebase.App, url string) (*Store, error) {
	client, err := app.DatabaseWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open realtime database: %w", err)
	}
	return New(client), nil
}

func (s *Store) Get(ctx context.Context, path string, dst any) error {
	raw, err := s.raw(ctx, path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.raw(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	if err := s.client.NewRef(path).Set(ctx, value); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.NewRef(path).Update(ctx, fields); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	if err := s.client.NewRef(path).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Push uses the database's own push ids, which are time-ordered like store.NewKey.
func (s *Store) Push(ctx context.Context, parent string, value any) (string, error) {
	parent, err := clean(parent)
	if err != nil {
		return "", err
	}
	ref, err := s.client.NewRef(parent).Push(ctx, value)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", parent, err)
	}
	return ref.Key, nil
}

func (s *Store) List(ctx context.Context, parent string, opts store.ListOptions) ([]store.Snapshot, error) {
	parent, err := clean(parent)
	if err != nil {
		return nil, err
	}

	q := s.client.NewRef(parent).OrderByKey()
	if opts.Before != "" {
		// EndAt is inclusive, the boundary key is dropped below.
		q = q.EndAt(opts.Before)
	}
	if opts.Limit > 0 {
		n := opts.Limit
		if opts.Before != "" {
			n++
		}
		if opts.Descending {
			q = q.LimitToLast(n)
		} else {
			q = q.LimitToFirst(n)
		}
	}

	nodes, err := q.GetOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parent, err)
	}

	snaps := make([]store.Snapshot, 0, len(nodes))
	for _, node := range nodes {
		key := node.Key()
		if opts.Before != "" && key >= opts.Before {
			continue
		}
		var raw json.RawMessage
		if err := node.Unmarshal(&raw); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", parent, key, err)
		}
		snaps = append(snaps, store.Snapshot{Key: key, Path: store.Join(parent, key), Data: raw})
	}

	if opts.Descending {
		for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
			snaps[i], snaps[j] = snaps[j], snaps[i]
		}
	}
	if opts.Limit > 0 && len(snaps) > opts.Limit {
		snaps = snaps[:opts.Limit]
	}
	return snaps, nil
}

func (s *Store) raw(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := s.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, store.ErrNotFound
	}
	return raw, nil
}

func clean(path string) (string, error) {
	if err := store.ValidatePath(path); err != nil {
		return "", err
	}
	return strings.Trim(path, "/"), nil
}
