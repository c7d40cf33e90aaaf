package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. It backs tests and single-node development
// runs; wrap it with NewWatched to get subscriptions.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(ctx context.Context, path string, dst any) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	m.mu.RLock()
	data, ok := m.nodes[path]
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, dst)
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	path, err := cleanPath(path)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.nodes[path]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := EncodeValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(path)
	if raw != nil {
		m.nodes[path] = raw
	}
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged, err := MergeFields(m.nodes[path], fields)
	if err != nil {
		return err
	}
	m.nodes[path] = merged
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.deleteLocked(path)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Push(ctx context.Context, parent string, value any) (string, error) {
	if _, err := cleanPath(parent); err != nil {
		return "", err
	}
	key := NewKey()
	if err := m.Set(ctx, Join(parent, key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Memory) List(ctx context.Context, parent string, opts ListOptions) ([]Snapshot, error) {
	parent, err := cleanPath(parent)
	if err != nil {
		return nil, err
	}
	prefix := parent + "/"

	m.mu.RLock()
	var snaps []Snapshot
	for p, data := range m.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		key := p[len(prefix):]
		if strings.Contains(key, "/") {
			continue
		}
		if opts.Before != "" && key >= opts.Before {
			continue
		}
		snaps = append(snaps, Snapshot{Key: key, Path: p, Data: append(json.RawMessage(nil), data...)})
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if opts.Descending {
			return snaps[i].Key > snaps[j].Key
		}
		return snaps[i].Key < snaps[j].Key
	})

	if opts.Limit > 0 && len(snaps) > opts.Limit {
		snaps = snaps[:opts.Limit]
	}
	return snaps, nil
}

func (m *Memory) deleteLocked(path string) {
	delete(m.nodes, path)
	prefix := path + "/"
	for p := range m.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(m.nodes, p)
		}
	}
}
