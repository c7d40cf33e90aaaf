package store

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
)

// Watched wraps a Store and announces every successful write on a Bus, on
// the topic of the written node's parent. It implements Client.
//
// Events are published after the write returns, so a subscriber never sees
// a change the store has not accepted. A failed publish is logged and does
// not fail the write.
type Watched struct {
	Store
	bus Bus
}

// NewWatched decorates base with change notifications delivered through bus.
func NewWatched(base Store, bus Bus) *Watched {
	return &Watched{Store: base, bus: bus}
}

func (w *Watched) Set(ctx context.Context, path string, value any) error {
	existed, _ := w.Store.Exists(ctx, path)
	if err := w.Store.Set(ctx, path, value); err != nil {
		return err
	}

	raw, err := EncodeValue(value)
	if err != nil {
		return nil
	}
	switch {
	case raw == nil && existed:
		w.publish(ctx, ChildRemoved, path, nil)
	case raw == nil:
	case existed:
		w.publish(ctx, ChildChanged, path, raw)
	default:
		w.publish(ctx, ChildAdded, path, raw)
	}
	return nil
}

func (w *Watched) Update(ctx context.Context, path string, fields map[string]any) error {
	existed, _ := w.Store.Exists(ctx, path)
	if err := w.Store.Update(ctx, path, fields); err != nil {
		return err
	}

	var raw json.RawMessage
	if err := w.Store.Get(ctx, path, &raw); err != nil {
		logging.For("Watched").WithError(err).WithField("path", path).Warn("Update: reload for event FAILED")
		return nil
	}
	if existed {
		w.publish(ctx, ChildChanged, path, raw)
	} else {
		w.publish(ctx, ChildAdded, path, raw)
	}
	return nil
}

func (w *Watched) Delete(ctx context.Context, path string) error {
	existed, _ := w.Store.Exists(ctx, path)
	if err := w.Store.Delete(ctx, path); err != nil {
		return err
	}
	if existed {
		w.publish(ctx, ChildRemoved, path, nil)
	}
	return nil
}

func (w *Watched) Push(ctx context.Context, parent string, value any) (string, error) {
	key, err := w.Store.Push(ctx, parent, value)
	if err != nil {
		return "", err
	}
	if raw, err := EncodeValue(value); err == nil && raw != nil {
		w.publish(ctx, ChildAdded, Join(parent, key), raw)
	}
	return key, nil
}

// Subscribe watches the direct children of parent.
func (w *Watched) Subscribe(ctx context.Context, parent string, fn Handler) (Subscription, error) {
	parent, err := cleanPath(parent)
	if err != nil {
		return nil, err
	}
	return w.bus.Subscribe(ctx, parent, fn)
}

func (w *Watched) publish(ctx context.Context, typ EventType, path string, data json.RawMessage) {
	path, err := cleanPath(path)
	if err != nil {
		return
	}
	parent := Parent(path)
	if parent == "" {
		return
	}

	ev := Event{Type: typ, Parent: parent, Key: Base(path), Data: data}
	if err := w.bus.Publish(ctx, parent, ev); err != nil {
		logging.For("Watched").WithError(err).WithFields(logrus.Fields{
			"topic": parent,
			"type":  typ,
		}).Warn("Publish FAILED")
	}
}
