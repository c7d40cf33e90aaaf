package store

import (
	"context"
	"sync"
)

// Bus carries change events between writers and subscribers. Topics are
// parent paths.
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topic string, fn Handler) (Subscription, error)
}

// LocalBus delivers events inside one process. Each subscription owns a
// goroutine and an unbounded mailbox, so Publish never waits on a slow
// handler and a handler may write to the topic it is watching.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string]map[*localSub]struct{}
}

// NewLocalBus creates an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[*localSub]struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, ev Event) error {
	b.mu.RLock()
	targets := make([]*localSub, 0, len(b.subs[topic]))
	for s := range b.subs[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(ev)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, topic string, fn Handler) (Subscription, error) {
	topic, err := cleanPath(topic)
	if err != nil {
		return nil, err
	}

	s := &localSub{
		bus:      b,
		topic:    topic,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*localSub]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	go s.run(fn)
	return s, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *LocalBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *LocalBus) remove(s *localSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.topic], s)
	if len(b.subs[s.topic]) == 0 {
		delete(b.subs, s.topic)
	}
}

type localSub struct {
	bus   *LocalBus
	topic string

	mu      sync.Mutex
	pending []Event

	signal   chan struct{}
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
}

func (s *localSub) enqueue(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *localSub) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Event{}, false
	}
	ev := s.pending[0]
	s.pending[0] = Event{}
	s.pending = s.pending[1:]
	return ev, true
}

func (s *localSub) run(fn Handler) {
	defer close(s.finished)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case <-s.done:
				return
			default:
			}
			fn(ev)
		}
	}
}

func (s *localSub) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
	<-s.finished
}
