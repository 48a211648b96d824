package identity

import (
	"context"
	"sync"
)

const (
	EventSignedIn  = "signed_in"
	EventSignedOut = "signed_out"
)

// Event is one identity-provider notification. SubjectID is set only for
// signed-in events.
type Event struct {
	Type      string `json:"type"`
	SubjectID string `json:"subject_id,omitempty"`
}

func SignedIn(subjectID string) Event {
	return Event{Type: EventSignedIn, SubjectID: subjectID}
}

func SignedOut() Event {
	return Event{Type: EventSignedOut}
}

// Source delivers identity events to a callback. The returned handle must be
// called to release the subscription; after it returns no further callbacks
// are started.
type Source interface {
	Subscribe(ctx context.Context, fn func(Event)) (func(), error)
}

// Publisher is the write side used by the login/logout path.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broker is an in-process Source/Publisher used in dev mode and tests.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]func(Event))}
}

func (b *Broker) Subscribe(_ context.Context, fn func(Event)) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}

func (b *Broker) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
	return nil
}

var (
	_ Source    = (*Broker)(nil)
	_ Publisher = (*Broker)(nil)
)
