package stream

import (
	"context"
	"fmt"
	"log"
	"sync"

	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/store"
)

// Collection names mirror the backing document collections.
const (
	CollectionProducts = "products"
	CollectionSales    = "sales"
)

// Signals is the change-notification transport: Notify announces that a
// collection changed, Subscribe registers a callback to run on every such
// announcement. Payloads are not carried over the transport; subscribers
// reload the collection and receive it as a full snapshot.
type Signals interface {
	Notify(ctx context.Context, collection string) error
	Subscribe(ctx context.Context, collection string, fn func()) (func(), error)
}

// Broker is an in-process Signals implementation used in dev mode and tests.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]func())}
}

func (b *Broker) Notify(_ context.Context, collection string) error {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.subs[collection]))
	for _, fn := range b.subs[collection] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, collection string, fn func()) (func(), error) {
	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[int]func())
	}
	id := b.nextID
	b.nextID++
	b.subs[collection][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs[collection], id)
		b.mu.Unlock()
	}, nil
}

var _ Signals = (*Broker)(nil)

// Source turns change signals into full-snapshot subscriptions: subscribers
// get the current collection contents immediately, then again after every
// change announcement. A reload failure is reported through the fault hook
// and the previous snapshot stands; subscribers are never handed partial data.
type Source struct {
	repo    store.Repository
	signals Signals
	onFault func(collection string, err error)
}

func NewSource(repo store.Repository, signals Signals, onFault func(collection string, err error)) *Source {
	if onFault == nil {
		onFault = func(collection string, err error) {
			log.Printf("[stream] WARN: %s snapshot reload failed: %v", collection, err)
		}
	}
	return &Source{repo: repo, signals: signals, onFault: onFault}
}

func (s *Source) SubscribeCatalog(ctx context.Context, fn func([]domain.Product)) (func(), error) {
	deliver := func() {
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			s.onFault(CollectionProducts, fmt.Errorf("list products: %w", err))
			return
		}
		fn(products)
	}

	unsubscribe, err := s.signals.Subscribe(ctx, CollectionProducts, deliver)
	if err != nil {
		return nil, err
	}
	deliver()
	return unsubscribe, nil
}

func (s *Source) SubscribeLedger(ctx context.Context, fn func([]domain.Sale)) (func(), error) {
	deliver := func() {
		sales, err := s.repo.ListSales(ctx)
		if err != nil {
			s.onFault(CollectionSales, fmt.Errorf("list sales: %w", err))
			return
		}
		fn(sales)
	}

	unsubscribe, err := s.signals.Subscribe(ctx, CollectionSales, deliver)
	if err != nil {
		return nil, err
	}
	deliver()
	return unsubscribe, nil
}
