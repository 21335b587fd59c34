package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/core/cart"
	"github.com/svenskhalsovard/storefront/core/checkout"
	"github.com/svenskhalsovard/storefront/storage"
)

type entry struct {
	store    *Store
	lastSeen time.Time
}

// Registry keeps one Store per session. Each session persists its cart in
// its own namespace, so an evicted session gets its cart back on the next
// request while its checkout starts over.
type Registry struct {
	backend storage.Backend
	prices  cart.Prices
	gw      checkout.Gateway
	cartTTL time.Duration
	idle    time.Duration
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
}

func NewRegistry(backend storage.Backend, prices cart.Prices, gw checkout.Gateway, cartTTL, idle time.Duration, log logrus.FieldLogger) *Registry {
	return &Registry{
		backend: backend,
		prices:  prices,
		gw:      gw,
		cartTTL: cartTTL,
		idle:    idle,
		log:     log,
		now:     time.Now,
		stores:  make(map[string]*entry),
	}
}

func namespace(session string) string {
	return "session:" + session
}

// Get returns the store of session, opening it on first use. Opening reads
// storage, so it runs without the registry lock; when two requests race to
// open the same session the first one inserted wins.
func (r *Registry) Get(ctx context.Context, session string) (*Store, error) {
	r.mu.Lock()
	if e, ok := r.stores[session]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.store, nil
	}
	r.mu.Unlock()

	log := r.log.WithField("session", session)
	s, err := New(ctx, r.backend.Namespace(namespace(session)), r.prices, r.gw, r.cartTTL, log)
	if err != nil {
		return nil, fmt.Errorf("opening store for session[%s]: %w", session, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.stores[session]; ok {
		e.lastSeen = r.now()
		return e.store, nil
	}
	r.stores[session] = &entry{store: s, lastSeen: r.now()}
	return s, nil
}

// Forget drops session and everything it persisted.
func (r *Registry) Forget(ctx context.Context, session string) error {
	r.mu.Lock()
	delete(r.stores, session)
	r.mu.Unlock()

	if err := r.backend.Namespace(namespace(session)).Clear(ctx); err != nil {
		return fmt.Errorf("clearing session[%s]: %w", session, err)
	}
	return nil
}

// Evict drops the stores not used since before now minus the idle period and
// reports how many were dropped. Persisted carts are kept.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.stores {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.stores, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.stores)
}

// Run evicts idle stores every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(r.now()); n > 0 {
				r.log.WithField("count", n).Debug("evicted idle sessions")
			}
		}
	}
}
