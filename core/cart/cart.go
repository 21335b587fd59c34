// Package cart keeps the customer's line items and derives totals from them.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/core/catalog"
	"github.com/svenskhalsovard/storefront/storage"
	"github.com/svenskhalsovard/storefront/validate"
)

type PurchaseType string

const (
	OneTime      PurchaseType = "one-time"
	Subscription PurchaseType = "subscription"
)

func (p PurchaseType) Valid() bool {
	return p == OneTime || p == Subscription
}

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// storageKey is where the line items live inside the ledger's namespace.
const storageKey = "cart"

type Line struct {
	ID           string          `json:"id"`
	Service      catalog.Service `json:"service"`
	PurchaseType PurchaseType    `json:"purchaseType"`
	Quantity     int             `json:"quantity"`
}

// Prices resolves the current version of a service.
type Prices interface {
	Lookup(id int64) (catalog.Service, bool)
}

// Ledger holds at most one line per (service, purchase type). Every mutation
// is written through to the store.
type Ledger struct {
	store  storage.Store
	prices Prices
	ttl    time.Duration
	log    logrus.FieldLogger

	mu    sync.Mutex
	lines []Line
}

// Open loads the lines persisted in store, if any. prices may be nil, in
// which case totals use the service captured on each line.
func Open(ctx context.Context, store storage.Store, prices Prices, ttl time.Duration, log logrus.FieldLogger) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		prices: prices,
		ttl:    ttl,
		log:    log,
	}

	var lines []Line
	err := store.Get(ctx, storageKey, &lines)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading cart: %w", err)
	default:
		l.lines = lines
	}

	return l, nil
}

func (l *Ledger) Add(service catalog.Service, purchaseType PurchaseType) Line {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].Service.ID == service.ID && l.lines[i].PurchaseType == purchaseType {
			l.lines[i].Quantity++
			l.lines[i].Service = service
			l.persist()
			return l.lines[i]
		}
	}

	line := Line{
		ID:           validate.GenerateID(),
		Service:      service,
		PurchaseType: purchaseType,
		Quantity:     1,
	}
	l.lines = append(l.lines, line)
	l.persist()
	return line
}

func (l *Ledger) Remove(lineID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].ID == lineID {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			l.persist()
			return
		}
	}
}

// UpdateQuantity sets the quantity of a line. An unknown line is ignored.
func (l *Ledger) UpdateQuantity(lineID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].ID == lineID {
			l.lines[i].Quantity = quantity
			l.persist()
			return nil
		}
	}
	return nil
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = nil
	l.persist()
}

// Lines returns a copy of the line items, with each service refreshed from
// the catalog.
func (l *Ledger) Lines() []Line {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Line, len(l.lines))
	for i, ln := range l.lines {
		ln.Service = l.current(ln.Service)
		out[i] = ln
	}
	return out
}

// Line looks up a single line item.
func (l *Ledger) Line(lineID string) (Line, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ln := range l.lines {
		if ln.ID == lineID {
			ln.Service = l.current(ln.Service)
			return ln, true
		}
	}
	return Line{}, false
}

// Total is priced at read time from the catalog, not from what the service
// cost when it was added.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for _, ln := range l.lines {
		total += l.current(ln.Service).EffectivePrice() * ln.Quantity
	}
	return total
}

func (l *Ledger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ln := range l.lines {
		n += ln.Quantity
	}
	return n
}

func (l *Ledger) HasSubscriptionItems() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ln := range l.lines {
		if ln.PurchaseType == Subscription {
			return true
		}
	}
	return false
}

func (l *Ledger) current(s catalog.Service) catalog.Service {
	if l.prices == nil {
		return s
	}
	if cur, ok := l.prices.Lookup(s.ID); ok {
		return cur
	}
	return s
}

// persist must be called with mu held. A failed write leaves the in-memory
// cart authoritative; it is retried on the next mutation.
func (l *Ledger) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if len(l.lines) == 0 {
		err = l.store.Remove(ctx, storageKey)
	} else {
		err = l.store.Set(ctx, storageKey, l.lines, l.ttl)
	}
	if err != nil {
		l.log.WithError(err).Warn("persisting cart")
	}
}
