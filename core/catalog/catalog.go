// Package catalog holds the purchasable service offerings of the storefront.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

type Service struct {
	ID                   int64    `json:"id"`
	Name                 string   `json:"name"`
	ShortDescription     string   `json:"shortDescription"`
	Description          string   `json:"description"`
	Price                int      `json:"price"`
	DiscountedPrice      *int     `json:"discountedPrice,omitempty"`
	IsSubscription       bool     `json:"isSubscription"`
	SubscriptionInterval string   `json:"subscriptionInterval,omitempty"`
	Features             []string `json:"features,omitempty"`
	Image                string   `json:"image"`
}

// EffectivePrice is the discounted price when one is set, otherwise the base price.
// A zero discount is treated as no discount.
func (s Service) EffectivePrice() int {
	if s.DiscountedPrice != nil && *s.DiscountedPrice > 0 {
		return *s.DiscountedPrice
	}
	return s.Price
}

// Source loads the full list of offerings.
type Source interface {
	Load(ctx context.Context) ([]Service, error)
}

// Catalog is an in-memory view of a Source. Reads never touch the source.
type Catalog struct {
	source Source
	log    logrus.FieldLogger

	mu       sync.RWMutex
	services []Service
	byID     map[int64]Service
}

func New(source Source, log logrus.FieldLogger) *Catalog {
	return &Catalog{
		source: source,
		log:    log,
		byID:   make(map[int64]Service),
	}
}

// Refresh replaces the loaded offerings. On error the previous ones are kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	services, err := c.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading services: %w", err)
	}

	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })

	byID := make(map[int64]Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}

	c.mu.Lock()
	c.services = services
	c.byID = byID
	c.mu.Unlock()

	c.log.WithField("count", len(services)).Debug("catalog refreshed")
	return nil
}

func (c *Catalog) List() []Service {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

func (c *Catalog) Lookup(id int64) (Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.byID[id]
	return s, ok
}
