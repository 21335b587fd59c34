// Package storefront bundles the per-customer state: one cart ledger and the
// checkout machine that reads it.
package storefront

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/core/cart"
	"github.com/svenskhalsovard/storefront/core/checkout"
	"github.com/svenskhalsovard/storefront/storage"
)

type Store struct {
	Cart     *cart.Ledger
	Checkout *checkout.Machine
}

// New opens the cart persisted in st and builds a fresh checkout on top of it.
// cartTTL bounds how long an untouched cart is kept by the store.
func New(ctx context.Context, st storage.Store, prices cart.Prices, gw checkout.Gateway, cartTTL time.Duration, log logrus.FieldLogger) (*Store, error) {
	l, err := cart.Open(ctx, st, prices, cartTTL, log)
	if err != nil {
		return nil, fmt.Errorf("opening cart: %w", err)
	}

	return &Store{
		Cart:     l,
		Checkout: checkout.New(l, gw, log),
	}, nil
}

// NewContext attaches both halves of s to ctx for the handlers.
func NewContext(ctx context.Context, s *Store) context.Context {
	ctx = cart.NewContext(ctx, s.Cart)
	return checkout.NewContext(ctx, s.Checkout)
}
