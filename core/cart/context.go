package cart

import (
	"context"
	"errors"
)

type ctxKey int

const ledgerKey ctxKey = 1

func NewContext(ctx context.Context, l *Ledger) context.Context {
	return context.WithValue(ctx, ledgerKey, l)
}

func FromContext(ctx context.Context) (*Ledger, error) {
	l, ok := ctx.Value(ledgerKey).(*Ledger)
	if !ok || l == nil {
		return nil, errors.New("cart ledger missing from context")
	}
	return l, nil
}
