package checkout

import (
	"context"
	"errors"
)

type ctxKey int

const machineKey ctxKey = 1

func NewContext(ctx context.Context, m *Machine) context.Context {
	return context.WithValue(ctx, machineKey, m)
}

func FromContext(ctx context.Context) (*Machine, error) {
	m, ok := ctx.Value(machineKey).(*Machine)
	if !ok || m == nil {
		return nil, errors.New("checkout machine missing from context")
	}
	return m, nil
}
