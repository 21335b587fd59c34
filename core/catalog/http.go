package catalog

import "context"

// Lister is implemented by the backend gateway.
type Lister interface {
	ListServices(ctx context.Context) ([]Service, error)
}

// HTTPSource loads offerings from the backend's service listing.
type HTTPSource struct {
	Lister Lister
}

func (s HTTPSource) Load(ctx context.Context) ([]Service, error) {
	return s.Lister.ListServices(ctx)
}
