package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed services.json
var staticServices []byte

// StaticSource serves the offerings bundled with the binary.
type StaticSource struct{}

func (StaticSource) Load(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := json.Unmarshal(staticServices, &services); err != nil {
		return nil, fmt.Errorf("decoding bundled services: %w", err)
	}
	return services, nil
}
