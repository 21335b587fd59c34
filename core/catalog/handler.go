package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/api/weberr"
)

type ListView struct {
	Services []Service `json:"services"`
	Count    int       `json:"count"`
}

func HandleList(c *Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		services := c.List()
		return web.Respond(ctx, w, ListView{Services: services, Count: len(services)}, http.StatusOK)
	}
}

func HandleShow(c *Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id, err := web.ParamInt64(r, "id")
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		s, ok := c.Lookup(id)
		if !ok {
			return weberr.NotFound(fmt.Errorf("service[%d] not found", id))
		}

		return web.Respond(ctx, w, s, http.StatusOK)
	}
}
