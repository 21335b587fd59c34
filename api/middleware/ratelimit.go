package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/api/weberr"
	"github.com/svenskhalsovard/storefront/rate"
)

// RateLimit rejects a client, identified by its remote address, once it has
// used up its burst.
func RateLimit(l *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			client := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				client = host
			}

			if !l.Check(client) {
				return weberr.TooManyRequests(
					fmt.Errorf("client[%s] exceeded the rate limit", client),
					weberr.WithFields(map[string]interface{}{"client": client}),
				)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
