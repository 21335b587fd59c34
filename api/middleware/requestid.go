package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/random"
)

const (
	RequestIDHeader = "X-Request-Id"

	requestIDLengthLimit = 128
)

type ctxKey int

const (
	reqIDKey ctxKey = iota + 1
	sessionIDKey
)

var reqID atomic.Int64

var reqPrefix = random.String(10)

// RequestID keeps the caller's X-Request-Id or assigns a new one, and echoes
// it on the response.
func RequestID() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = fmt.Sprintf("%s-%d", reqPrefix, reqID.Add(1))
			} else if len(id) > requestIDLengthLimit {
				id = id[:requestIDLengthLimit]
			}
			ctx = context.WithValue(ctx, reqIDKey, id)
			w.Header().Set(RequestIDHeader, id)

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func ContextRequestID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey).(string)
	return id
}
