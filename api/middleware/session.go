package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/core/storefront"
	"github.com/svenskhalsovard/storefront/validate"
)

// sessionField names the stable storefront id kept in the scs session. The
// scs token itself changes whenever the session is renewed.
const sessionField = "sid"

// Storefront loads the caller's store from reg and puts its cart and checkout
// in the request context. A session without an id is given one.
func Storefront(sm *scs.SessionManager, reg *storefront.Registry) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			sid := sm.GetString(ctx, sessionField)
			if sid == "" {
				sid = validate.GenerateID()
				sm.Put(ctx, sessionField, sid)
			}

			s, err := reg.Get(ctx, sid)
			if err != nil {
				return fmt.Errorf("loading storefront: %w", err)
			}

			ctx = context.WithValue(ctx, sessionIDKey, sid)
			ctx = storefront.NewContext(ctx, s)

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func ContextSessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
