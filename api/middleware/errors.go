package middleware

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/api/weberr"
)

// Errors logs a failed handler and renders the response attached to its
// error, or a bare 500 when there is none.
func Errors(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			fields := logrus.Fields{
				"req_id":  ContextRequestID(ctx),
				"message": err,
			}
			if sid := ContextSessionID(ctx); sid != "" {
				fields["session"] = sid
			}
			if f, ok := weberr.Fields(err); ok {
				for k, v := range f {
					fields[k] = v
				}
			}

			status := weberr.Status(err)
			if status < http.StatusInternalServerError {
				log.WithFields(fields).Warn("request failed")
			} else {
				log.WithFields(fields).Error("ERROR")
			}

			if body, code, ok := weberr.Response(err); ok {
				return web.Respond(ctx, w, body, code)
			}

			er := weberr.ErrorResponse{
				Error: http.StatusText(http.StatusInternalServerError),
			}
			return web.Respond(ctx, w, er, http.StatusInternalServerError)
		}
		return h
	}
	return m
}
