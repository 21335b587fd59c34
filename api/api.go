package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/api/middleware"
	"github.com/svenskhalsovard/storefront/api/web"
	"github.com/svenskhalsovard/storefront/core/cart"
	"github.com/svenskhalsovard/storefront/core/catalog"
	"github.com/svenskhalsovard/storefront/core/checkout"
	"github.com/svenskhalsovard/storefront/core/storefront"
	"github.com/svenskhalsovard/storefront/rate"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	Session    *scs.SessionManager
	Registry   *storefront.Registry
	Catalog    *catalog.Catalog
	Limiter    *rate.Limiter
	Gatherer   prometheus.Gatherer
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.Limiter != nil {
		a.mw = append(a.mw, middleware.RateLimit(cfg.Limiter))
	}

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	health := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, map[string]string{"status": "ok"}, http.StatusOK)
	}
	a.Handle(http.MethodGet, "/health", health)

	if cfg.Gatherer != nil {
		a.Router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	a.Handle(http.MethodGet, "/services", catalog.HandleList(cfg.Catalog))
	a.Handle(http.MethodGet, "/services/{id}", catalog.HandleShow(cfg.Catalog))

	sess := middleware.Storefront(cfg.Session, cfg.Registry)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(), sess)
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(), sess)
	a.Handle(http.MethodPost, "/cart/items", cart.HandleCreateItem(cfg.Catalog), sess)
	a.Handle(http.MethodPut, "/cart/items/{id}", cart.HandleUpdateItem(), sess)
	a.Handle(http.MethodDelete, "/cart/items/{id}", cart.HandleDeleteItem(), sess)

	a.Handle(http.MethodGet, "/checkout", checkout.HandleShow(), sess)
	a.Handle(http.MethodPut, "/checkout/customer", checkout.HandleUpdateCustomer(), sess)
	a.Handle(http.MethodPost, "/checkout/initiate", checkout.HandleInitiate(), sess)
	a.Handle(http.MethodPost, "/checkout/payment", checkout.HandlePayment(), sess)
	a.Handle(http.MethodPost, "/checkout/booking", checkout.HandleBooking(), sess)
	a.Handle(http.MethodGet, "/checkout/verify", checkout.HandleVerify(), sess)
	a.Handle(http.MethodPost, "/checkout/reset", checkout.HandleReset(), sess)

	return cfg.Session.LoadAndSave(a.Router)
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
