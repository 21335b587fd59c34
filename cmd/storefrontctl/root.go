package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/svenskhalsovard/storefront/config"
	"github.com/svenskhalsovard/storefront/core/catalog"
	"github.com/svenskhalsovard/storefront/core/checkout"
	"github.com/svenskhalsovard/storefront/core/storefront"
	"github.com/svenskhalsovard/storefront/gateway"
	"github.com/svenskhalsovard/storefront/storage"
)

// Keys of the local store, next to the cart.
const (
	customerKey = "customer"
	paymentKey  = "payment"
)

type options struct {
	apiURL  string
	dbPath  string
	source  string
	timeout time.Duration
	verbose bool
}

// app is everything a command needs, opened once per invocation.
type app struct {
	out io.Writer
	log *logrus.Logger

	gw      *gateway.Client
	catalog *catalog.Catalog
	backend storage.Backend
	local   storage.Store
	store   *storefront.Store
}

func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{out: out}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd(a *app) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "storefrontctl",
		Short: "Browse health services, fill a cart and book them",
		Long: `storefrontctl is a command-line storefront for the healthcare-service backend.

The cart and the customer profile are kept in a local bolt file between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api-url", envOr("STOREFRONT_GATEWAY_URL", "http://localhost:8080/api"), "base URL of the backend API")
	flags.StringVar(&opts.dbPath, "db", envOr("STOREFRONT_STORAGE_PATH", "storefront-cli.db"), "path of the local store")
	flags.StringVar(&opts.source, "catalog", envOr("STOREFRONT_CATALOG_SOURCE", "static"), "where services are loaded from (static, http)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout of a backend request")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log backend calls")

	root.AddCommand(newServicesCmd(a))
	root.AddCommand(newCartCmd(a))
	root.AddCommand(newCheckoutCmd(a))
	root.AddCommand(newVerifyCmd(a))

	return root
}

func (a *app) open(ctx context.Context, opts *options) error {
	a.log = logrus.New()
	a.log.SetOutput(os.Stderr)
	a.log.SetLevel(logrus.WarnLevel)
	if opts.verbose {
		a.log.SetLevel(logrus.DebugLevel)
	}

	a.gw = gateway.New(config.Gateway{URL: opts.apiURL, Timeout: opts.timeout}, a.log)

	var src catalog.Source
	switch opts.source {
	case "static":
		src = catalog.StaticSource{}
	case "http":
		src = catalog.HTTPSource{Lister: a.gw}
	default:
		return fmt.Errorf("unknown catalog source %q", opts.source)
	}

	a.catalog = catalog.New(src, a.log)
	if err := a.catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("loading services: %w", err)
	}

	backend, err := storage.OpenBolt(opts.dbPath)
	if err != nil {
		return err
	}
	a.backend = backend
	a.local = backend.Namespace("local")

	a.store, err = storefront.New(ctx, a.local, a.catalog, a.gw, 0, a.log)
	if err != nil {
		return err
	}

	var c checkout.Customer
	err = a.local.Get(ctx, customerKey, &c)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading customer: %w", err)
	default:
		a.store.Checkout.UpdateCustomer(fill(c))
	}

	return nil
}

func (a *app) close() {
	if a.backend != nil {
		a.backend.Close()
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// fill turns a saved profile into an update that sets every field.
func fill(c checkout.Customer) checkout.CustomerUp {
	return checkout.CustomerUp{
		FirstName:      &c.FirstName,
		LastName:       &c.LastName,
		Email:          &c.Email,
		Phone:          &c.Phone,
		StreetAddress:  &c.StreetAddress,
		PostalCode:     &c.PostalCode,
		City:           &c.City,
		AdditionalInfo: &c.AdditionalInfo,
	}
}
