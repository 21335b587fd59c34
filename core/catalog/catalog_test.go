package catalog

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func intp(v int) *int { return &v }

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeLister struct {
	services []Service
	err      error
}

func (f *fakeLister) ListServices(ctx context.Context) ([]Service, error) {
	return f.services, f.err
}

func TestEffectivePrice(t *testing.T) {
	tests := []struct {
		name string
		svc  Service
		want int
	}{
		{"no discount", Service{Price: 995}, 995},
		{"discount", Service{Price: 2495, DiscountedPrice: intp(1995)}, 1995},
		{"zero discount", Service{Price: 995, DiscountedPrice: intp(0)}, 995},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.EffectivePrice(); got != tt.want {
				t.Fatalf("expected %d, but got %d", tt.want, got)
			}
		})
	}
}

func TestStaticCatalog(t *testing.T) {
	c := New(StaticSource{}, testLogger())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	services := c.List()
	if len(services) != 5 {
		t.Fatalf("expected 5 services, but got %d", len(services))
	}
	for i, s := range services {
		if s.ID != int64(i+1) {
			t.Fatalf("expected services sorted by id, got id %d at %d", s.ID, i)
		}
	}

	basic, ok := c.Lookup(3)
	if !ok {
		t.Fatal("expected service 3 to exist")
	}
	if basic.EffectivePrice() != 995 {
		t.Fatalf("expected service 3 to cost 995, but got %d", basic.EffectivePrice())
	}

	premium, _ := c.Lookup(4)
	if premium.Price != 2495 || premium.EffectivePrice() != 1995 {
		t.Fatalf("expected service 4 at 2495 discounted to 1995, but got %d/%d", premium.Price, premium.EffectivePrice())
	}

	sub, _ := c.Lookup(5)
	if !sub.IsSubscription {
		t.Fatal("expected service 5 to be a subscription")
	}

	if _, ok := c.Lookup(42); ok {
		t.Fatal("expected unknown service to be absent")
	}
}

func TestRefreshKeepsPreviousOnError(t *testing.T) {
	lister := &fakeLister{services: []Service{{ID: 2, Price: 10}, {ID: 1, Price: 20}}}
	c := New(HTTPSource{Lister: lister}, testLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	lister.err = errors.New("backend down")
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to fail")
	}

	want := []Service{{ID: 1, Price: 20}, {ID: 2, Price: 10}}
	if diff := cmp.Diff(want, c.List()); diff != "" {
		t.Fatalf("services mismatch (-want +got):\n%s", diff)
	}
}

func TestListReturnsCopy(t *testing.T) {
	c := New(HTTPSource{Lister: &fakeLister{services: []Service{{ID: 1, Name: "a"}}}}, testLogger())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	c.List()[0].Name = "changed"
	if got := c.List()[0].Name; got != "a" {
		t.Fatalf("expected catalog to be unaffected, but got %q", got)
	}
}

func TestAssemble(t *testing.T) {
	rows := []serviceRow{
		{ID: 1, Name: "Bas", Price: 995},
		{ID: 2, Name: "Premium", Price: 2495.4, DiscountedPrice: sql.NullFloat64{Float64: 1994.6, Valid: true}},
		{ID: 3, Name: "Abo", Price: 695, IsSubscription: true, SubscriptionInterval: sql.NullString{String: "quarterly", Valid: true}},
	}
	features := []featureRow{
		{ServiceID: 2, Feature: "Blodstatus"},
		{ServiceID: 2, Feature: "Lever"},
		{ServiceID: 3, Feature: "Var tredje månad"},
	}

	want := []Service{
		{ID: 1, Name: "Bas", Price: 995},
		{ID: 2, Name: "Premium", Price: 2495, DiscountedPrice: intp(1995), Features: []string{"Blodstatus", "Lever"}},
		{ID: 3, Name: "Abo", Price: 695, IsSubscription: true, SubscriptionInterval: "quarterly", Features: []string{"Var tredje månad"}},
	}

	if diff := cmp.Diff(want, assemble(rows, features)); diff != "" {
		t.Fatalf("assembled services mismatch (-want +got):\n%s", diff)
	}
}
