package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type entry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openBolt(t *testing.T) *BoltBackend {
	t.Helper()

	b, err := OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening bolt: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBoltSetGet(t *testing.T) {
	ctx := context.Background()
	s := openBolt(t).Namespace("cart")

	want := entry{Name: "blodprov", Count: 2}
	if err := s.Set(ctx, "k", want, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got entry
	if err := s.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}

	if err := s.Get(ctx, "missing", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, but got %v", err)
	}
}

func TestBoltExpiry(t *testing.T) {
	ctx := context.Background()
	b := openBolt(t)
	s := b.Namespace("cart")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", entry{Name: "x"}, 10*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got entry
	now = now.Add(9 * time.Minute)
	if err := s.Get(ctx, "k", &got); err != nil {
		t.Fatalf("expected entry before expiry, but got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := s.Get(ctx, "k", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be gone, but got %v", err)
	}

	// the expired entry is removed on read, even once the clock goes back
	now = now.Add(-5 * time.Minute)
	if err := s.Get(ctx, "k", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be deleted, but got %v", err)
	}
}

func TestBoltRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	b := openBolt(t)
	a := b.Namespace("session:a")
	o := b.Namespace("session:b")

	if err := a.Remove(ctx, "never-written"); err != nil {
		t.Fatalf("removing an absent key: %v", err)
	}
	if err := a.Clear(ctx); err != nil {
		t.Fatalf("clearing an absent namespace: %v", err)
	}

	for _, s := range []Store{a, o} {
		if err := s.Set(ctx, "k1", 1, 0); err != nil {
			t.Fatal(err)
		}
		if err := s.Set(ctx, "k2", 2, 0); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.Remove(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := a.Get(ctx, "k1", &n); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected removed key to be gone, but got %v", err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Get(ctx, "k2", &n); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cleared key to be gone, but got %v", err)
	}

	if err := o.Get(ctx, "k2", &n); err != nil || n != 2 {
		t.Fatalf("expected other namespace to be untouched, but got %d, %v", n, err)
	}
}
