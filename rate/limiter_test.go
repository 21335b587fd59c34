package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	burst := 1

	interval := 10 * time.Millisecond
	r := NewLimiter(burst, time.Hour, Every(interval))
	defer r.Close()

	tooshort := 1 * time.Millisecond

	client := "session-a"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterClientsAreIndependent(t *testing.T) {
	r := NewLimiter(1, time.Hour, Every(time.Hour))
	defer r.Close()

	if !r.Check("a") {
		t.Fatal("expected first request of client a to pass")
	}
	if r.Check("a") {
		t.Fatal("expected second request of client a to be limited")
	}
	if !r.Check("b") {
		t.Fatal("expected client b to have its own bucket")
	}
}

func TestLimiterSweep(t *testing.T) {
	r := NewLimiter(1, time.Minute, Every(time.Hour))
	defer r.Close()

	r.Check("a")
	r.Check("b")

	if n := r.sweep(time.Now()); n != 0 {
		t.Fatalf("expected no client to expire yet, but %d did", n)
	}
	if n := r.sweep(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Fatalf("expected 2 expired clients, but got %d", n)
	}
	if !r.Check("a") {
		t.Fatal("expected a swept client to start with a fresh bucket")
	}
}
