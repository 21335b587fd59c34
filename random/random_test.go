package random

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := Key()
		if len(k) != 32 {
			t.Fatalf("iteration %d: expected length 32, but got %d", i, len(k))
		}
		for _, r := range k {
			if !strings.ContainsRune(charset, r) {
				t.Fatalf("iteration %d: unexpected rune %q in %q", i, r, k)
			}
		}
		if seen[k] {
			t.Fatalf("iteration %d: duplicate key %q", i, k)
		}
		seen[k] = true
	}
}
