package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func defaultDuration(t *testing.T, v any, field string) time.Duration {
	t.Helper()

	f, ok := reflect.TypeOf(v).FieldByName(field)
	if !ok {
		t.Fatalf("no field %s on %T", field, v)
	}
	for _, opt := range strings.Split(f.Tag.Get("conf"), ",") {
		if def, ok := strings.CutPrefix(opt, "default:"); ok {
			d, err := time.ParseDuration(def)
			if err != nil {
				t.Fatalf("parsing default of %s: %v", field, err)
			}
			return d
		}
	}
	t.Fatalf("field %s has no default", field)
	return 0
}

func TestWriteTimeoutCoversChainedCalls(t *testing.T) {
	write := defaultDuration(t, Web{}, "WriteTimeout")
	gw := defaultDuration(t, Gateway{}, "Timeout")

	if write <= 2*gw {
		t.Fatalf("expected write timeout above %s, but got %s", 2*gw, write)
	}
}
