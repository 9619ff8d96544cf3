package cache

import (
	"context"
	"errors"
	"testing"
)

func TestKey(t *testing.T) {
	if got := Key("monitor", "42"); got != "faultline:monitor:42" {
		t.Fatalf("Key = %q", got)
	}
	if got := Key("report"); got != "faultline:report" {
		t.Fatalf("Key = %q", got)
	}
}

func TestNoopProvider(t *testing.T) {
	var provider NoopProvider
	ctx := context.Background()

	if err := provider.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get after set: err = %v", err)
	}
	if err := provider.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := provider.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
