package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return Wrap(raw), mr
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	key := client.IdempotencyKey("http:create-order", "abc")
	set, err := client.SetNX(ctx, key, "1", time.Minute)
	if err != nil || !set {
		t.Fatalf("expected first SetNX to succeed, set=%v err=%v", set, err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Minute)
	if err != nil || set {
		t.Fatalf("expected second SetNX to be rejected, set=%v err=%v", set, err)
	}

	mr.FastForward(2 * time.Minute)
	set, err = client.SetNX(ctx, key, "1", time.Minute)
	if err != nil || !set {
		t.Fatalf("expected key to expire, set=%v err=%v", set, err)
	}
}

func TestGetDelRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	if err := client.Set(ctx, "cf:test", "value", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := client.Get(ctx, "cf:test")
	if err != nil || got != "value" {
		t.Fatalf("unexpected get %q err=%v", got, err)
	}
	if err := client.Del(ctx, "cf:test"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, "cf:test"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id-1"); got != "cf:idempotency:scope:id-1" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := client.CacheKey("register-type", " Caisse principale "); got != "cf:cache:register-type:Caisse principale" {
		t.Fatalf("unexpected cache key %q", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error for uninitialized client")
	}
}
