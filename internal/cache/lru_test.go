package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRUSetGet(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "tenant-001", "decision:abc", []byte(`{"score":720}`), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := c.Get(ctx, "tenant-001", "decision:abc")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `{"score":720}` {
		t.Errorf("unexpected value: %s", got)
	}
}

func TestLRUMissReturnsNil(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	got, err := c.Get(context.Background(), "tenant-001", "missing")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %s", got)
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	got, err := c.Get(ctx, "tenant-001", "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired entry to miss, got %s", got)
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "tenant-001", "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	got, _ := c.Get(ctx, "tenant-001", "k")
	if got != nil {
		t.Error("expected miss after delete")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(2)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "a", []byte("1"), time.Minute)
	c.Set(ctx, "tenant-001", "b", []byte("2"), time.Minute)
	c.Get(ctx, "tenant-001", "a") // a is now most recently used
	c.Set(ctx, "tenant-001", "c", []byte("3"), time.Minute)

	if got, _ := c.Get(ctx, "tenant-001", "b"); got != nil {
		t.Error("expected least recently used entry evicted")
	}
	if got, _ := c.Get(ctx, "tenant-001", "a"); got == nil {
		t.Error("recently used entry should survive eviction")
	}

	size, capacity := c.Stats()
	if size != 2 || capacity != 2 {
		t.Errorf("unexpected stats: size=%d capacity=%d", size, capacity)
	}
}

func TestLRUTenantIsolation(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-a", "k", []byte("a"), time.Minute)
	c.Set(ctx, "tenant-b", "k", []byte("b"), time.Minute)

	got, _ := c.Get(ctx, "tenant-a", "k")
	if string(got) != "a" {
		t.Errorf("tenant-a read tenant-b's value: %s", got)
	}
}

func TestLRURequiresTenant(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	if _, err := c.Get(context.Background(), "", "k"); err == nil {
		t.Error("expected error for empty tenant")
	}
	if _, err := c.IncrementCounter(context.Background(), "", "k", time.Minute); err == nil {
		t.Error("expected error for empty tenant")
	}
}

func TestIncrementCounter(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "tenant-001", "ratelimit:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if got != want {
			t.Errorf("expected count %d, got %d", want, got)
		}
	}
}

func TestIncrementCounterWindowReset(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.IncrementCounter(ctx, "tenant-001", "k", 10*time.Millisecond)
	c.IncrementCounter(ctx, "tenant-001", "k", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	got, err := c.IncrementCounter(ctx, "tenant-001", "k", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected fresh window to restart at 1, got %d", got)
	}
}

func TestIncrementCounterTenantIsolation(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.IncrementCounter(ctx, "tenant-a", "k", time.Minute)
	got, _ := c.IncrementCounter(ctx, "tenant-b", "k", time.Minute)
	if got != 1 {
		t.Errorf("expected independent counter per tenant, got %d", got)
	}
}
