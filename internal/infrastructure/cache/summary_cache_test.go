package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type summary struct {
	Spent     string `json:"spent"`
	Available string `json:"available"`
}

func TestSummaryCache_SetGetInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewSummaryCache(client, time.Minute)
	ctx := context.Background()

	var got summary
	hit, err := c.Get(ctx, BudgetKey("BDG-1"), &got)
	if err != nil || hit {
		t.Fatalf("Get on empty cache = %v, %v; want miss", hit, err)
	}

	want := summary{Spent: "400000", Available: "600000"}
	if err := c.Set(ctx, BudgetKey("BDG-1"), want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, KeyDashboard, want); err != nil {
		t.Fatalf("Set dashboard: %v", err)
	}

	hit, err = c.Get(ctx, BudgetKey("BDG-1"), &got)
	if err != nil || !hit {
		t.Fatalf("Get after Set = %v, %v; want hit", hit, err)
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}

	if err := c.Invalidate(ctx, "BDG-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if mr.Exists(BudgetKey("BDG-1")) || mr.Exists(KeyDashboard) {
		t.Error("keys still present after Invalidate")
	}
}

func TestSummaryCache_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewSummaryCache(client, 10*time.Second)
	if err := c.Set(context.Background(), KeyBudgetList, []string{"a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(11 * time.Second)
	if mr.Exists(KeyBudgetList) {
		t.Error("key should have expired")
	}
}

func TestSummaryCache_NilClientIsNoop(t *testing.T) {
	c := NewSummaryCache(nil, 0)
	ctx := context.Background()

	if err := c.Set(ctx, KeyDashboard, 1); err != nil {
		t.Errorf("Set: %v", err)
	}
	var v int
	if hit, err := c.Get(ctx, KeyDashboard, &v); hit || err != nil {
		t.Errorf("Get = %v, %v; want miss", hit, err)
	}
	if err := c.Invalidate(ctx, "x"); err != nil {
		t.Errorf("Invalidate: %v", err)
	}

	var nilCache *SummaryCache
	if err := nilCache.Invalidate(ctx); err != nil {
		t.Errorf("nil cache Invalidate: %v", err)
	}
}
