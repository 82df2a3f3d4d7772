package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestBudgetLock_MutualExclusion(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first := NewBudgetLock(client, "BDG-2024-1", "req-1", 30*time.Second)
	second := NewBudgetLock(client, "BDG-2024-1", "req-2", 30*time.Second)

	ok, err := first.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v; want true", ok, err)
	}

	ok, err = second.TryLock(ctx)
	if err != nil {
		t.Fatalf("second TryLock error: %v", err)
	}
	if ok {
		t.Fatal("second TryLock acquired a held lock")
	}

	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	ok, err = second.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("second TryLock after release = %v, %v; want true", ok, err)
	}
}

func TestBudgetLock_DifferentBudgetsIndependent(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	a := NewBudgetLock(client, "BDG-A", "req-1", 30*time.Second)
	b := NewBudgetLock(client, "BDG-B", "req-2", 30*time.Second)

	if ok, _ := a.TryLock(ctx); !ok {
		t.Fatal("lock A not acquired")
	}
	if ok, _ := b.TryLock(ctx); !ok {
		t.Fatal("lock B not acquired while A is held")
	}
}

func TestUnlock_DoesNotReleaseForeignLock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	owner := NewBudgetLock(client, "BDG-1", "owner", 30*time.Second)
	other := NewBudgetLock(client, "BDG-1", "other", 30*time.Second)

	if ok, _ := owner.TryLock(ctx); !ok {
		t.Fatal("owner lock not acquired")
	}
	if err := other.Unlock(ctx); err != nil {
		t.Fatalf("foreign Unlock: %v", err)
	}

	got, err := mr.Get("anggaran:lock:budget:BDG-1")
	if err != nil {
		t.Fatalf("lock key missing after foreign unlock: %v", err)
	}
	if got != "owner" {
		t.Errorf("lock value = %q, want owner", got)
	}
}

func TestLock_GivesUp(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	holder := NewBudgetLock(client, "BDG-1", "holder", 30*time.Second)
	if ok, _ := holder.TryLock(ctx); !ok {
		t.Fatal("holder lock not acquired")
	}

	waiter := NewBudgetLock(client, "BDG-1", "waiter", 30*time.Second)
	err := waiter.Lock(ctx, time.Millisecond, 3)
	if !errors.Is(err, ErrLockFailed) {
		t.Fatalf("Lock err = %v, want ErrLockFailed", err)
	}
}

func TestLock_Expires(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	holder := NewBudgetLock(client, "BDG-1", "holder", time.Second)
	if ok, _ := holder.TryLock(ctx); !ok {
		t.Fatal("holder lock not acquired")
	}
	mr.FastForward(2 * time.Second)

	waiter := NewBudgetLock(client, "BDG-1", "waiter", time.Second)
	if err := waiter.Lock(ctx, time.Millisecond, 3); err != nil {
		t.Fatalf("Lock after expiry: %v", err)
	}
}
