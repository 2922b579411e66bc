package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/draftforge/content-gateway/internal/domain"
)

func testTenant(id string, limit int) *domain.Tenant {
	return &domain.Tenant{
		ID:             id,
		ExternalDomain: id + ".example-store.com",
		PlanID:         "starter",
		DailyLimit:     limit,
		IsActive:       true,
	}
}

func TestCheckAndIncrementQuota_UnderLimit(t *testing.T) {
	s := New()
	s.AddTenant(testTenant("t1", 3))

	for i := 1; i <= 3; i++ {
		d, err := s.CheckAndIncrementQuota(context.Background(), "t1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if d.Quota.UsedToday != i {
			t.Errorf("call %d: expected used %d, got %d", i, i, d.Quota.UsedToday)
		}
		if d.Quota.RemainingDaily != 3-i {
			t.Errorf("call %d: expected remaining %d, got %d", i, 3-i, d.Quota.RemainingDaily)
		}
	}

	d, err := s.CheckAndIncrementQuota(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("4th call should be denied")
	}
	if d.Quota.RemainingDaily != 0 {
		t.Errorf("expected remaining_daily 0, got %d", d.Quota.RemainingDaily)
	}
}

func TestCheckAndIncrementQuota_AtLimitFromStart(t *testing.T) {
	s := New()
	s.AddTenant(testTenant("t1", 10))
	s.SetUsage("t1", 10)

	d, err := s.CheckAndIncrementQuota(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial at limit")
	}
	if d.Quota.RemainingDaily != 0 {
		t.Errorf("expected remaining_daily 0, got %d", d.Quota.RemainingDaily)
	}
	if d.Quota.UsedToday != 10 {
		t.Errorf("expected used_today 10, got %d", d.Quota.UsedToday)
	}
}

// Concurrent creation requests for the same tenant must never pass the quota
// check more times than the plan limit allows.
func TestCheckAndIncrementQuota_Concurrent(t *testing.T) {
	const limit = 5
	const requests = 50

	s := New()
	s.AddTenant(testTenant("t1", limit))

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.CheckAndIncrementQuota(context.Background(), "t1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("expected exactly %d allowed passes, got %d", limit, allowed)
	}
}

func TestRegenerationLimit(t *testing.T) {
	s := New()
	s.RegenerationLimit = 2
	s.AddTenant(testTenant("t1", 10))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := s.CheckRegenerationLimit(ctx, "t1", "post-1")
		if err != nil || !ok {
			t.Fatalf("regeneration %d should be allowed, ok=%v err=%v", i+1, ok, err)
		}
		if err := s.RecordRegeneration(ctx, "t1", "post-1", "new"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	ok, err := s.CheckRegenerationLimit(ctx, "t1", "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected regeneration limit to block third attempt")
	}
}

func TestQueueOrderingAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		item := &domain.QueueItem{
			ID:       id,
			TenantID: "t1",
			Title:    "item " + id,
			Position: i,
			Status:   domain.QueueStatusQueued,
		}
		if err := s.InsertQueueItem(ctx, item); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := s.UpdateQueuePositions(ctx, "t1", []string{"c", "a", "b"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	items, err := s.ListQueue(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{items[0].ID, items[1].ID, items[2].ID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	counts, err := s.CountQueueByStatus(ctx, "t1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[domain.QueueStatusQueued] != 3 {
		t.Errorf("expected 3 queued, got %d", counts[domain.QueueStatusQueued])
	}
}

func TestQueueTenantIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InsertQueueItem(ctx, &domain.QueueItem{ID: "x", TenantID: "t1", Status: domain.QueueStatusQueued})

	if _, err := s.GetQueueItem(ctx, "t2", "x"); err == nil {
		t.Error("expected not-found for cross-tenant fetch")
	}
	if err := s.UpdateQueueTitle(ctx, "t2", "x", "new"); err == nil {
		t.Error("expected not-found for cross-tenant title update")
	}
}
