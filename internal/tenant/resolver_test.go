package tenant

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/server"
	"github.com/draftforge/content-gateway/internal/storage"
	"github.com/draftforge/content-gateway/internal/storage/memory"
)

func newResolver(t *testing.T) (*Resolver, *memory.Store) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(store, logger, 3, time.Millisecond), store
}

func addTenant(s *memory.Store, id, externalDomain string) {
	s.AddTenant(&domain.Tenant{
		ID:             id,
		ExternalDomain: externalDomain,
		PlanID:         "starter",
		DailyLimit:     10,
		IsActive:       true,
	})
}

func TestResolve_QueryIDWinsOverBodyID(t *testing.T) {
	r, _ := newResolver(t)
	rc := &server.RequestContext{}

	res, err := r.Resolve(context.Background(), rc, ResolveInput{
		Query: url.Values{"tenant_id": {"from-query"}},
		Body:  map[string]any{"tenant_id": "from-body"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID != "from-query" {
		t.Errorf("expected query id to win, got %s", res.TenantID)
	}
	if res.Source != SourceQueryID {
		t.Errorf("expected source %s, got %s", SourceQueryID, res.Source)
	}
	if rc.TenantID != "from-query" {
		t.Errorf("expected context back-fill, got %q", rc.TenantID)
	}
}

func TestResolve_QueryDomainLookup(t *testing.T) {
	r, store := newResolver(t)
	addTenant(store, "t1", "shop.example.com")

	res, err := r.Resolve(context.Background(), &server.RequestContext{}, ResolveInput{
		Query: url.Values{"domain": {"Shop.Example.COM"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID != "t1" {
		t.Errorf("expected t1, got %s", res.TenantID)
	}
	if res.Source != SourceQueryDomain {
		t.Errorf("expected source %s, got %s", SourceQueryDomain, res.Source)
	}
}

func TestResolve_BodyDomainBeforeContext(t *testing.T) {
	r, store := newResolver(t)
	addTenant(store, "t-body", "body.example.com")
	rc := &server.RequestContext{TenantID: "t-context"}

	res, err := r.Resolve(context.Background(), rc, ResolveInput{
		Body: map[string]any{"domain": "body.example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID != "t-body" {
		t.Errorf("expected body domain to win over context, got %s", res.TenantID)
	}
}

func TestResolve_ContextFallback(t *testing.T) {
	r, _ := newResolver(t)
	rc := &server.RequestContext{TenantID: "t-context"}

	res, err := r.Resolve(context.Background(), rc, ResolveInput{Query: url.Values{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID != "t-context" || res.Source != SourceContext {
		t.Errorf("unexpected resolution: %+v", res)
	}
}

func TestResolve_PathDomainLast(t *testing.T) {
	r, store := newResolver(t)
	addTenant(store, "t-path", "path.example.com")

	res, err := r.Resolve(context.Background(), &server.RequestContext{}, ResolveInput{
		PathDomain: "path.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TenantID != "t-path" || res.Source != SourcePathDomain {
		t.Errorf("unexpected resolution: %+v", res)
	}
}

func TestResolve_ExhaustedSources(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.Resolve(context.Background(), &server.RequestContext{}, ResolveInput{
		Query: url.Values{"domain": {"unknown.example.com"}},
	})
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Type != domain.ErrorTypeValidation {
		t.Errorf("expected validation error, got %s", apiErr.Type)
	}
	if apiErr.Code != domain.ErrorCodeTenantRequired {
		t.Errorf("expected tenant_required code, got %s", apiErr.Code)
	}
}

// A cached domain must resolve without touching the store again.
func TestResolveByDomain_Cached(t *testing.T) {
	store := memory.New()
	addTenant(store, "t1", "cached.example.com")
	counting := &countingStore{TenantStore: store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewResolver(counting, logger, 3, time.Millisecond)

	in := ResolveInput{Query: url.Values{"domain": {"cached.example.com"}}}
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), &server.RequestContext{}, in); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}

	if counting.calls != 1 {
		t.Errorf("expected 1 store lookup, got %d", counting.calls)
	}
}

type countingStore struct {
	storage.TenantStore
	calls int
}

func (c *countingStore) GetTenantByDomain(ctx context.Context, externalDomain string) (*domain.Tenant, error) {
	c.calls++
	return c.TenantStore.GetTenantByDomain(ctx, externalDomain)
}
