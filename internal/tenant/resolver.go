// Package tenant resolves the tenant a request acts on behalf of.
//
// Callers identify tenants in several ways (explicit ids, external store
// domains, auth claims); resolution follows a fixed precedence so behavior is
// deterministic when multiple hints are present.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/retry"
	"github.com/draftforge/content-gateway/internal/server"
	"github.com/draftforge/content-gateway/internal/storage"
)

// Source names which input supplied the resolved tenant.
type Source string

const (
	SourceQueryID     Source = "query_id"
	SourceQueryDomain Source = "query_domain"
	SourceBodyID      Source = "body_id"
	SourceBodyDomain  Source = "body_domain"
	SourceContext     Source = "context"
	SourcePathDomain  Source = "path_domain"
)

const (
	domainCacheSize = 1024
	domainCacheTTL  = 5 * time.Minute
)

// ResolveInput carries the candidate tenant hints extracted from a request.
type ResolveInput struct {
	Query      url.Values
	Body       map[string]any
	PathDomain string
}

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	TenantID string
	Domain   string
	Source   Source
}

// Resolver maps request hints to a tenant id. Domain lookups go through a
// short-lived cache in front of the store.
type Resolver struct {
	store       storage.TenantStore
	domainCache *expirable.LRU[string, *domain.Tenant]
	logger      *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
}

func NewResolver(store storage.TenantStore, logger *slog.Logger, maxAttempts int, baseDelay time.Duration) *Resolver {
	return &Resolver{
		store:       store,
		domainCache: expirable.NewLRU[string, *domain.Tenant](domainCacheSize, nil, domainCacheTTL),
		logger:      logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Resolve finds the tenant for a request. Precedence, first match wins:
// query id, query domain, body id, body domain, context id, path domain.
// The resolved id is back-filled onto rc so downstream code sees it.
func (r *Resolver) Resolve(ctx context.Context, rc *server.RequestContext, in ResolveInput) (Resolution, error) {
	if id := in.Query.Get("tenant_id"); id != "" {
		return r.found(rc, Resolution{TenantID: id, Source: SourceQueryID})
	}

	if d := in.Query.Get("domain"); d != "" {
		res, err := r.resolveByDomain(ctx, d, SourceQueryDomain)
		if err != nil {
			return Resolution{}, err
		}
		if res.TenantID != "" {
			return r.found(rc, res)
		}
	}

	if id := stringField(in.Body, "tenant_id"); id != "" {
		return r.found(rc, Resolution{TenantID: id, Source: SourceBodyID})
	}

	if d := stringField(in.Body, "domain"); d != "" {
		res, err := r.resolveByDomain(ctx, d, SourceBodyDomain)
		if err != nil {
			return Resolution{}, err
		}
		if res.TenantID != "" {
			return r.found(rc, res)
		}
	}

	if rc != nil && rc.TenantID != "" {
		return Resolution{TenantID: rc.TenantID, Source: SourceContext}, nil
	}

	if in.PathDomain != "" {
		res, err := r.resolveByDomain(ctx, in.PathDomain, SourcePathDomain)
		if err != nil {
			return Resolution{}, err
		}
		if res.TenantID != "" {
			return r.found(rc, res)
		}
	}

	return Resolution{}, domain.ErrValidation(
		"tenant required: supply tenant_id or domain in the query or body, or authenticate with a tenant-scoped token").
		WithCode(domain.ErrorCodeTenantRequired)
}

func (r *Resolver) found(rc *server.RequestContext, res Resolution) (Resolution, error) {
	if rc != nil {
		rc.TenantID = res.TenantID
	}
	return res, nil
}

// resolveByDomain looks up a tenant by its external domain, consulting the
// cache first. A missing tenant is not an error; the caller moves on to the
// next source.
func (r *Resolver) resolveByDomain(ctx context.Context, externalDomain string, source Source) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(externalDomain))
	if key == "" {
		return Resolution{}, nil
	}

	if t, ok := r.domainCache.Get(key); ok {
		return Resolution{TenantID: t.ID, Domain: key, Source: source}, nil
	}

	// Not-found is a definitive answer, not a transient failure; report it as
	// a nil tenant so retry only covers real store errors.
	t, err := retry.Do(ctx, r.logger, r.maxAttempts, r.baseDelay,
		func(ctx context.Context) (*domain.Tenant, error) {
			t, err := r.store.GetTenantByDomain(ctx, key)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return t, err
		})
	if err != nil {
		return Resolution{}, domain.ErrUpstream(fmt.Sprintf("tenant lookup for domain %s failed", key))
	}
	if t == nil {
		return Resolution{}, nil
	}

	r.domainCache.Add(key, t)
	return Resolution{TenantID: t.ID, Domain: key, Source: source}, nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
