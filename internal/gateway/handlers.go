package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/jobs"
	"github.com/draftforge/content-gateway/internal/pipeline"
	"github.com/draftforge/content-gateway/internal/queue"
	"github.com/draftforge/content-gateway/internal/storage"
)

// API registers the gateway's route handlers against a dispatcher.
type API struct {
	store  storage.Store
	posts  *pipeline.Orchestrator
	queue  queue.Manager
	jobs   pipeline.JobSubmitter
	logger *slog.Logger
}

func NewAPI(store storage.Store, orchestrator *pipeline.Orchestrator, queueManager queue.Manager, submitter pipeline.JobSubmitter, logger *slog.Logger) *API {
	return &API{
		store:  store,
		posts:  orchestrator,
		queue:  queueManager,
		jobs:   submitter,
		logger: logger,
	}
}

// Routes mounts every API route with its policy.
func (a *API) Routes(d *Dispatcher) {
	d.Register(http.MethodPost, "/api/content", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		RateLimit:      &RateLimitConfig{MaxRequests: 30, Window: time.Minute},
		Timeout:        120 * time.Second,
		MaxRequestSize: 1 << 20,
		Validate:       validateCreateContent,
	}, a.createContent)

	d.Register(http.MethodGet, "/api/content", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		RateLimit:      &RateLimitConfig{MaxRequests: 120, Window: time.Minute},
		Cache:          &CacheConfig{TTL: 60 * time.Second},
	}, a.listContent)

	d.Register(http.MethodGet, "/api/content/{id}", RouteConfig{
		RequiresAuth: true,
	}, a.getContent)

	d.Register(http.MethodGet, "/api/tenant", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		Cache:          &CacheConfig{TTL: 5 * time.Minute},
	}, a.getTenant)

	d.Register(http.MethodGet, "/api/queue", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		Cache:          &CacheConfig{TTL: 30 * time.Second},
	}, a.listQueue)

	d.Register(http.MethodGet, "/api/queue/metrics", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
	}, a.queueMetrics)

	d.Register(http.MethodPost, "/api/queue/refill", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		RateLimit:      &RateLimitConfig{MaxRequests: 10, Window: time.Minute},
		Timeout:        120 * time.Second,
	}, a.refillQueue)

	d.Register(http.MethodPut, "/api/queue/order", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		Validate:       validateQueueOrder,
	}, a.reorderQueue)

	d.Register(http.MethodPost, "/api/queue/{id}/title", RouteConfig{
		RequiresAuth:   true,
		RequiresTenant: true,
		RateLimit:      &RateLimitConfig{MaxRequests: 20, Window: time.Minute},
	}, a.regenerateTitle)
}

func validateCreateContent(params map[string]any) error {
	topic, _ := params["topic"].(string)
	if topic == "" {
		return domain.ErrValidation("topic is required").WithParam("topic")
	}
	return nil
}

func validateQueueOrder(params map[string]any) error {
	order, ok := params["order"].([]any)
	if !ok || len(order) == 0 {
		return domain.ErrValidation("order must be a non-empty array of queue item ids").WithParam("order")
	}
	return nil
}

func (a *API) createContent(ctx context.Context, req *Request) (*Reply, error) {
	result, err := a.posts.CreateContent(ctx, pipeline.CreateContentRequest{
		TenantID:        req.TenantID,
		Topic:           req.StringParam("topic"),
		Keywords:        req.StringSliceParam("keywords"),
		ProductIDs:      req.StringSliceParam("product_ids"),
		RegeneratedFrom: req.StringParam("regenerated_from"),
	})
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if len(result.Warnings) > 0 {
		metadata = map[string]any{"warnings": result.Warnings}
	}
	return &Reply{Status: http.StatusCreated, Data: result.Post, Metadata: metadata}, nil
}

func (a *API) listContent(ctx context.Context, req *Request) (*Reply, error) {
	posts, err := a.store.ListPosts(ctx, req.TenantID, storage.ListOptions{
		Limit:  req.IntParam("limit", 20),
		Offset: req.IntParam("offset", 0),
		Status: req.StringParam("status"),
	})
	if err != nil {
		return nil, domain.ErrUpstream("post listing failed")
	}
	return &Reply{Data: posts}, nil
}

// getContent fetches one post. When the request context carries no tenant,
// the owning tenant is back-filled from the post row itself.
func (a *API) getContent(ctx context.Context, req *Request) (*Reply, error) {
	id := req.PathParam("id")
	post, err := a.store.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound(fmt.Sprintf("post %s not found", id))
		}
		return nil, domain.ErrUpstream("post lookup failed")
	}

	if req.RC.TenantID == "" {
		req.RC.TenantID = post.TenantID
	} else if req.RC.TenantID != post.TenantID {
		return nil, domain.ErrNotFound(fmt.Sprintf("post %s not found", id))
	}
	return &Reply{Data: post}, nil
}

func (a *API) getTenant(ctx context.Context, req *Request) (*Reply, error) {
	tenant, err := a.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrTenantNotFound(fmt.Sprintf("tenant %s not found", req.TenantID))
		}
		return nil, domain.ErrUpstream("tenant lookup failed")
	}
	return &Reply{Data: tenant}, nil
}

func (a *API) listQueue(ctx context.Context, req *Request) (*Reply, error) {
	items, err := a.queue.List(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	return &Reply{Data: items}, nil
}

func (a *API) queueMetrics(ctx context.Context, req *Request) (*Reply, error) {
	metrics, err := a.queue.Metrics(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	return &Reply{Data: metrics}, nil
}

// refillQueue runs a synchronous refill by default; async=true hands the work
// to the background queue instead.
func (a *API) refillQueue(ctx context.Context, req *Request) (*Reply, error) {
	if req.StringParam("async") == "true" {
		err := a.jobs.Enqueue(ctx, jobs.TypeQueueRefill,
			map[string]string{"tenant_id": req.TenantID},
			jobs.Options{Priority: jobs.PriorityLow})
		if err != nil {
			return nil, domain.ErrUpstream("refill job could not be scheduled")
		}
		return &Reply{Status: http.StatusAccepted, Data: map[string]string{"status": "scheduled"}}, nil
	}

	result, err := a.queue.Refill(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	return &Reply{Data: result}, nil
}

func (a *API) reorderQueue(ctx context.Context, req *Request) (*Reply, error) {
	if err := a.queue.Reorder(ctx, req.TenantID, req.StringSliceParam("order")); err != nil {
		return nil, err
	}
	return &Reply{Data: map[string]string{"status": "reordered"}}, nil
}

func (a *API) regenerateTitle(ctx context.Context, req *Request) (*Reply, error) {
	item, err := a.queue.RegenerateTitle(ctx, req.TenantID, req.PathParam("id"))
	if err != nil {
		return nil, err
	}
	return &Reply{Data: item}, nil
}
