// Package storage defines the persistent store interfaces consumed by the
// gateway and pipeline.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/draftforge/content-gateway/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ListOptions controls post listing.
type ListOptions struct {
	Limit  int
	Offset int
	Status string
}

// TenantStore provides tenant lookup and plan attachment.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	GetTenantByDomain(ctx context.Context, externalDomain string) (*domain.Tenant, error)

	// AttachPlan sets the tenant's plan and trial window. Used once, on
	// first use of a tenant without a plan.
	AttachPlan(ctx context.Context, tenantID, planID string, dailyLimit int, trialEndsAt time.Time) error
}

// PostStore provides content persistence.
type PostStore interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	ListPosts(ctx context.Context, tenantID string, opts ListOptions) ([]*domain.Post, error)
}

// QuotaStore provides the atomic quota operations. CheckAndIncrementQuota is
// the cross-instance linearization point: the check and the increment happen
// in a single server-side round trip.
type QuotaStore interface {
	CheckAndIncrementQuota(ctx context.Context, tenantID string) (*domain.QuotaDecision, error)
	CheckRegenerationLimit(ctx context.Context, tenantID, sourcePostID string) (bool, error)
	RecordUsage(ctx context.Context, tenantID, postID string) error
	RecordRegeneration(ctx context.Context, tenantID, sourcePostID, newPostID string) error
}

// QueueStore provides the content backlog.
type QueueStore interface {
	ListQueue(ctx context.Context, tenantID string) ([]*domain.QueueItem, error)
	GetQueueItem(ctx context.Context, tenantID, id string) (*domain.QueueItem, error)
	InsertQueueItem(ctx context.Context, item *domain.QueueItem) error
	UpdateQueuePositions(ctx context.Context, tenantID string, idsInOrder []string) error
	UpdateQueueTitle(ctx context.Context, tenantID, id, title string) error
	CountQueueByStatus(ctx context.Context, tenantID string) (map[string]int, error)
}

// Store is the full persistence contract.
type Store interface {
	TenantStore
	PostStore
	QuotaStore
	QueueStore
}
