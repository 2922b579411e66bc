// Package queue manages each tenant's content backlog: listing, refilling to
// a target size, reordering, and re-titling items.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/pipeline"
	"github.com/draftforge/content-gateway/internal/retry"
	"github.com/draftforge/content-gateway/internal/storage"
)

const defaultTargetSize = 5

// Metrics is a snapshot of a tenant's backlog health.
type Metrics struct {
	Counts     map[string]int `json:"counts"`
	Backlog    int            `json:"backlog"`
	TargetSize int            `json:"target_size"`
}

// RefillResult reports what a refill run produced.
type RefillResult struct {
	Added int                 `json:"added"`
	Items []*domain.QueueItem `json:"items,omitempty"`
}

// Manager is the backlog contract consumed by the gateway. All operations are
// scoped to the already-resolved tenant id.
type Manager interface {
	List(ctx context.Context, tenantID string) ([]*domain.QueueItem, error)
	Metrics(ctx context.Context, tenantID string) (*Metrics, error)
	Refill(ctx context.Context, tenantID string) (*RefillResult, error)
	Reorder(ctx context.Context, tenantID string, idsInOrder []string) error
	RegenerateTitle(ctx context.Context, tenantID, itemID string) (*domain.QueueItem, error)
}

// StoreManager implements Manager on the persistent store, using the composer
// to draft new backlog entries.
type StoreManager struct {
	store    storage.Store
	composer pipeline.Composer
	logger   *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
	newID       func() string
	now         func() time.Time
}

func NewStoreManager(store storage.Store, composer pipeline.Composer, logger *slog.Logger, maxAttempts int, baseDelay time.Duration) *StoreManager {
	return &StoreManager{
		store:       store,
		composer:    composer,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		newID:       func() string { return uuid.New().String() },
		now:         time.Now,
	}
}

func (m *StoreManager) List(ctx context.Context, tenantID string) ([]*domain.QueueItem, error) {
	items, err := retry.Do(ctx, m.logger, m.maxAttempts, m.baseDelay,
		func(ctx context.Context) ([]*domain.QueueItem, error) {
			return m.store.ListQueue(ctx, tenantID)
		})
	if err != nil {
		return nil, domain.ErrUpstream("queue listing failed")
	}
	return items, nil
}

func (m *StoreManager) Metrics(ctx context.Context, tenantID string) (*Metrics, error) {
	counts, err := retry.Do(ctx, m.logger, m.maxAttempts, m.baseDelay,
		func(ctx context.Context) (map[string]int, error) {
			return m.store.CountQueueByStatus(ctx, tenantID)
		})
	if err != nil {
		return nil, domain.ErrUpstream("queue metrics failed")
	}

	target := defaultTargetSize
	if tenant, err := m.store.GetTenant(ctx, tenantID); err == nil && tenant.ContentPreferences.QueueTargetSize > 0 {
		target = tenant.ContentPreferences.QueueTargetSize
	}

	return &Metrics{
		Counts:     counts,
		Backlog:    counts[domain.QueueStatusQueued],
		TargetSize: target,
	}, nil
}

// Refill drafts queued items via the composer until the backlog reaches the
// tenant's target size. Items already added stay if a later compose fails.
func (m *StoreManager) Refill(ctx context.Context, tenantID string) (*RefillResult, error) {
	tenant, err := retry.Do(ctx, m.logger, m.maxAttempts, m.baseDelay,
		func(ctx context.Context) (*domain.Tenant, error) {
			return m.store.GetTenant(ctx, tenantID)
		})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrTenantNotFound(fmt.Sprintf("tenant %s not found", tenantID))
		}
		return nil, domain.ErrUpstream("tenant lookup failed")
	}

	target := tenant.ContentPreferences.QueueTargetSize
	if target <= 0 {
		target = defaultTargetSize
	}

	counts, err := m.store.CountQueueByStatus(ctx, tenantID)
	if err != nil {
		return nil, domain.ErrUpstream("queue metrics failed")
	}
	backlog := counts[domain.QueueStatusQueued]

	result := &RefillResult{}
	position := backlog
	for backlog+result.Added < target {
		draft, err := retry.Do(ctx, m.logger, m.maxAttempts, m.baseDelay,
			func(ctx context.Context) (*pipeline.Draft, error) {
				return m.composer.Compose(ctx, pipeline.ComposeInput{
					Keywords:  tenant.ContentPreferences.Keywords,
					Tone:      tenant.ToneProfile,
					Brand:     tenant.BrandProfile,
					TitleOnly: true,
				})
			})
		if err != nil {
			m.logger.WarnContext(ctx, "queue refill stopped early",
				slog.String("tenant_id", tenantID),
				slog.Int("added", result.Added),
				slog.String("error", err.Error()),
			)
			if result.Added == 0 {
				return nil, domain.ErrUpstream("queue refill failed")
			}
			return result, nil
		}

		item := &domain.QueueItem{
			ID:        m.newID(),
			TenantID:  tenantID,
			Title:     draft.Title,
			Topic:     draft.Title,
			Position:  position,
			Status:    domain.QueueStatusQueued,
			CreatedAt: m.now().UTC(),
			UpdatedAt: m.now().UTC(),
		}
		if err := m.store.InsertQueueItem(ctx, item); err != nil {
			return nil, domain.ErrUpstream("queue insert failed")
		}
		position++
		result.Added++
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (m *StoreManager) Reorder(ctx context.Context, tenantID string, idsInOrder []string) error {
	if len(idsInOrder) == 0 {
		return domain.ErrValidation("order must list at least one queue item id").WithParam("order")
	}
	if err := m.store.UpdateQueuePositions(ctx, tenantID, idsInOrder); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrValidation("order references an unknown queue item").WithParam("order")
		}
		return domain.ErrUpstream("queue reorder failed")
	}
	return nil
}

func (m *StoreManager) RegenerateTitle(ctx context.Context, tenantID, itemID string) (*domain.QueueItem, error) {
	item, err := m.store.GetQueueItem(ctx, tenantID, itemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrValidation(fmt.Sprintf("queue item %s not found", itemID)).WithParam("id")
		}
		return nil, domain.ErrUpstream("queue item lookup failed")
	}

	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, domain.ErrUpstream("tenant lookup failed")
	}

	draft, err := retry.Do(ctx, m.logger, m.maxAttempts, m.baseDelay,
		func(ctx context.Context) (*pipeline.Draft, error) {
			return m.composer.Compose(ctx, pipeline.ComposeInput{
				Topic:     item.Topic,
				Tone:      tenant.ToneProfile,
				Brand:     tenant.BrandProfile,
				TitleOnly: true,
			})
		})
	if err != nil {
		return nil, domain.ErrUpstream("title generation failed")
	}

	if err := m.store.UpdateQueueTitle(ctx, tenantID, itemID, draft.Title); err != nil {
		return nil, domain.ErrUpstream("title update failed")
	}
	item.Title = draft.Title
	item.UpdatedAt = m.now().UTC()
	return item, nil
}
