// Package memory provides an in-memory Store implementation for tests and
// single-process development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/storage"
)

// Store is an in-memory implementation of storage.Store. All operations are
// mutex-guarded, which makes CheckAndIncrementQuota atomic the same way the
// SQL implementation's conditional update is.
type Store struct {
	mu            sync.Mutex
	tenants       map[string]*domain.Tenant
	posts         map[string]*domain.Post
	queue         map[string]*domain.QueueItem
	usage         map[string]int // tenantID:period -> used
	regenerations map[string]int // tenantID:sourcePostID -> count

	// RegenerationLimit bounds regenerations per source item. Zero means
	// unlimited.
	RegenerationLimit int

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tenants:       make(map[string]*domain.Tenant),
		posts:         make(map[string]*domain.Post),
		queue:         make(map[string]*domain.QueueItem),
		usage:         make(map[string]int),
		regenerations: make(map[string]int),
		now:           time.Now,
	}
}

// AddTenant seeds a tenant. Test helper.
func (s *Store) AddTenant(t *domain.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// SetUsage seeds today's usage counter for a tenant. Test helper.
func (s *Store) SetUsage(tenantID string, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[tenantID+":"+s.period()] = used
}

func (s *Store) period() string {
	return s.now().UTC().Format("2006-01-02")
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) GetTenantByDomain(ctx context.Context, externalDomain string) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.ExternalDomain, externalDomain) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tenant domain %s: %w", externalDomain, storage.ErrNotFound)
}

func (s *Store) AttachPlan(ctx context.Context, tenantID, planID string, dailyLimit int, trialEndsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, storage.ErrNotFound)
	}
	started := s.now()
	t.PlanID = planID
	t.DailyLimit = dailyLimit
	t.TrialStartedAt = &started
	t.TrialEndsAt = &trialEndsAt
	return nil
}

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.posts[post.ID]; exists {
		return fmt.Errorf("post %s already exists", post.ID)
	}
	post.CreatedAt = s.now()
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPosts(ctx context.Context, tenantID string, opts storage.ListOptions) ([]*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Post
	for _, p := range s.posts {
		if p.TenantID != tenantID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CheckAndIncrementQuota evaluates the tenant's plan limit and increments
// usage only if under the limit, all under one lock acquisition.
func (s *Store) CheckAndIncrementQuota(ctx context.Context, tenantID string) (*domain.QuotaDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, storage.ErrNotFound)
	}

	period := s.period()
	key := tenantID + ":" + period
	used := s.usage[key]

	decision := &domain.QuotaDecision{
		Trial: trialStatus(t, s.now()),
	}

	if used >= t.DailyLimit {
		decision.Allowed = false
		decision.Reason = "daily generation limit reached"
		decision.Quota = quotaStatus(t, used, period)
		return decision, nil
	}

	used++
	s.usage[key] = used
	decision.Allowed = true
	decision.Quota = quotaStatus(t, used, period)
	return decision, nil
}

func quotaStatus(t *domain.Tenant, used int, period string) domain.QuotaStatus {
	remaining := t.DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.QuotaStatus{
		DailyLimit:     t.DailyLimit,
		UsedToday:      used,
		RemainingDaily: remaining,
		Period:         period,
	}
}

func trialStatus(t *domain.Tenant, now time.Time) domain.TrialStatus {
	if t.TrialEndsAt == nil {
		return domain.TrialStatus{}
	}
	days := int(time.Until(*t.TrialEndsAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return domain.TrialStatus{
		Active:        now.Before(*t.TrialEndsAt),
		EndsAt:        t.TrialEndsAt,
		DaysRemaining: days,
	}
}

func (s *Store) CheckRegenerationLimit(ctx context.Context, tenantID, sourcePostID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RegenerationLimit <= 0 {
		return true, nil
	}
	key := tenantID + ":" + sourcePostID
	if s.regenerations[key] >= s.RegenerationLimit {
		return false, nil
	}
	return true, nil
}

func (s *Store) RecordUsage(ctx context.Context, tenantID, postID string) error {
	// Usage was already counted by CheckAndIncrementQuota; this attributes
	// the count to a persisted item, which the memory store doesn't track.
	return nil
}

func (s *Store) RecordRegeneration(ctx context.Context, tenantID, sourcePostID, newPostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regenerations[tenantID+":"+sourcePostID]++
	return nil
}

func (s *Store) ListQueue(ctx context.Context, tenantID string) ([]*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.QueueItem
	for _, item := range s.queue {
		if item.TenantID != tenantID {
			continue
		}
		cp := *item
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func (s *Store) GetQueueItem(ctx context.Context, tenantID, id string) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok || item.TenantID != tenantID {
		return nil, fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
	}
	cp := *item
	return &cp, nil
}

func (s *Store) InsertQueueItem(ctx context.Context, item *domain.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.CreatedAt = s.now()
	item.UpdatedAt = item.CreatedAt
	cp := *item
	s.queue[item.ID] = &cp
	return nil
}

func (s *Store) UpdateQueuePositions(ctx context.Context, tenantID string, idsInOrder []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pos, id := range idsInOrder {
		item, ok := s.queue[id]
		if !ok || item.TenantID != tenantID {
			return fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
		}
		item.Position = pos
		item.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) UpdateQueueTitle(ctx context.Context, tenantID, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok || item.TenantID != tenantID {
		return fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
	}
	item.Title = title
	item.UpdatedAt = s.now()
	return nil
}

func (s *Store) CountQueueByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, item := range s.queue {
		if item.TenantID == tenantID {
			counts[item.Status]++
		}
	}
	return counts, nil
}
