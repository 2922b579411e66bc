package domain

import (
	"encoding/json"
	"time"
)

// Tenant represents a store/customer account: the unit of quota, rate
// limiting, and content ownership.
type Tenant struct {
	ID             string     `json:"id" db:"id"`
	ExternalDomain string     `json:"external_domain" db:"external_domain"`
	PlanID         string     `json:"plan_id,omitempty" db:"plan_id"`
	DailyLimit     int        `json:"daily_limit" db:"daily_limit"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty" db:"trial_started_at"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	ToneProfile    string     `json:"tone_profile" db:"tone_profile"`
	BrandProfile   string     `json:"brand_profile" db:"brand_profile"`

	ContentPreferences ContentPreferences `json:"content_preferences" db:"-"`
}

// ContentPreferences are per-tenant defaults applied by the content pipeline.
type ContentPreferences struct {
	Keywords             []string `json:"keywords,omitempty"`
	RequireReview        bool     `json:"require_review"`
	ImagesEnabled        bool     `json:"images_enabled"`
	InternalLinksEnabled bool     `json:"internal_links_enabled"`
	SnippetsEnabled      bool     `json:"snippets_enabled"`
	QueueTargetSize      int      `json:"queue_target_size"`
}

// Post is a persisted content item. Status is always "draft" at creation;
// ReviewState derives from the tenant's approval settings.
type Post struct {
	ID               string          `json:"id" db:"id"`
	TenantID         string          `json:"tenant_id" db:"tenant_id"`
	Title            string          `json:"title" db:"title"`
	Content          string          `json:"content" db:"content"`
	Excerpt          string          `json:"excerpt,omitempty" db:"excerpt"`
	Topic            string          `json:"topic" db:"topic"`
	Keywords         []string        `json:"keywords,omitempty" db:"-"`
	Status           string          `json:"status" db:"status"`
	ReviewState      string          `json:"review_state" db:"review_state"`
	SEOScore         int             `json:"seo_score,omitempty" db:"seo_score"`
	StructuredData   json.RawMessage `json:"structured_data,omitempty" db:"structured_data"`
	ProductMentions  []string        `json:"product_mentions,omitempty" db:"-"`
	FeaturedImageURL string          `json:"featured_image_url,omitempty" db:"featured_image_url"`
	RegeneratedFrom  string          `json:"regenerated_from,omitempty" db:"regenerated_from"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Post statuses and review states.
const (
	PostStatusDraft = "draft"

	ReviewStatePending  = "pending_review"
	ReviewStateApproved = "auto_approved"
)

// QueueItem is one entry in a tenant's content backlog.
type QueueItem struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Title     string    `json:"title" db:"title"`
	Topic     string    `json:"topic" db:"topic"`
	Position  int       `json:"position" db:"position"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Queue item statuses.
const (
	QueueStatusQueued     = "queued"
	QueueStatusProcessing = "processing"
	QueueStatusDone       = "done"
)

// QuotaStatus is a snapshot of a tenant's usage against plan limits. It is
// derived from the atomic quota operation, never stored by the gateway.
type QuotaStatus struct {
	DailyLimit     int    `json:"daily_limit"`
	UsedToday      int    `json:"used_today"`
	RemainingDaily int    `json:"remaining_daily"`
	Period         string `json:"period"`
}

// TrialStatus describes the tenant's trial window, if any.
type TrialStatus struct {
	Active        bool       `json:"active"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
}

// QuotaDecision is the result of the atomic check-and-increment operation.
// Allowed is decided server-side in a single round trip so concurrent
// creation requests for the same tenant cannot both pass a stale check.
type QuotaDecision struct {
	Allowed bool        `json:"allowed"`
	Reason  string      `json:"reason,omitempty"`
	Quota   QuotaStatus `json:"quota_status"`
	Trial   TrialStatus `json:"trial_status"`
}
