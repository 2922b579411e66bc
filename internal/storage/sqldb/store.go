// Package sqldb is the SQL implementation of storage.Store, backed by SQLite.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/storage"
)

// Store is a SQL implementation of storage.Store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Config holds database connection configuration.
type Config struct {
	Driver string // only "sqlite" is supported
	DSN    string
}

// RegenerationLimit bounds how many times a single post may be regenerated.
const RegenerationLimit = 3

// New opens the database and initializes the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
id TEXT PRIMARY KEY,
external_domain TEXT NOT NULL UNIQUE,
plan_id TEXT NOT NULL DEFAULT '',
daily_limit INTEGER NOT NULL DEFAULT 5,
trial_started_at TIMESTAMP,
trial_ends_at TIMESTAMP,
is_active INTEGER NOT NULL DEFAULT 1,
tone_profile TEXT NOT NULL DEFAULT '',
brand_profile TEXT NOT NULL DEFAULT '',
content_preferences TEXT NOT NULL DEFAULT '{}'
)`,
		`CREATE TABLE IF NOT EXISTS posts (
id TEXT PRIMARY KEY,
tenant_id TEXT NOT NULL,
title TEXT NOT NULL,
content TEXT NOT NULL,
excerpt TEXT NOT NULL DEFAULT '',
topic TEXT NOT NULL DEFAULT '',
keywords TEXT NOT NULL DEFAULT '[]',
status TEXT NOT NULL,
review_state TEXT NOT NULL,
seo_score INTEGER NOT NULL DEFAULT 0,
structured_data TEXT,
product_mentions TEXT NOT NULL DEFAULT '[]',
featured_image_url TEXT NOT NULL DEFAULT '',
regenerated_from TEXT NOT NULL DEFAULT '',
created_at TIMESTAMP NOT NULL,
FOREIGN KEY (tenant_id) REFERENCES tenants(id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_tenant ON posts(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tenant_usage (
tenant_id TEXT NOT NULL,
period TEXT NOT NULL,
used INTEGER NOT NULL DEFAULT 0,
PRIMARY KEY (tenant_id, period)
)`,
		`CREATE TABLE IF NOT EXISTS usage_attribution (
tenant_id TEXT NOT NULL,
post_id TEXT NOT NULL,
period TEXT NOT NULL,
recorded_at TIMESTAMP NOT NULL,
PRIMARY KEY (tenant_id, post_id)
)`,
		`CREATE TABLE IF NOT EXISTS regenerations (
tenant_id TEXT NOT NULL,
source_post_id TEXT NOT NULL,
new_post_id TEXT NOT NULL,
recorded_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_regen_source ON regenerations(tenant_id, source_post_id)`,
		`CREATE TABLE IF NOT EXISTS queue_items (
id TEXT PRIMARY KEY,
tenant_id TEXT NOT NULL,
title TEXT NOT NULL,
topic TEXT NOT NULL DEFAULT '',
position INTEGER NOT NULL DEFAULT 0,
status TEXT NOT NULL,
created_at TIMESTAMP NOT NULL,
updated_at TIMESTAMP NOT NULL,
FOREIGN KEY (tenant_id) REFERENCES tenants(id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_tenant ON queue_items(tenant_id, position)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

func (s *Store) period() string {
	return s.now().UTC().Format("2006-01-02")
}

type tenantRow struct {
	ID             string     `db:"id"`
	ExternalDomain string     `db:"external_domain"`
	PlanID         string     `db:"plan_id"`
	DailyLimit     int        `db:"daily_limit"`
	TrialStartedAt *time.Time `db:"trial_started_at"`
	TrialEndsAt    *time.Time `db:"trial_ends_at"`
	IsActive       bool       `db:"is_active"`
	ToneProfile    string     `db:"tone_profile"`
	BrandProfile   string     `db:"brand_profile"`
	Preferences    string     `db:"content_preferences"`
}

func (r *tenantRow) toDomain() (*domain.Tenant, error) {
	t := &domain.Tenant{
		ID:             r.ID,
		ExternalDomain: r.ExternalDomain,
		PlanID:         r.PlanID,
		DailyLimit:     r.DailyLimit,
		TrialStartedAt: r.TrialStartedAt,
		TrialEndsAt:    r.TrialEndsAt,
		IsActive:       r.IsActive,
		ToneProfile:    r.ToneProfile,
		BrandProfile:   r.BrandProfile,
	}
	if r.Preferences != "" {
		if err := json.Unmarshal([]byte(r.Preferences), &t.ContentPreferences); err != nil {
			return nil, fmt.Errorf("decode content preferences for tenant %s: %w", r.ID, err)
		}
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tenants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return row.toDomain()
}

func (s *Store) GetTenantByDomain(ctx context.Context, externalDomain string) (*domain.Tenant, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM tenants WHERE lower(external_domain) = lower(?)`, externalDomain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant domain %s: %w", externalDomain, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by domain: %w", err)
	}
	return row.toDomain()
}

func (s *Store) AttachPlan(ctx context.Context, tenantID, planID string, dailyLimit int, trialEndsAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET plan_id = ?, daily_limit = ?, trial_started_at = ?, trial_ends_at = ?
		 WHERE id = ? AND plan_id = ''`,
		planID, dailyLimit, s.now(), trialEndsAt, tenantID)
	if err != nil {
		return fmt.Errorf("attach plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach plan: %w", err)
	}
	if n == 0 {
		// Either the tenant is missing or a plan is already attached;
		// distinguish so first-use provisioning doesn't clobber paid plans.
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = ?)`, tenantID); err != nil {
			return fmt.Errorf("attach plan: %w", err)
		}
		if !exists {
			return fmt.Errorf("tenant %s: %w", tenantID, storage.ErrNotFound)
		}
	}
	return nil
}

type postRow struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	Title            string         `db:"title"`
	Content          string         `db:"content"`
	Excerpt          string         `db:"excerpt"`
	Topic            string         `db:"topic"`
	Keywords         string         `db:"keywords"`
	Status           string         `db:"status"`
	ReviewState      string         `db:"review_state"`
	SEOScore         int            `db:"seo_score"`
	StructuredData   sql.NullString `db:"structured_data"`
	ProductMentions  string         `db:"product_mentions"`
	FeaturedImageURL string         `db:"featured_image_url"`
	RegeneratedFrom  string         `db:"regenerated_from"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r *postRow) toDomain() (*domain.Post, error) {
	p := &domain.Post{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Title:            r.Title,
		Content:          r.Content,
		Excerpt:          r.Excerpt,
		Topic:            r.Topic,
		Status:           r.Status,
		ReviewState:      r.ReviewState,
		SEOScore:         r.SEOScore,
		FeaturedImageURL: r.FeaturedImageURL,
		RegeneratedFrom:  r.RegeneratedFrom,
		CreatedAt:        r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Keywords), &p.Keywords); err != nil {
		return nil, fmt.Errorf("decode keywords for post %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ProductMentions), &p.ProductMentions); err != nil {
		return nil, fmt.Errorf("decode product mentions for post %s: %w", r.ID, err)
	}
	if r.StructuredData.Valid && r.StructuredData.String != "" {
		p.StructuredData = json.RawMessage(r.StructuredData.String)
	}
	return p, nil
}

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	keywords, err := json.Marshal(post.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	mentions, err := json.Marshal(post.ProductMentions)
	if err != nil {
		return fmt.Errorf("encode product mentions: %w", err)
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.now()
	}

	var structured any
	if len(post.StructuredData) > 0 {
		structured = string(post.StructuredData)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts (id, tenant_id, title, content, excerpt, topic, keywords, status,
		 review_state, seo_score, structured_data, product_mentions, featured_image_url,
		 regenerated_from, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.TenantID, post.Title, post.Content, post.Excerpt, post.Topic,
		string(keywords), post.Status, post.ReviewState, post.SEOScore, structured,
		string(mentions), post.FeaturedImageURL, post.RegeneratedFrom, post.CreatedAt)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM posts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListPosts(ctx context.Context, tenantID string, opts storage.ListOptions) ([]*domain.Post, error) {
	query := `SELECT * FROM posts WHERE tenant_id = ?`
	args := []any{tenantID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts := make([]*domain.Post, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// CheckAndIncrementQuota performs the check-and-increment as one conditional
// UPDATE so concurrent requests serialize on the database row rather than on
// a read-then-write pair in the gateway.
func (s *Store) CheckAndIncrementQuota(ctx context.Context, tenantID string) (*domain.QuotaDecision, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	period := s.period()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_usage (tenant_id, period, used) VALUES (?, ?, 0)
		 ON CONFLICT(tenant_id, period) DO NOTHING`,
		tenantID, period); err != nil {
		return nil, fmt.Errorf("init usage row: %w", err)
	}

	// The linearization point: the limit comparison and the increment happen
	// inside one statement.
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenant_usage SET used = used + 1
		 WHERE tenant_id = ? AND period = ?
		   AND used < (SELECT daily_limit FROM tenants WHERE id = ?)`,
		tenantID, period, tenantID)
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}

	var used int
	if err := s.db.GetContext(ctx, &used,
		`SELECT used FROM tenant_usage WHERE tenant_id = ? AND period = ?`,
		tenantID, period); err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}

	remaining := tenant.DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	decision := &domain.QuotaDecision{
		Allowed: affected == 1,
		Quota: domain.QuotaStatus{
			DailyLimit:     tenant.DailyLimit,
			UsedToday:      used,
			RemainingDaily: remaining,
			Period:         period,
		},
		Trial: trialStatus(tenant, s.now()),
	}
	if !decision.Allowed {
		decision.Reason = "daily generation limit reached"
	}
	return decision, nil
}

func trialStatus(t *domain.Tenant, now time.Time) domain.TrialStatus {
	if t.TrialEndsAt == nil {
		return domain.TrialStatus{}
	}
	days := int(t.TrialEndsAt.Sub(now).Hours() / 24)
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
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM regenerations WHERE tenant_id = ? AND source_post_id = ?`,
		tenantID, sourcePostID); err != nil {
		return false, fmt.Errorf("check regeneration limit: %w", err)
	}
	return count < RegenerationLimit, nil
}

func (s *Store) RecordUsage(ctx context.Context, tenantID, postID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_attribution (tenant_id, post_id, period, recorded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tenant_id, post_id) DO NOTHING`,
		tenantID, postID, s.period(), s.now())
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func (s *Store) RecordRegeneration(ctx context.Context, tenantID, sourcePostID, newPostID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO regenerations (tenant_id, source_post_id, new_post_id, recorded_at)
		 VALUES (?, ?, ?, ?)`,
		tenantID, sourcePostID, newPostID, s.now())
	if err != nil {
		return fmt.Errorf("record regeneration: %w", err)
	}
	return nil
}

func (s *Store) ListQueue(ctx context.Context, tenantID string) ([]*domain.QueueItem, error) {
	var items []*domain.QueueItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT * FROM queue_items WHERE tenant_id = ? ORDER BY position ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return items, nil
}

func (s *Store) GetQueueItem(ctx context.Context, tenantID, id string) (*domain.QueueItem, error) {
	var item domain.QueueItem
	err := s.db.GetContext(ctx, &item,
		`SELECT * FROM queue_items WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return &item, nil
}

func (s *Store) InsertQueueItem(ctx context.Context, item *domain.QueueItem) error {
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (id, tenant_id, title, topic, position, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TenantID, item.Title, item.Topic, item.Position, item.Status,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (s *Store) UpdateQueuePositions(ctx context.Context, tenantID string, idsInOrder []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for pos, id := range idsInOrder {
		res, err := tx.ExecContext(ctx,
			`UPDATE queue_items SET position = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
			pos, s.now(), id, tenantID)
		if err != nil {
			return fmt.Errorf("reorder queue: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reorder queue: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateQueueTitle(ctx context.Context, tenantID, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET title = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		title, s.now(), id, tenantID)
	if err != nil {
		return fmt.Errorf("update queue title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update queue title: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CountQueueByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM queue_items WHERE tenant_id = ? GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count queue: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("count queue: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
