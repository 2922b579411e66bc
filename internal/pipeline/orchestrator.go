// Package pipeline orchestrates the multi-stage content creation workflow:
// quota enforcement, generation, enrichment, persistence, and background
// fan-out. Optional stages degrade to warnings; fatal stages abort.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/jobs"
	"github.com/draftforge/content-gateway/internal/retry"
	"github.com/draftforge/content-gateway/internal/server"
	"github.com/draftforge/content-gateway/internal/storage"
)

// Input bounds enforced before anything else runs.
const (
	maxTopicLength = 300
	maxKeywords    = 20
	maxProducts    = 10
)

// Trial plan applied on first use of a tenant without a plan.
const (
	trialPlanID     = "trial"
	trialDailyLimit = 3
	trialDuration   = 14 * 24 * time.Hour
)

// CreateContentRequest is the validated input to content creation.
type CreateContentRequest struct {
	TenantID        string   `json:"tenant_id"`
	Topic           string   `json:"topic"`
	Keywords        []string `json:"keywords,omitempty"`
	ProductIDs      []string `json:"product_ids,omitempty"`
	RegeneratedFrom string   `json:"regenerated_from,omitempty"`
}

// Result is the terminal state of a successful pipeline run. Warnings record
// optional-stage failures; they never change the outcome.
type Result struct {
	Post     *domain.Post `json:"post"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store     storage.Store
	Composer  Composer
	Miner     KeywordMiner
	Sanitizer Sanitizer
	SEO       SEOAnalyzer
	Products  ProductLinker
	Images    ImageService
	Jobs      JobSubmitter
	Logger    *slog.Logger
	Metrics   *server.Metrics

	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Orchestrator runs the content creation pipeline.
type Orchestrator struct {
	store     storage.Store
	composer  Composer
	miner     KeywordMiner
	sanitizer Sanitizer
	seo       SEOAnalyzer
	products  ProductLinker
	images    ImageService
	jobs      JobSubmitter
	logger    *slog.Logger
	metrics   *server.Metrics

	maxAttempts int
	baseDelay   time.Duration
	newID       func() string
}

func New(cfg Config) *Orchestrator {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	return &Orchestrator{
		store:       cfg.Store,
		composer:    cfg.Composer,
		miner:       cfg.Miner,
		sanitizer:   cfg.Sanitizer,
		seo:         cfg.SEO,
		products:    cfg.Products,
		images:      cfg.Images,
		jobs:        cfg.Jobs,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		maxAttempts: cfg.RetryAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		newID:       func() string { return uuid.New().String() },
	}
}

// CreateContent runs the pipeline for one creation request. Fatal stages
// return an APIError and persist nothing past the last completed durable
// write; optional stages append warnings and carry the artifact forward.
func (o *Orchestrator) CreateContent(ctx context.Context, req CreateContentRequest) (*Result, error) {
	res := &Result{}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.RegeneratedFrom != "" {
		ok, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
			func(ctx context.Context) (bool, error) {
				return o.store.CheckRegenerationLimit(ctx, req.TenantID, req.RegeneratedFrom)
			})
		if err != nil {
			return nil, domain.ErrUpstream("regeneration limit check failed")
		}
		if !ok {
			return nil, domain.NewAPIError(domain.ErrorTypeQuotaExceeded,
				"regeneration limit reached for this post").
				WithCode(domain.ErrorCodeQuotaExceeded)
		}
	}

	tenant, err := o.loadTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	o.provisionTrialIfNeeded(ctx, tenant, res)

	decision, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (*domain.QuotaDecision, error) {
			return o.store.CheckAndIncrementQuota(ctx, req.TenantID)
		})
	if err != nil {
		return nil, domain.ErrUpstream("quota check failed")
	}
	if !decision.Allowed {
		if o.metrics != nil {
			o.metrics.QuotaDenials.Inc()
		}
		return nil, domain.ErrQuotaExceeded(decision.Reason, decision.Quota, decision.Trial)
	}

	keywords := o.resolveKeywords(ctx, req, tenant, res)

	topic, keywords, err := o.sanitizeInput(ctx, req.Topic, keywords, req.TenantID)
	if err != nil {
		return nil, err
	}

	draft, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (*Draft, error) {
			return o.composer.Compose(ctx, ComposeInput{
				Topic:    topic,
				Keywords: keywords,
				Tone:     tenant.ToneProfile,
				Brand:    tenant.BrandProfile,
			})
		})
	if err != nil {
		o.stageFailed(ctx, "compose", err)
		return nil, domain.ErrUpstream("content generation failed")
	}

	post := &domain.Post{
		ID:              o.newID(),
		TenantID:        tenant.ID,
		Title:           draft.Title,
		Content:         draft.Content,
		Excerpt:         draft.Excerpt,
		Topic:           topic,
		Keywords:        keywords,
		Status:          domain.PostStatusDraft,
		RegeneratedFrom: req.RegeneratedFrom,
	}

	o.optimizeSEO(ctx, post, res)
	o.injectProducts(ctx, post, req.ProductIDs, res)

	sanitized, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (string, error) {
			return o.sanitizer.Sanitize(ctx, post.Content, tenant.ID, "content")
		})
	if err != nil {
		o.stageFailed(ctx, "sanitize_content", err)
		return nil, domain.ErrUpstream("content sanitization failed")
	}
	post.Content = sanitized

	o.attachFeaturedImage(ctx, tenant, draft, post, res)

	post.ReviewState = domain.ReviewStateApproved
	if tenant.ContentPreferences.RequireReview {
		post.ReviewState = domain.ReviewStatePending
	}
	if _, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.store.CreatePost(ctx, post)
		}); err != nil {
		o.stageFailed(ctx, "persist", err)
		return nil, domain.ErrUpstream("failed to persist post")
	}

	if req.RegeneratedFrom != "" {
		if err := o.store.RecordRegeneration(ctx, tenant.ID, req.RegeneratedFrom, post.ID); err != nil {
			o.logger.Warn("regeneration linkage not recorded",
				slog.String("tenant_id", tenant.ID),
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.store.RecordUsage(ctx, tenant.ID, post.ID)
		}); err != nil {
		o.stageFailed(ctx, "record_usage", err)
		res.warnf("usage attribution for post %s was not recorded", post.ID)
	}

	o.enqueueFollowups(ctx, tenant, post, res)

	res.Post = post
	return res, nil
}

func validateRequest(req CreateContentRequest) error {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return domain.ErrValidation("topic is required").WithParam("topic")
	}
	if len(topic) > maxTopicLength {
		return domain.ErrValidation(fmt.Sprintf("topic exceeds %d characters", maxTopicLength)).WithParam("topic")
	}
	if len(req.Keywords) > maxKeywords {
		return domain.ErrValidation(fmt.Sprintf("at most %d keywords allowed", maxKeywords)).WithParam("keywords")
	}
	if len(req.ProductIDs) > maxProducts {
		return domain.ErrValidation(fmt.Sprintf("at most %d product ids allowed", maxProducts)).WithParam("product_ids")
	}
	return nil
}

func (o *Orchestrator) loadTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (*domain.Tenant, error) {
			t, err := o.store.GetTenant(ctx, tenantID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return t, err
		})
	if err != nil {
		return nil, domain.ErrUpstream("tenant lookup failed")
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound(fmt.Sprintf("tenant %s not found", tenantID))
	}
	if !tenant.IsActive {
		return nil, domain.ErrTenantNotFound(fmt.Sprintf("tenant %s is not active", tenantID))
	}
	return tenant, nil
}

// provisionTrialIfNeeded attaches the trial plan to a tenant seen for the
// first time without one. Failure here never aborts the request; the main
// quota check below remains the authority.
func (o *Orchestrator) provisionTrialIfNeeded(ctx context.Context, tenant *domain.Tenant, res *Result) {
	if tenant.PlanID != "" {
		return
	}
	endsAt := time.Now().UTC().Add(trialDuration)
	if err := o.store.AttachPlan(ctx, tenant.ID, trialPlanID, trialDailyLimit, endsAt); err != nil {
		o.stageFailed(ctx, "trial_provisioning", err)
		res.warnf("trial plan could not be provisioned; continuing with existing limits")
		return
	}
	tenant.PlanID = trialPlanID
	tenant.DailyLimit = trialDailyLimit
	tenant.TrialEndsAt = &endsAt
}

// resolveKeywords merges explicit and tenant-preference keywords, consulting
// the miner only when both are empty.
func (o *Orchestrator) resolveKeywords(ctx context.Context, req CreateContentRequest, tenant *domain.Tenant, res *Result) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, k := range append(append([]string{}, req.Keywords...), tenant.ContentPreferences.Keywords...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		keywords = append(keywords, k)
	}
	if len(keywords) > 0 {
		return keywords
	}

	mined, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) ([]string, error) {
			return o.miner.MineKeywords(ctx, req.Topic)
		})
	if err != nil {
		o.stageFailed(ctx, "keyword_mining", err)
		res.warnf("keyword mining failed; continuing without keywords")
		return nil
	}
	return mined
}

// sanitizeInput runs the compliance pass over topic and keywords. Unsanitized
// input must not reach generation or storage, so failure is fatal.
func (o *Orchestrator) sanitizeInput(ctx context.Context, topic string, keywords []string, tenantID string) (string, []string, error) {
	cleanTopic, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (string, error) {
			return o.sanitizer.Sanitize(ctx, topic, tenantID, "topic")
		})
	if err != nil {
		o.stageFailed(ctx, "sanitize_topic", err)
		return "", nil, domain.ErrUpstream("topic sanitization failed")
	}

	clean := make([]string, 0, len(keywords))
	for _, k := range keywords {
		ck, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
			func(ctx context.Context) (string, error) {
				return o.sanitizer.Sanitize(ctx, k, tenantID, "keyword")
			})
		if err != nil {
			o.stageFailed(ctx, "sanitize_keywords", err)
			return "", nil, domain.ErrUpstream("keyword sanitization failed")
		}
		clean = append(clean, ck)
	}
	return cleanTopic, clean, nil
}

func (o *Orchestrator) optimizeSEO(ctx context.Context, post *domain.Post, res *Result) {
	score, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (int, error) {
			return o.seo.Score(ctx, post.Content, post.Keywords)
		})
	if err != nil {
		o.stageFailed(ctx, "seo_score", err)
		res.warnf("SEO scoring failed")
	} else {
		post.SEOScore = score
	}

	analyzed, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) ([]string, error) {
			return o.seo.AnalyzeKeywords(ctx, post.Content, post.Keywords)
		})
	if err != nil {
		o.stageFailed(ctx, "seo_keywords", err)
		res.warnf("SEO keyword analysis failed")
	} else if len(analyzed) > 0 {
		post.Keywords = analyzed
	}

	sd, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (json.RawMessage, error) {
			return o.seo.StructuredData(ctx, post.Title, post.Content)
		})
	if err != nil {
		o.stageFailed(ctx, "seo_structured_data", err)
		res.warnf("structured data generation failed")
	} else {
		post.StructuredData = sd
	}
}

func (o *Orchestrator) injectProducts(ctx context.Context, post *domain.Post, productIDs []string, res *Result) {
	if len(productIDs) == 0 {
		return
	}
	type injected struct {
		content  string
		mentions []string
	}
	out, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (injected, error) {
			content, mentions, err := o.products.InjectMentions(ctx, post.Content, productIDs)
			return injected{content, mentions}, err
		})
	if err != nil {
		o.stageFailed(ctx, "product_mentions", err)
		res.warnf("product mention injection failed; content published without product links")
		return
	}
	post.Content = out.content
	post.ProductMentions = out.mentions
}

// attachFeaturedImage generates and hosts an image when the tenant has images
// enabled and the draft produced a prompt. Hosting failure falls back to the
// generator URL.
func (o *Orchestrator) attachFeaturedImage(ctx context.Context, tenant *domain.Tenant, draft *Draft, post *domain.Post, res *Result) {
	if !tenant.ContentPreferences.ImagesEnabled || draft.ImagePrompt == "" {
		return
	}

	rawURL, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (string, error) {
			return o.images.Generate(ctx, draft.ImagePrompt, post.Title, post.Keywords)
		})
	if err != nil {
		o.stageFailed(ctx, "image_generate", err)
		res.warnf("featured image generation failed")
		return
	}

	hosted, err := retry.Do(ctx, o.logger, o.maxAttempts, o.baseDelay,
		func(ctx context.Context) (string, error) {
			return o.images.Upload(ctx, rawURL, UploadOptions{
				Width:   1200,
				Height:  630,
				Format:  "webp",
				Quality: 85,
				AltText: post.Title,
			})
		})
	if err != nil {
		o.stageFailed(ctx, "image_upload", err)
		res.warnf("featured image hosting failed; using unhosted image URL")
		post.FeaturedImageURL = rawURL
		return
	}
	post.FeaturedImageURL = hosted
}

func (o *Orchestrator) enqueueFollowups(ctx context.Context, tenant *domain.Tenant, post *domain.Post, res *Result) {
	if tenant.ContentPreferences.InternalLinksEnabled {
		err := o.jobs.Enqueue(ctx, jobs.TypeLinksRebuild,
			map[string]string{"tenant_id": tenant.ID, "post_id": post.ID},
			jobs.Options{Priority: jobs.PriorityLow})
		if err != nil {
			o.stageFailed(ctx, "links_rebuild", err)
			res.warnf("internal link rebuild was not scheduled")
		} else if o.metrics != nil {
			o.metrics.JobsEnqueued.WithLabelValues(jobs.TypeLinksRebuild).Inc()
		}
	}

	if tenant.ContentPreferences.SnippetsEnabled {
		err := o.jobs.Enqueue(ctx, jobs.TypeSnippetGenerate,
			map[string]string{"tenant_id": tenant.ID, "post_id": post.ID},
			jobs.Options{})
		if err != nil {
			o.stageFailed(ctx, "snippet_generate", err)
			res.warnf("snippet generation was not scheduled")
		} else if o.metrics != nil {
			o.metrics.JobsEnqueued.WithLabelValues(jobs.TypeSnippetGenerate).Inc()
		}
	}
}

func (o *Orchestrator) stageFailed(ctx context.Context, stage string, err error) {
	o.logger.WarnContext(ctx, "pipeline stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	if o.metrics != nil {
		o.metrics.PipelineStageFails.WithLabelValues(stage).Inc()
	}
}
