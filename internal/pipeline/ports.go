package pipeline

import (
	"context"
	"encoding/json"

	"github.com/draftforge/content-gateway/internal/jobs"
)

// ComposeInput describes a content generation request to the composer.
type ComposeInput struct {
	Topic     string   `json:"topic"`
	Keywords  []string `json:"keywords,omitempty"`
	Tone      string   `json:"tone,omitempty"`
	Brand     string   `json:"brand,omitempty"`
	TitleOnly bool     `json:"title_only,omitempty"`
}

// Draft is the composer's output artifact.
type Draft struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Excerpt     string `json:"excerpt,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`
}

// Composer generates content drafts.
type Composer interface {
	Compose(ctx context.Context, in ComposeInput) (*Draft, error)
}

// KeywordMiner suggests keywords for a topic. Only consulted when neither the
// request nor the tenant preferences supply any.
type KeywordMiner interface {
	MineKeywords(ctx context.Context, topic string) ([]string, error)
}

// Sanitizer runs the privacy/compliance pass over text. Purpose identifies
// what the text is used for ("topic", "content").
type Sanitizer interface {
	Sanitize(ctx context.Context, text, tenantID, purpose string) (string, error)
}

// SEOAnalyzer scores and annotates generated content.
type SEOAnalyzer interface {
	Score(ctx context.Context, content string, keywords []string) (int, error)
	AnalyzeKeywords(ctx context.Context, content string, keywords []string) ([]string, error)
	StructuredData(ctx context.Context, title, content string) (json.RawMessage, error)
}

// ProductLinker weaves product mentions into content.
type ProductLinker interface {
	InjectMentions(ctx context.Context, content string, productIDs []string) (updated string, mentions []string, err error)
}

// UploadOptions control CDN hosting of a generated image.
type UploadOptions struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`
	AltText string `json:"alt_text,omitempty"`
}

// ImageService generates a featured image and hosts it.
type ImageService interface {
	Generate(ctx context.Context, prompt, title string, keywords []string) (url string, err error)
	Upload(ctx context.Context, url string, opts UploadOptions) (hostedURL string, err error)
}

// JobSubmitter fans work out to background queues.
type JobSubmitter interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts jobs.Options) error
}
