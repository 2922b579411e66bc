package collab

import (
	"context"
	"encoding/json"

	"github.com/draftforge/content-gateway/internal/pipeline"
)

// ComposerClient calls the content generation service.
type ComposerClient struct {
	client
}

func NewComposer(baseURL string, opts ...Option) *ComposerClient {
	return &ComposerClient{newClient(baseURL, opts...)}
}

func (c *ComposerClient) Compose(ctx context.Context, in pipeline.ComposeInput) (*pipeline.Draft, error) {
	var draft pipeline.Draft
	if err := c.postJSON(ctx, "/v1/compose", in, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// SEOClient calls the SEO service for scoring, keyword work, and structured
// data. It also serves keyword mining, which the same service hosts.
type SEOClient struct {
	client
}

func NewSEO(baseURL string, opts ...Option) *SEOClient {
	return &SEOClient{newClient(baseURL, opts...)}
}

func (c *SEOClient) Score(ctx context.Context, content string, keywords []string) (int, error) {
	var out struct {
		Score int `json:"score"`
	}
	err := c.postJSON(ctx, "/v1/score", map[string]any{
		"content":  content,
		"keywords": keywords,
	}, &out)
	return out.Score, err
}

func (c *SEOClient) AnalyzeKeywords(ctx context.Context, content string, keywords []string) ([]string, error) {
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := c.postJSON(ctx, "/v1/keywords/analyze", map[string]any{
		"content":  content,
		"keywords": keywords,
	}, &out)
	return out.Keywords, err
}

func (c *SEOClient) StructuredData(ctx context.Context, title, content string) (json.RawMessage, error) {
	var out struct {
		StructuredData json.RawMessage `json:"structured_data"`
	}
	err := c.postJSON(ctx, "/v1/structured-data", map[string]any{
		"title":   title,
		"content": content,
	}, &out)
	return out.StructuredData, err
}

func (c *SEOClient) MineKeywords(ctx context.Context, topic string) ([]string, error) {
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := c.postJSON(ctx, "/v1/keywords/mine", map[string]string{"topic": topic}, &out)
	return out.Keywords, err
}

// SanitizerClient calls the compliance/privacy sanitization service.
type SanitizerClient struct {
	client
}

func NewSanitizer(baseURL string, opts ...Option) *SanitizerClient {
	return &SanitizerClient{newClient(baseURL, opts...)}
}

func (c *SanitizerClient) Sanitize(ctx context.Context, text, tenantID, purpose string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.postJSON(ctx, "/v1/sanitize", map[string]string{
		"text":      text,
		"tenant_id": tenantID,
		"purpose":   purpose,
	}, &out)
	return out.Text, err
}

// ProductsClient calls the storefront service to weave product mentions into
// content.
type ProductsClient struct {
	client
}

func NewProducts(baseURL string, opts ...Option) *ProductsClient {
	return &ProductsClient{newClient(baseURL, opts...)}
}

func (c *ProductsClient) InjectMentions(ctx context.Context, content string, productIDs []string) (string, []string, error) {
	var out struct {
		Content  string   `json:"content"`
		Mentions []string `json:"mentions"`
	}
	err := c.postJSON(ctx, "/v1/mentions", map[string]any{
		"content":     content,
		"product_ids": productIDs,
	}, &out)
	if err != nil {
		return "", nil, err
	}
	return out.Content, out.Mentions, nil
}

// ImagesClient calls the image generation and hosting service.
type ImagesClient struct {
	client
}

func NewImages(baseURL string, opts ...Option) *ImagesClient {
	return &ImagesClient{newClient(baseURL, opts...)}
}

func (c *ImagesClient) Generate(ctx context.Context, prompt, title string, keywords []string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.postJSON(ctx, "/v1/generate", map[string]any{
		"prompt":   prompt,
		"title":    title,
		"keywords": keywords,
	}, &out)
	return out.URL, err
}

func (c *ImagesClient) Upload(ctx context.Context, url string, opts pipeline.UploadOptions) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.postJSON(ctx, "/v1/upload", map[string]any{
		"url":     url,
		"options": opts,
	}, &out)
	return out.URL, err
}
