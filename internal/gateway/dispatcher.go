// Package gateway implements the per-request processing envelope: size
// limits, authentication, rate limiting, tenant resolution, response caching,
// input validation, the handler timeout race, and error translation.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/draftforge/content-gateway/internal/auth"
	"github.com/draftforge/content-gateway/internal/cache"
	"github.com/draftforge/content-gateway/internal/domain"
	"github.com/draftforge/content-gateway/internal/ratelimit"
	"github.com/draftforge/content-gateway/internal/server"
	"github.com/draftforge/content-gateway/internal/tenant"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxRequestSize = 1 << 20
)

// Request is the handler-facing view of an inbound request.
type Request struct {
	HTTP     *http.Request
	RC       *server.RequestContext
	TenantID string

	// Params merges query parameters and, for write methods, the parsed
	// JSON body. Body values win on conflict.
	Params map[string]any
	Body   map[string]any
}

// PathParam returns a chi URL parameter.
func (req *Request) PathParam(name string) string {
	return chi.URLParam(req.HTTP, name)
}

// StringParam returns a string-typed parameter, or "".
func (req *Request) StringParam(name string) string {
	s, _ := req.Params[name].(string)
	return s
}

// StringSliceParam returns a parameter given as a JSON array of strings.
func (req *Request) StringSliceParam(name string) []string {
	raw, ok := req.Params[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IntParam returns an integer parameter (JSON number or numeric string).
func (req *Request) IntParam(name string, fallback int) int {
	switch v := req.Params[name].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Reply is a handler's successful outcome.
type Reply struct {
	Status   int
	Data     any
	Metadata map[string]any
}

// HandlerFunc processes one dispatched request.
type HandlerFunc func(ctx context.Context, req *Request) (*Reply, error)

// ValidateFunc checks the merged parameter object before the handler runs.
type ValidateFunc func(params map[string]any) error

// Interceptor observes a request before or after the handler.
type Interceptor func(ctx context.Context, r *http.Request)

// ErrorInterceptor may fully handle an error response. Returning true stops
// the default error translation.
type ErrorInterceptor func(w http.ResponseWriter, r *http.Request, err error) bool

// RateLimitConfig declares a per-route fixed window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// CacheConfig declares response caching for a GET route.
type CacheConfig struct {
	TTL time.Duration
}

// RouteConfig is the per-route policy, declared at registration time and
// resolved once at startup.
type RouteConfig struct {
	RequiresAuth   bool
	RequiresTenant bool
	RateLimit      *RateLimitConfig
	Cache          *CacheConfig
	Timeout        time.Duration
	Validate       ValidateFunc
	MaxRequestSize int64
}

// Dispatcher owns the route registry and per-request policy state. All
// mutable state (cache, limiter) is instance-scoped, never global.
type Dispatcher struct {
	router   chi.Router
	verifier *auth.Verifier
	resolver *tenant.Resolver
	cache    *cache.ResponseCache
	limiter  *ratelimit.Limiter
	metrics  *server.Metrics
	logger   *slog.Logger

	pre     []Interceptor
	post    []Interceptor
	onError []ErrorInterceptor
	now     func() time.Time
}

// Config wires a Dispatcher.
type Config struct {
	Router   chi.Router
	Verifier *auth.Verifier
	Resolver *tenant.Resolver
	Cache    *cache.ResponseCache
	Limiter  *ratelimit.Limiter
	Metrics  *server.Metrics
	Logger   *slog.Logger
}

func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		router:   cfg.Router,
		verifier: cfg.Verifier,
		resolver: cfg.Resolver,
		cache:    cfg.Cache,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// UsePre adds a pre-request interceptor.
func (d *Dispatcher) UsePre(i Interceptor) { d.pre = append(d.pre, i) }

// UsePost adds a post-response interceptor.
func (d *Dispatcher) UsePost(i Interceptor) { d.post = append(d.post, i) }

// UseError adds an error interceptor. Error interceptors get first refusal
// before the default translation runs.
func (d *Dispatcher) UseError(i ErrorInterceptor) { d.onError = append(d.onError, i) }

// Register mounts a route with its policy onto the router.
func (d *Dispatcher) Register(method, pattern string, cfg RouteConfig, h HandlerFunc) {
	d.router.MethodFunc(method, pattern, d.dispatch(pattern, cfg, h))
}

func (d *Dispatcher) dispatch(pattern string, cfg RouteConfig, h HandlerFunc) http.HandlerFunc {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := d.now()
		status, err := d.process(w, r, cfg, h, timeout, maxSize)
		if err != nil {
			for _, intercept := range d.onError {
				if intercept(w, r, err) {
					return
				}
			}
			if apiErr, ok := domain.AsAPIError(err); ok {
				status = apiErr.HTTPStatusCode()
			} else {
				status = http.StatusInternalServerError
			}
			server.WriteError(w, r, err)
		}
		if d.metrics != nil {
			d.metrics.RequestsTotal.WithLabelValues(pattern, strconv.Itoa(status)).Inc()
			d.metrics.RequestDuration.WithLabelValues(pattern).Observe(d.now().Sub(start).Seconds())
		}
	}
}

// process runs the dispatch steps in order, short-circuiting on the first
// failure. It returns the status written on the success path.
func (d *Dispatcher) process(w http.ResponseWriter, r *http.Request, cfg RouteConfig, h HandlerFunc, timeout time.Duration, maxSize int64) (int, error) {
	rc := server.GetRequestContext(r.Context())
	if rc == nil {
		rc = &server.RequestContext{StartTime: d.now()}
		r = r.WithContext(server.WithRequestContext(r.Context(), rc))
	}

	// 1. Declared size limit.
	if r.ContentLength > maxSize {
		return 0, domain.ErrPayloadTooLarge(
			fmt.Sprintf("request body exceeds %d bytes", maxSize))
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	// 2. Pre-request interceptors.
	for _, intercept := range d.pre {
		intercept(r.Context(), r)
	}

	// 3. Authentication.
	if cfg.RequiresAuth {
		claims, err := d.verifier.VerifyRequest(r)
		if err != nil {
			return 0, domain.ErrAuthentication("invalid or missing credentials")
		}
		rc.CallerID = claims.CallerID
		if rc.TenantID == "" {
			rc.TenantID = claims.TenantID
		}
		server.AddLogField(r.Context(), "caller_id", rc.CallerID)
	}

	// 4. Rate limiting, keyed caller:tenant:path.
	if cfg.RateLimit != nil {
		key := rc.CallerID + ":" + rc.TenantID + ":" + r.URL.Path
		result := d.limiter.Check(key, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		if !result.Allowed {
			if d.metrics != nil {
				d.metrics.RateLimitRejects.Inc()
			}
			return 0, domain.ErrRateLimited("rate limit exceeded", result.RetryAfter(d.now()))
		}
	}

	// Parse the body early: tenant resolution and validation both read it.
	body, err := d.parseBody(r)
	if err != nil {
		return 0, err
	}

	// Tenant resolution, when the route acts on tenant-owned data.
	if cfg.RequiresTenant {
		_, err := d.resolver.Resolve(r.Context(), rc, tenant.ResolveInput{
			Query:      r.URL.Query(),
			Body:       body,
			PathDomain: chi.URLParam(r, "domain"),
		})
		if err != nil {
			return 0, err
		}
		server.AddLogField(r.Context(), "tenant_id", rc.TenantID)
	}

	// 5. Cache lookup for cacheable reads.
	var cacheKey string
	if cfg.Cache != nil && r.Method == http.MethodGet {
		cacheKey = cache.Key(r.URL.Path, rc.TenantID, r.URL.Query())
		if data, ok := d.cache.Get(cacheKey); ok {
			if d.metrics != nil {
				d.metrics.CacheLookups.WithLabelValues("hit").Inc()
			}
			server.WriteJSON(w, r, http.StatusOK, json.RawMessage(data), map[string]any{"cached": true})
			return http.StatusOK, nil
		}
		if d.metrics != nil {
			d.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	// 6. Input validation over the merged parameter object.
	params := mergeParams(r, body)
	if cfg.Validate != nil {
		if err := cfg.Validate(params); err != nil {
			if _, ok := domain.AsAPIError(err); ok {
				return 0, err
			}
			return 0, domain.ErrValidation(err.Error())
		}
	}

	req := &Request{
		HTTP:     r,
		RC:       rc,
		TenantID: rc.TenantID,
		Params:   params,
		Body:     body,
	}

	// 7. Handler raced against the route timeout. The derived context is
	// cancelled on timeout so downstream calls stop instead of running on.
	reply, err := d.runWithTimeout(r.Context(), timeout, req, h)
	if err != nil {
		return 0, err
	}
	if reply == nil {
		reply = &Reply{}
	}
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}

	// 8. Cache population for successful cacheable GETs.
	if cacheKey != "" && reply.Status == http.StatusOK {
		if data, err := json.Marshal(reply.Data); err == nil {
			d.cache.Set(cacheKey, data, cfg.Cache.TTL)
		}
	}

	// 9. Post-response interceptors, then the envelope.
	for _, intercept := range d.post {
		intercept(r.Context(), r)
	}
	server.WriteJSON(w, r, reply.Status, reply.Data, reply.Metadata)
	return reply.Status, nil
}

func (d *Dispatcher) runWithTimeout(parent context.Context, timeout time.Duration, req *Request, h HandlerFunc) (*Reply, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type outcome struct {
		reply *Reply
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		reply, err := h(ctx, req)
		done <- outcome{reply, err}
	}()

	select {
	case out := <-done:
		return out.reply, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrTimeout("request timed out")
		}
		return nil, ctx.Err()
	}
}

// parseBody decodes a JSON body for write methods. An empty body is fine.
func (d *Dispatcher) parseBody(r *http.Request) (map[string]any, error) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, domain.ErrPayloadTooLarge(
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return nil, domain.ErrValidation("unreadable request body")
	}
	if len(data) == 0 {
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, domain.ErrValidation("request body must be a JSON object")
	}
	return body, nil
}

// mergeParams folds query parameters and the body into one object. Body
// values win on conflict.
func mergeParams(r *http.Request, body map[string]any) map[string]any {
	params := make(map[string]any)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	for name, value := range body {
		params[name] = value
	}
	return params
}
