// Package gateway wires the admission pipeline and HTTP server.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/auth"
	"github.com/svcgateway/svcgw/internal/authz"
	"github.com/svcgateway/svcgw/internal/backend"
	"github.com/svcgateway/svcgw/internal/cache"
	"github.com/svcgateway/svcgw/internal/circuitbreaker"
	"github.com/svcgateway/svcgw/internal/proxy"
	"github.com/svcgateway/svcgw/internal/ratelimit"
	"github.com/svcgateway/svcgw/internal/router"
	"github.com/svcgateway/svcgw/internal/security"
	"github.com/svcgateway/svcgw/internal/util"
)

// TokenValidator verifies a bearer token and returns the caller identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Identity, error)
}

// Forwarder sends an admitted request to a backend instance.
type Forwarder interface {
	Forward(ctx context.Context, inst *backend.Instance, r *http.Request, body []byte) (*proxy.Response, error)
}

// Pipeline runs every inbound request through the gateway's admission
// stages in a fixed order: perimeter checks, authentication, rate
// limiting, cache lookup, circuit breaker gate, instance selection and
// the forward itself. The first failing stage terminates the request
// and later stages never run.
type Pipeline struct {
	admission *security.Admission
	validator TokenValidator
	guard     *authz.Guard
	limiter   ratelimit.Limiter
	router    *router.Router
	breakers  *circuitbreaker.Registry
	cache     cache.Cache
	policy    *cache.Policy
	forwarder Forwarder

	cacheTTL time.Duration
	logger   *zap.Logger
}

// PipelineConfig holds the pipeline's collaborators.
type PipelineConfig struct {
	Admission *security.Admission
	Validator TokenValidator
	Guard     *authz.Guard
	Limiter   ratelimit.Limiter
	Router    *router.Router
	Breakers  *circuitbreaker.Registry
	Cache     cache.Cache
	Policy    *cache.Policy
	Forwarder Forwarder
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// NewPipeline assembles the pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		admission: cfg.Admission,
		validator: cfg.Validator,
		guard:     cfg.Guard,
		limiter:   cfg.Limiter,
		router:    cfg.Router,
		breakers:  cfg.Breakers,
		cache:     cfg.Cache,
		policy:    cfg.Policy,
		forwarder: cfg.Forwarder,
		cacheTTL:  cfg.CacheTTL,
		logger:    cfg.Logger,
	}

	if p.policy == nil {
		p.policy = cache.NewPolicy(nil)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	return p
}

// Handle processes one request end to end.
func (p *Pipeline) Handle(c *gin.Context) {
	start := time.Now()
	r := c.Request

	clientIP := p.admission.ClientIP(r)

	if err := p.admission.CheckIP(clientIP); err != nil {
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrForbidden, "client ip not allowed", err))
		return
	}

	if err := p.admission.CheckOrigin(r); err != nil {
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrForbidden, "origin not allowed", err))
		return
	}

	if err := p.admission.CheckPayloadSize(r); err != nil {
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrPayloadTooLarge, "request body exceeds limit", err))
		return
	}

	identity, err := p.authenticate(c)
	if err != nil {
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrUnauthorized, "invalid or missing token", err))
		return
	}

	if p.guard != nil {
		if err := p.guard.Authorize(identity, r.URL.Path); err != nil {
			p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrForbidden, "access denied", err))
			return
		}
	}

	result, err := p.limiter.Allow(r.Context(),
		ratelimit.KeyForSubject(identity.Subject),
		ratelimit.ParseTier(identity.Tier),
	)
	if err != nil {
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrServiceUnavail, "rate limiter unavailable", err))
		return
	}
	if !result.Allowed {
		p.reject(c, start, util.NewRateLimitError("rate limit exceeded", result.RetryAfter))
		return
	}

	svc, err := p.router.Match(r.URL.Path)
	if err != nil {
		p.writeNotFound(c, start)
		return
	}

	// The capped body is drained before any breaker accounting so a
	// chunked body exceeding the limit stays a client error and never
	// counts against the backend.
	body, err := p.readBody(r)
	if err != nil {
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrPayloadTooLarge, "request body exceeds limit", err))
		return
	}

	cacheable := p.cache != nil && p.policy.RequestCacheable(r)
	var cacheKey string
	if cacheable {
		cacheKey = cache.Fingerprint(r)
		if cached := p.lookupCache(r.Context(), cacheKey); cached != nil {
			p.replay(c, cached, "HIT")
			recordRequest(r.Method, c.Writer.Status(), time.Since(start))
			return
		}
	}

	breaker := p.breakers.GetOrCreate(svc.Name)
	if !breaker.Allow() {
		p.reject(c, start, util.NewGatewayError(util.ErrServiceUnavail, "service temporarily unavailable"))
		return
	}

	inst, err := svc.Select()
	if err != nil {
		// No backend was attempted; the admission (and any half-open
		// trial slot) is handed back without recording an outcome.
		breaker.Abandon()
		p.reject(c, start, util.NewGatewayErrorWithCause(util.ErrNoHealthyBackend, "no healthy backend instances", err))
		return
	}

	security.PrepareForwardHeaders(r.Header, clientIP)

	// The forward is detached from client cancellation. The forwarder's
	// own timeout still bounds the call, and the outcome recorded below
	// reflects the backend, not an impatient client.
	resp, err := p.forwarder.Forward(context.WithoutCancel(r.Context()), inst, r, body)

	// Outcomes are recorded unconditionally so results arriving after
	// the breaker opened still land in its statistics.
	if proxy.Classify(resp, err) == proxy.OutcomeSuccess {
		breaker.RecordSuccess()
	} else {
		breaker.RecordFailure()
	}

	if err != nil {
		p.reject(c, start, err)
		return
	}

	respBody := resp.Body
	if isJSONContent(resp.Header.Get("Content-Type")) {
		respBody = security.MaskSensitiveJSON(respBody)
	}

	response := &cache.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		StoredAt:   time.Now(),
	}

	if cacheable {
		p.replay(c, response, "MISS")
	} else {
		p.replay(c, response, "")
	}
	recordRequest(r.Method, resp.StatusCode, time.Since(start))

	if cacheable && p.policy.ResponseCacheable(resp.StatusCode) {
		p.storeCache(context.WithoutCancel(r.Context()), cacheKey, response)
	}
}

// authenticate extracts and validates the bearer token.
func (p *Pipeline) authenticate(c *gin.Context) (*auth.Identity, error) {
	token, err := auth.ExtractBearerToken(c.Request)
	if err != nil {
		return nil, err
	}

	identity, err := p.validator.Validate(c.Request.Context(), token)
	if err != nil {
		return nil, err
	}

	c.Request = c.Request.WithContext(auth.ContextWithIdentity(c.Request.Context(), identity))

	return identity, nil
}

// lookupCache fetches and decodes a cached response, or nil on miss.
func (p *Pipeline) lookupCache(ctx context.Context, key string) *cache.Response {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
			p.logger.Warn("cache lookup failed", zap.Error(err))
		}
		return nil
	}

	cached, err := cache.DecodeResponse(data)
	if err != nil {
		p.logger.Warn("cache entry corrupt", zap.Error(err))
		return nil
	}

	return cached
}

// storeCache serializes and stores a response envelope.
func (p *Pipeline) storeCache(ctx context.Context, key string, resp *cache.Response) {
	data, err := cache.EncodeResponse(resp)
	if err != nil {
		p.logger.Warn("cache encode failed", zap.Error(err))
		return
	}

	if err := p.cache.Set(ctx, key, data, p.cacheTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		p.logger.Warn("cache store failed", zap.Error(err))
	}
}

// replay writes a response envelope to the client.
func (p *Pipeline) replay(c *gin.Context, resp *cache.Response, cacheStatus string) {
	header := c.Writer.Header()
	for name, values := range resp.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}

	security.ApplySecurityHeaders(header)
	if cacheStatus != "" {
		header.Set("X-Cache", cacheStatus)
	}

	// The body may have been filtered; the original length no longer applies.
	header.Del("Content-Length")

	c.Writer.WriteHeader(resp.StatusCode)
	_, _ = c.Writer.Write(resp.Body)
}

// isJSONContent reports whether the content type is a JSON media type.
func isJSONContent(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

// readBody drains the request body so it can be forwarded once and
// reused. The admission stage has already capped the reader.
func (p *Pipeline) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// reject terminates the request with a gateway error.
func (p *Pipeline) reject(c *gin.Context, start time.Time, err error) {
	security.ApplySecurityHeaders(c.Writer.Header())
	writeError(c, err)
	recordRequest(c.Request.Method, c.Writer.Status(), time.Since(start))

	p.logger.Debug("request rejected",
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Error(err),
	)
}

// writeNotFound reports a path with no configured route.
func (p *Pipeline) writeNotFound(c *gin.Context, start time.Time) {
	security.ApplySecurityHeaders(c.Writer.Header())
	c.JSON(http.StatusNotFound, errorBody{
		Error:   "not_found",
		Message: "no route for path",
	})
	recordRequest(c.Request.Method, http.StatusNotFound, time.Since(start))
}
