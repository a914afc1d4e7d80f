// Package proxy forwards admitted requests to backend instances.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/backend"
	"github.com/svcgateway/svcgw/internal/security"
	"github.com/svcgateway/svcgw/internal/util"
)

// tracerName is the OpenTelemetry tracer name for proxy operations.
const tracerName = "svcgw/proxy"

// Response is the materialized backend response. The body is read
// fully before returning so the caller can both replay it to the
// client and hand it to the cache.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Forwarder sends requests to backend instances with a bounded
// timeout. The gateway never retries; a failed forward surfaces
// immediately so the circuit breaker sees every outcome.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// ForwarderOption is a functional option for the forwarder.
type ForwarderOption func(*Forwarder)

// WithForwardLogger sets the logger.
func WithForwardLogger(logger *zap.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client. Used by tests.
func WithHTTPClient(client *http.Client) ForwarderOption {
	return func(f *Forwarder) {
		f.client = client
	}
}

// NewForwarder creates a forwarder with the given per-request timeout.
func NewForwarder(timeout time.Duration, opts ...ForwarderOption) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	f := &Forwarder{
		timeout: timeout,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		f.client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are passed through to the client untouched.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return f
}

// Forward sends the request to the instance and materializes the
// response. Transport failures and timeouts return gateway errors;
// backend HTTP error statuses are returned as responses, not errors,
// so the caller classifies them.
func (f *Forwarder) Forward(ctx context.Context, inst *backend.Instance, r *http.Request, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "proxy.Forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("backend.instance", inst.URL.String()),
		),
	)
	defer span.End()

	outbound, err := f.buildRequest(ctx, inst, r, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, util.NewGatewayErrorWithCause(util.ErrBackendError, "failed to build backend request", err)
	}

	resp, err := f.client.Do(outbound)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, f.classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, f.classifyTransportError(err)
	}

	header := resp.Header.Clone()
	security.StripHopByHop(header)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       respBody,
	}, nil
}

// buildRequest clones the inbound request against the instance URL.
func (f *Forwarder) buildRequest(ctx context.Context, inst *backend.Instance, r *http.Request, body []byte) (*http.Request, error) {
	target := *inst.URL
	target.Path = singleJoin(inst.URL.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = newByteReader(body)
	}

	outbound, err := http.NewRequestWithContext(ctx, r.Method, target.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	outbound.Header = r.Header.Clone()
	security.StripHopByHop(outbound.Header)

	return outbound, nil
}

// classifyTransportError maps transport failures onto gateway errors.
func (f *Forwarder) classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return util.NewGatewayErrorWithCause(util.ErrBackendTimeout, "backend did not respond in time", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return util.NewGatewayErrorWithCause(util.ErrBackendTimeout, "backend did not respond in time", err)
	}

	return util.NewGatewayErrorWithCause(util.ErrBackendError, "backend request failed", err)
}

// singleJoin joins two URL path segments with exactly one slash.
func singleJoin(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case b == "":
		return a
	}

	aSlash := a[len(a)-1] == '/'
	bSlash := b[0] == '/'
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	default:
		return a + b
	}
}
