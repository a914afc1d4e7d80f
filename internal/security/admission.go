// Package security provides request admission checks and response
// hygiene for the gateway.
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Admission errors.
var (
	// ErrIPNotAllowed indicates the client IP is outside the allowlist.
	ErrIPNotAllowed = errors.New("client ip not allowed")

	// ErrOriginNotAllowed indicates a cross-origin request from an
	// unlisted origin.
	ErrOriginNotAllowed = errors.New("origin not allowed")

	// ErrPayloadTooLarge indicates the declared or actual body size
	// exceeds the limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Admission runs the gateway's perimeter checks: client IP allowlist,
// origin allowlist and payload size limit.
type Admission struct {
	allowedNets    []*net.IPNet
	allowedIPs     map[string]struct{}
	allowAnyIP     bool
	allowedOrigins map[string]struct{}
	allowAnyOrigin bool
	maxPayloadSize int64
	trustedProxies map[string]struct{}
	logger         *zap.Logger
}

// AdmissionConfig holds admission settings.
type AdmissionConfig struct {
	// AllowedIPs lists client IPs or CIDRs. Empty or "0.0.0.0/0"
	// disables the check.
	AllowedIPs []string

	// AllowedOrigins lists permitted Origin values. "*" allows any.
	AllowedOrigins []string

	// MaxPayloadSize is the request body limit in bytes.
	MaxPayloadSize int64

	// TrustedProxies lists proxies whose X-Forwarded-For is honored.
	TrustedProxies []string

	// Logger for the admission checks.
	Logger *zap.Logger
}

// NewAdmission creates the admission checker.
func NewAdmission(cfg AdmissionConfig) (*Admission, error) {
	a := &Admission{
		allowedIPs:     make(map[string]struct{}),
		allowedOrigins: make(map[string]struct{}),
		trustedProxies: make(map[string]struct{}),
		maxPayloadSize: cfg.MaxPayloadSize,
		logger:         cfg.Logger,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	if len(cfg.AllowedIPs) == 0 {
		a.allowAnyIP = true
	}
	for _, entry := range cfg.AllowedIPs {
		if entry == "0.0.0.0/0" || entry == "::/0" {
			a.allowAnyIP = true
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed ip %q: %w", entry, err)
			}
			a.allowedNets = append(a.allowedNets, ipNet)
			continue
		}
		if net.ParseIP(entry) == nil {
			return nil, fmt.Errorf("invalid allowed ip %q", entry)
		}
		a.allowedIPs[entry] = struct{}{}
	}

	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			a.allowAnyOrigin = true
			continue
		}
		a.allowedOrigins[strings.TrimSuffix(origin, "/")] = struct{}{}
	}

	for _, proxy := range cfg.TrustedProxies {
		a.trustedProxies[proxy] = struct{}{}
	}

	return a, nil
}

// CheckIP verifies the client IP against the allowlist.
func (a *Admission) CheckIP(clientIP string) error {
	if a.allowAnyIP {
		return nil
	}

	if _, ok := a.allowedIPs[clientIP]; ok {
		return nil
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return ErrIPNotAllowed
	}

	for _, ipNet := range a.allowedNets {
		if ipNet.Contains(ip) {
			return nil
		}
	}

	return ErrIPNotAllowed
}

// CheckOrigin verifies the Origin header when present. Same-origin
// requests carry no Origin header and pass.
func (a *Admission) CheckOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" || a.allowAnyOrigin {
		return nil
	}

	if _, ok := a.allowedOrigins[strings.TrimSuffix(origin, "/")]; ok {
		return nil
	}

	return ErrOriginNotAllowed
}

// CheckPayloadSize verifies the declared content length and caps the
// body reader so chunked requests cannot bypass the limit.
func (a *Admission) CheckPayloadSize(r *http.Request) error {
	if a.maxPayloadSize <= 0 {
		return nil
	}

	if r.ContentLength > a.maxPayloadSize {
		return ErrPayloadTooLarge
	}

	if r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, a.maxPayloadSize)
	}

	return nil
}

// ClientIP resolves the client address. X-Forwarded-For is honored
// only when the direct peer is a trusted proxy; otherwise the peer
// address wins so clients cannot spoof their identity.
func (a *Admission) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}

	if _, trusted := a.trustedProxies[peer]; !trusted {
		return peer
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return peer
	}

	// The first entry is the originating client.
	if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
		forwarded = forwarded[:idx]
	}
	return strings.TrimSpace(forwarded)
}
