package security

import (
	"net/http"

	"github.com/google/uuid"
)

// GatewayVersion is reported to backends on proxied requests.
const GatewayVersion = "1.0"

// Response headers set on every gateway response.
var securityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"X-XSS-Protection":       "1; mode=block",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
}

// ApplySecurityHeaders sets the standard security headers on a response.
func ApplySecurityHeaders(h http.Header) {
	for name, value := range securityHeaders {
		h.Set(name, value)
	}
}

// Client-supplied headers stripped before forwarding so backends only
// see gateway-asserted values.
var strippedRequestHeaders = []string{
	"X-Forwarded-For",
	"X-Real-Ip",
	"X-Forwarded-Host",
}

// PrepareForwardHeaders sanitizes the outbound request headers and
// stamps the gateway's own metadata. Returns the request ID assigned
// to the request, generating one when the caller did not send one.
func PrepareForwardHeaders(h http.Header, clientIP string) string {
	for _, name := range strippedRequestHeaders {
		h.Del(name)
	}

	h.Set("X-Forwarded-For", clientIP)
	h.Set("X-Gateway-Version", GatewayVersion)

	requestID := h.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
		h.Set("X-Request-Id", requestID)
	}

	return requestID
}

// Hop-by-hop headers never copied between the backend response and
// the client.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop removes hop-by-hop headers from a header set.
func StripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
