package cache

import (
	"net/http"
	"strings"

	"github.com/svcgateway/svcgw/internal/util"
)

// Policy decides which requests and responses are cacheable.
type Policy struct {
	prefixes []string
}

// NewPolicy creates a cacheability policy. An empty prefix list makes
// every path eligible.
func NewPolicy(prefixes []string) *Policy {
	return &Policy{prefixes: prefixes}
}

// RequestCacheable reports whether the request may be served from or
// stored to the cache. Only safe read methods qualify; requests
// carrying authorization-specific responses are still keyed purely by
// URL, so per-user endpoints should be excluded via prefixes.
func (p *Policy) RequestCacheable(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	if len(p.prefixes) == 0 {
		return true
	}

	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}

	return false
}

// ResponseCacheable reports whether a backend response may be stored.
// Only successful responses are kept; errors must not be replayed.
func (p *Policy) ResponseCacheable(statusCode int) bool {
	return util.IsSuccessStatus(statusCode)
}
