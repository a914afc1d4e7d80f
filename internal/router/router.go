// Package router maps request paths to backend services.
package router

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/svcgateway/svcgw/internal/backend"
)

// ErrNoRoute is returned when no service matches the request path.
var ErrNoRoute = errors.New("no route for path")

// Router matches request paths against service path prefixes.
// The longest matching prefix wins so overlapping prefixes such as
// /api and /api/orders route correctly.
type Router struct {
	mu     sync.RWMutex
	routes []*route
}

// route is one prefix-to-service binding.
type route struct {
	prefix  string
	service *backend.Service
}

// New creates an empty router.
func New() *Router {
	return &Router{}
}

// Register binds a service to its path prefix.
func (r *Router) Register(svc *backend.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, &route{
		prefix:  svc.PathPrefix,
		service: svc,
	})

	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
}

// Replace swaps the full route set. Used on configuration reload.
func (r *Router) Replace(services []*backend.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = make([]*route, 0, len(services))
	for _, svc := range services {
		r.routes = append(r.routes, &route{
			prefix:  svc.PathPrefix,
			service: svc,
		})
	}

	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
}

// Match returns the service handling the given path.
func (r *Router) Match(path string) (*backend.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rt := range r.routes {
		if matchesPrefix(path, rt.prefix) {
			return rt.service, nil
		}
	}

	return nil, ErrNoRoute
}

// matchesPrefix reports whether path falls under prefix at a path
// segment boundary, so /api/orders-archive does not match /api/orders.
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/' || strings.HasSuffix(prefix, "/")
}

// Services returns the registered services in match order.
func (r *Router) Services() []*backend.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*backend.Service, 0, len(r.routes))
	for _, rt := range r.routes {
		services = append(services, rt.service)
	}
	return services
}
