// Package backend manages backend service instances and selection.
package backend

import (
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
)

// ErrNoHealthyBackend is returned when a service has no healthy instances.
var ErrNoHealthyBackend = errors.New("no healthy backend instances")

// ErrUnknownService is returned when the service is not registered.
var ErrUnknownService = errors.New("unknown service")

// Instance is a single backend instance.
type Instance struct {
	// URL is the instance base URL.
	URL *url.URL

	healthy atomic.Bool
}

// NewInstance creates an instance from a base URL string.
func NewInstance(rawURL string) (*Instance, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("instance URL must be absolute: " + rawURL)
	}

	inst := &Instance{URL: u}
	inst.healthy.Store(true)

	return inst, nil
}

// Healthy reports whether the instance is eligible for selection.
func (i *Instance) Healthy() bool {
	return i.healthy.Load()
}

// SetHealthy marks the instance healthy or unhealthy.
func (i *Instance) SetHealthy(healthy bool) {
	i.healthy.Store(healthy)
}

// Service is a named backend with an ordered, static instance list and
// a selection cursor. The cursor advances by one per selection so the
// healthy instances are used in strict rotation.
type Service struct {
	// Name identifies the service.
	Name string

	// PathPrefix routes requests to this service.
	PathPrefix string

	instances []*Instance
	cursor    uint64
}

// NewService creates a service from instance URLs. Instance order is
// preserved; it defines the rotation order.
func NewService(name, pathPrefix string, instanceURLs []string) (*Service, error) {
	if len(instanceURLs) == 0 {
		return nil, errors.New("service requires at least one instance")
	}

	instances := make([]*Instance, 0, len(instanceURLs))
	for _, raw := range instanceURLs {
		inst, err := NewInstance(raw)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	return &Service{
		Name:       name,
		PathPrefix: pathPrefix,
		instances:  instances,
	}, nil
}

// Instances returns the service's instances in rotation order.
func (s *Service) Instances() []*Instance {
	return s.instances
}

// Select returns the next healthy instance in rotation. Selection is
// deterministic: with all instances healthy the sequence visits them
// in list order, wrapping around. Unhealthy instances are skipped.
func (s *Service) Select() (*Instance, error) {
	n := uint64(len(s.instances))

	for attempt := uint64(0); attempt < n; attempt++ {
		idx := (atomic.AddUint64(&s.cursor, 1) - 1) % n
		inst := s.instances[idx]
		if inst.Healthy() {
			return inst, nil
		}
	}

	return nil, ErrNoHealthyBackend
}

// Selector routes selection requests to registered services.
type Selector struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// NewSelector creates an empty selector.
func NewSelector() *Selector {
	return &Selector{
		services: make(map[string]*Service),
	}
}

// Register adds a service to the selector.
func (sel *Selector) Register(svc *Service) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	sel.services[svc.Name] = svc
}

// Replace swaps the full service set, dropping services no longer
// present. Used on configuration reload.
func (sel *Selector) Replace(services []*Service) {
	sel.mu.Lock()
	defer sel.mu.Unlock()

	sel.services = make(map[string]*Service, len(services))
	for _, svc := range services {
		sel.services[svc.Name] = svc
	}
}

// Service returns a registered service by name.
func (sel *Selector) Service(name string) (*Service, error) {
	sel.mu.RLock()
	defer sel.mu.RUnlock()

	svc, ok := sel.services[name]
	if !ok {
		return nil, ErrUnknownService
	}
	return svc, nil
}

// Select picks the next healthy instance of the named service.
func (sel *Selector) Select(name string) (*Instance, error) {
	svc, err := sel.Service(name)
	if err != nil {
		return nil, err
	}
	return svc.Select()
}

// Services returns all registered services.
func (sel *Selector) Services() []*Service {
	sel.mu.RLock()
	defer sel.mu.RUnlock()

	services := make([]*Service, 0, len(sel.services))
	for _, svc := range sel.services {
		services = append(services, svc)
	}
	return services
}
