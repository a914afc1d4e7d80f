// Package health exposes the gateway's own health endpoint.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/svcgateway/svcgw/internal/backend"
)

// Status is the health endpoint response.
type Status struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version,omitempty"`
	Uptime   string                   `json:"uptime"`
	Services map[string]ServiceStatus `json:"services,omitempty"`
}

// ServiceStatus summarizes one backend service's instance health.
type ServiceStatus struct {
	Healthy int `json:"healthy"`
	Total   int `json:"total"`
}

// Handler serves the gateway health endpoint. The gateway itself is
// healthy as long as it can answer; backend instance health is
// reported for visibility, not factored into the status.
type Handler struct {
	selector  *backend.Selector
	version   string
	startedAt time.Time
}

// NewHandler creates a health handler.
func NewHandler(selector *backend.Selector, version string) *Handler {
	return &Handler{
		selector:  selector,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handle answers the health check.
func (h *Handler) Handle(c *gin.Context) {
	status := Status{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
	}

	if h.selector != nil {
		status.Services = make(map[string]ServiceStatus)
		for _, svc := range h.selector.Services() {
			var healthy int
			instances := svc.Instances()
			for _, inst := range instances {
				if inst.Healthy() {
					healthy++
				}
			}
			status.Services[svc.Name] = ServiceStatus{
				Healthy: healthy,
				Total:   len(instances),
			}
		}
	}

	c.JSON(http.StatusOK, status)
}
