package backend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthChecker polls service instances and flips their health flag.
// Instances start healthy; a failed probe marks them unhealthy until a
// probe succeeds again.
type HealthChecker struct {
	selector *Selector
	client   *http.Client
	logger   *zap.Logger

	healthPath string
	interval   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// HealthCheckerConfig holds health checker settings.
type HealthCheckerConfig struct {
	// HealthPath is the probe path appended to each instance URL.
	HealthPath string

	// Interval is the polling interval.
	Interval time.Duration

	// Timeout bounds a single probe.
	Timeout time.Duration

	// Logger for the checker.
	Logger *zap.Logger
}

// NewHealthChecker creates a health checker over the selector's services.
func NewHealthChecker(selector *Selector, cfg HealthCheckerConfig) *HealthChecker {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &HealthChecker{
		selector:   selector,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
		healthPath: cfg.HealthPath,
		interval:   cfg.Interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins background polling until Stop or ctx cancellation.
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()

		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				hc.checkAll(ctx)
			case <-ctx.Done():
				return
			case <-hc.stopCh:
				return
			}
		}
	}()
}

// Stop terminates background polling and waits for it to finish.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
	hc.wg.Wait()
}

// checkAll probes every instance of every service once.
func (hc *HealthChecker) checkAll(ctx context.Context) {
	for _, svc := range hc.selector.Services() {
		for _, inst := range svc.Instances() {
			healthy := hc.probe(ctx, inst)

			if healthy != inst.Healthy() {
				hc.logger.Info("instance health changed",
					zap.String("service", svc.Name),
					zap.String("instance", inst.URL.String()),
					zap.Bool("healthy", healthy),
				)
			}
			inst.SetHealthy(healthy)
		}
	}
}

// probe performs a single health check request.
func (hc *HealthChecker) probe(ctx context.Context, inst *Instance) bool {
	probeURL := *inst.URL
	probeURL.Path = hc.healthPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL.String(), nil)
	if err != nil {
		return false
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
