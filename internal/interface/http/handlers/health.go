package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports the readiness of the service's dependencies.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc performs a single check and returns an error if it fails.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated readiness of the service.
type HealthStatus struct {
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Pinger is implemented by stores and caches.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a HealthCheckFunc.
func PingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// CompositeHealthChecker aggregates multiple health checks.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker creates a new composite health checker.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
		version:   version,
		timeout:   3 * time.Second,
	}
}

// SetTimeout sets the timeout for individual health checks.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// AddCheck adds or replaces a named health check.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs all checks in parallel and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.timeout
	c.mu.RUnlock()

	status := HealthStatus{
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheckFunc) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			result := CheckResult{
				Healthy:  err == nil,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Message = err.Error()
			}

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var failed []string
	for name, result := range status.Checks {
		if !result.Healthy {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	if len(failed) > 0 {
		status.Ready = false
		status.Message = "failed checks: " + strings.Join(failed, ", ")
	} else {
		status.Message = "all checks passed"
	}
	return status
}
