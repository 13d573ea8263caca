package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports whether a component is healthy. A nil error means ok.
type CheckFunc func(ctx context.Context) error

// Status values reported by the health checks.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusDraining  = "draining"
	StatusUnhealthy = "unhealthy"
)

// ErrCheckTimeout is reported when a check outlives the check timeout.
var ErrCheckTimeout = errors.New("health check timeout")

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// HealthStatus is the body of the health and readiness endpoints.
type HealthStatus struct {
	Status        string                 `json:"status"`
	ActiveStreams *int                   `json:"active_streams,omitempty"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Checker runs component checks and tracks whether the process is draining.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout  time.Duration
	draining      atomic.Bool
	activeStreams func() int
}

// New creates a new health checker with the specified check timeout.
// If timeout is 0, defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
	}
}

// RegisterCheck registers a readiness check for a named component,
// replacing any check with the same name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetActiveStreams installs the source of the active stream count.
func (c *Checker) SetActiveStreams(count func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeStreams = count
}

// SetDraining marks the process as shutting down. Readiness fails from then on.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// Draining reports whether SetDraining(true) was called.
func (c *Checker) Draining() bool {
	return c.draining.Load()
}

// CheckLiveness reports that the process is up.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:        StatusOK,
		ActiveStreams: c.streamCount(),
		Timestamp:     time.Now(),
	}
}

// CheckReadiness runs every registered check concurrently.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:        StatusReady,
		ActiveStreams: c.streamCount(),
		Checks:        make(map[string]CheckResult),
	}
	if c.Draining() {
		status.Status = StatusDraining
		status.Timestamp = time.Now()
		return status
	}

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.runCheck(ctx, check)

			mu.Lock()
			defer mu.Unlock()
			status.Checks[name] = result
			if result.Status != StatusOK {
				status.Status = StatusDegraded
			}
		}()
	}
	wg.Wait()

	status.Timestamp = time.Now()
	return status
}

func (c *Checker) streamCount() *int {
	c.mu.RLock()
	count := c.activeStreams
	c.mu.RUnlock()
	if count == nil {
		return nil
	}
	n := count()
	return &n
}

// runCheck executes a single check bounded by the check timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = ErrCheckTimeout
	}

	result := CheckResult{
		Status:     StatusOK,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
