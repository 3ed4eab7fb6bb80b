// Package health reports the reachability of the engine's backing services.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const DefaultCheckTimeout = 5 * time.Second

// Pinger is anything that can prove it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// CheckResult is the outcome of one named check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                 `json:"status"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

type check struct {
	name     string
	pinger   Pinger
	optional bool
}

// Checker runs registered checks concurrently, each under its own timeout.
type Checker struct {
	mu        sync.RWMutex
	checks    []check
	timeout   time.Duration
	startTime time.Time
	now       func() time.Time
}

type Option func(*Checker)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout: DefaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startTime = c.now()
	return c
}

// Register adds a required check. A failing required check makes the report unhealthy.
func (c *Checker) Register(name string, pinger Pinger) {
	c.add(check{name: name, pinger: pinger})
}

// RegisterOptional adds a check whose failure only degrades the report.
func (c *Checker) RegisterOptional(name string, pinger Pinger) {
	c.add(check{name: name, pinger: pinger, optional: true})
}

func (c *Checker) add(chk check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, chk)
}

// Names lists registered checks in name order
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for _, chk := range c.checks {
		names = append(names, chk.name)
	}
	sort.Strings(names)
	return names
}

func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, chk := range checks {
		wg.Add(1)
		go func(chk check) {
			defer wg.Done()
			result := c.run(ctx, chk)
			mu.Lock()
			results[chk.name] = result
			mu.Unlock()
		}(chk)
	}
	wg.Wait()

	return Report{
		Status:     overallStatus(results),
		Uptime:     c.now().Sub(c.startTime).Round(time.Second).String(),
		Checks:     results,
		ReportedAt: c.now().UTC(),
	}
}

func (c *Checker) run(ctx context.Context, chk check) CheckResult {
	failed := StatusUnhealthy
	if chk.optional {
		failed = StatusDegraded
	}
	if chk.pinger == nil {
		return CheckResult{Status: failed, Message: chk.name + " not configured"}
	}

	start := c.now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := chk.pinger.Ping(ctx); err != nil {
		return CheckResult{
			Status:  failed,
			Message: err.Error(),
			Latency: c.now().Sub(start).String(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Latency: c.now().Sub(start).String(),
	}
}

func overallStatus(checks map[string]CheckResult) Status {
	hasDegraded := false
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
