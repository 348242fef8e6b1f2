package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH PROBES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker is what /health renders.
type HealthChecker interface {
	Check(ctx context.Context) HealthReport
}

// Probe checks one backend. A nil error means healthy.
type Probe func(ctx context.Context) error

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Took    string `json:"took"`
}

// HealthReport aggregates every probe of one /health call.
type HealthReport struct {
	Healthy bool                   `json:"healthy"`
	Failed  []string               `json:"failed,omitempty"`
	Probes  map[string]ProbeResult `json:"probes"`
	Uptime  string                 `json:"uptime"`
	Version string                 `json:"version,omitempty"`
	At      time.Time              `json:"at"`
}

// ProbeSet runs named probes concurrently, each under its own deadline.
type ProbeSet struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	probes map[string]Probe
}

// NewProbeSet creates an empty set with a 3s deadline per probe.
func NewProbeSet(version string) *ProbeSet {
	return &ProbeSet{
		version: version,
		started: time.Now(),
		timeout: 3 * time.Second,
		probes:  make(map[string]Probe),
	}
}

// Register adds or replaces a probe.
func (s *ProbeSet) Register(name string, p Probe) {
	s.mu.Lock()
	s.probes[name] = p
	s.mu.Unlock()
}

// Check implements HealthChecker. An empty set is healthy.
func (s *ProbeSet) Check(ctx context.Context) HealthReport {
	s.mu.RLock()
	probes := make(map[string]Probe, len(s.probes))
	for name, p := range s.probes {
		probes[name] = p
	}
	s.mu.RUnlock()

	report := HealthReport{
		Healthy: true,
		Probes:  make(map[string]ProbeResult, len(probes)),
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Version: s.version,
		At:      time.Now().UTC(),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for name, probe := range probes {
		g.Go(func() error {
			res := s.run(ctx, probe)
			mu.Lock()
			report.Probes[name] = res
			if !res.Healthy {
				report.Failed = append(report.Failed, name)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(report.Failed)
	report.Healthy = len(report.Failed) == 0
	return report
}

func (s *ProbeSet) run(ctx context.Context, probe Probe) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := probe(ctx)
	res := ProbeResult{Healthy: err == nil, Took: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		res.Error = strings.TrimSpace(err.Error())
	}
	return res
}

// RedisProbe pings a Redis client.
func RedisProbe(client redis.UniversalClient) Probe {
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}
