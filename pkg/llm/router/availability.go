package router

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/llm/provider"
)

// Availability cache defaults. A 30 second TTL keeps routing decisions off
// the probe path without letting a dead backend look alive for long.
const (
	DefaultAvailabilityTTL = 30 * time.Second
	DefaultProbeTimeout    = 2 * time.Second
)

// Availability caches backend reachability, keyed by client name. Probes run
// at most once per TTL per backend; a probe error counts as unavailable.
// The cache is injected into the Router so staleness is bounded and
// controllable in tests rather than frozen at construction time.
type Availability struct {
	cache        *ristretto.Cache
	ttl          time.Duration
	probeTimeout time.Duration
	log          *zap.Logger
}

// NewAvailability creates an availability cache. Zero durations use the
// package defaults.
func NewAvailability(ttl, probeTimeout time.Duration, log *zap.Logger) (*Availability, error) {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	// The cache only ever holds one flag per backend; the sizing numbers
	// are ristretto minimums, not tuning.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating availability cache: %w", err)
	}

	return &Availability{
		cache:        cache,
		ttl:          ttl,
		probeTimeout: probeTimeout,
		log:          log,
	}, nil
}

// Check reports whether the backend is reachable, probing it when the cached
// flag has expired. The probe runs under the configured timeout and any
// error marks the backend unavailable until the next expiry.
func (a *Availability) Check(ctx context.Context, client provider.Client) bool {
	name := client.Name()
	if v, ok := a.cache.Get(name); ok {
		return v.(bool)
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	err := client.Ping(probeCtx)
	up := err == nil
	if err != nil {
		a.log.Debug("backend probe failed",
			zap.String("backend", name), zap.Error(err))
	}

	a.cache.SetWithTTL(name, up, 1, a.ttl)
	// Ristretto applies writes asynchronously; wait so back-to-back Checks
	// within the TTL hit the cache instead of re-probing.
	a.cache.Wait()

	return up
}

// Forget drops the cached flag for a backend so the next Check re-probes.
func (a *Availability) Forget(name string) {
	a.cache.Del(name)
}

// Close releases the cache's resources.
func (a *Availability) Close() {
	a.cache.Close()
}
