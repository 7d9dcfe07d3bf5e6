// Package router picks the inference backend that serves a chat turn. The
// choice is made per request from the configured preference and each
// backend's cached availability; prompt assembly never depends on it.
package router

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/llm"
	"github.com/lodestarhq/aide/pkg/llm/provider"
)

// Backend kinds a decision can select.
const (
	KindLocal = "local"
	KindCloud = "cloud"
)

// ErrNoProviderAvailable means neither backend answered its health probe.
// A chat turn that hits it fails; there is no degraded fallback.
var ErrNoProviderAvailable = errors.New("no inference backend available")

// Backend pairs a provider client with the model it should serve and the
// sampling params to call it with.
type Backend struct {
	Client provider.Client
	Model  string
	Params llm.Params
}

// Config holds the router's routing inputs.
type Config struct {
	// Preference is the configured default, "local" or "cloud". Anything
	// unrecognized (including empty) normalizes to local.
	Preference string

	Local Backend
	Cloud Backend
}

// Decision is the outcome of one Route call.
type Decision struct {
	// Kind is KindLocal or KindCloud.
	Kind string

	Client provider.Client
	Model  string
	Params llm.Params
}

// Router chooses between the local and cloud backends.
type Router struct {
	cfg   Config
	avail *Availability
	log   *zap.Logger
}

// New creates a Router and warms the availability cache by probing both
// backends once under the cache's probe timeout. Probe failures are not
// errors; they mark the backend unavailable until the cache entry expires.
func New(ctx context.Context, cfg Config, avail *Availability, log *zap.Logger) (*Router, error) {
	if cfg.Local.Client == nil || cfg.Cloud.Client == nil {
		return nil, errors.New("router requires both a local and a cloud backend client")
	}
	if avail == nil {
		return nil, errors.New("router requires an availability cache")
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Router{cfg: cfg, avail: avail, log: log}

	localUp := avail.Check(ctx, cfg.Local.Client)
	cloudUp := avail.Check(ctx, cfg.Cloud.Client)
	log.Info("backend availability",
		zap.Bool("local", localUp),
		zap.Bool("cloud", cloudUp),
	)

	return r, nil
}

// NormalizePreference maps a configured preference onto KindLocal or
// KindCloud. Unrecognized values fall back to local.
func NormalizePreference(p string) string {
	if p == KindCloud {
		return KindCloud
	}
	return KindLocal
}

// Route selects the backend for one request. preferLocal forces the local
// backend when it is available; the configured preference applies otherwise.
// When the selected backend is down but the other is up, the other serves
// the request and a warning is logged. When both are down Route fails with
// ErrNoProviderAvailable.
func (r *Router) Route(ctx context.Context, preferLocal bool) (*Decision, error) {
	localUp := r.avail.Check(ctx, r.cfg.Local.Client)
	cloudUp := r.avail.Check(ctx, r.cfg.Cloud.Client)

	selected := NormalizePreference(r.cfg.Preference)
	if preferLocal && localUp {
		selected = KindLocal
	}

	switch {
	case selected == KindLocal && !localUp && cloudUp:
		r.log.Warn("local backend unavailable, falling back to cloud",
			zap.String("cloud", r.cfg.Cloud.Client.Name()))
		selected = KindCloud
	case selected == KindCloud && !cloudUp && localUp:
		r.log.Warn("cloud backend unavailable, falling back to local",
			zap.String("local", r.cfg.Local.Client.Name()))
		selected = KindLocal
	}

	if selected == KindLocal && !localUp || selected == KindCloud && !cloudUp {
		return nil, ErrNoProviderAvailable
	}

	if selected == KindCloud {
		return &Decision{
			Kind:   KindCloud,
			Client: r.cfg.Cloud.Client,
			Model:  r.cfg.Cloud.Model,
			Params: r.cfg.Cloud.Params,
		}, nil
	}
	return &Decision{
		Kind:   KindLocal,
		Client: r.cfg.Local.Client,
		Model:  r.cfg.Local.Model,
		Params: r.cfg.Local.Params,
	}, nil
}
