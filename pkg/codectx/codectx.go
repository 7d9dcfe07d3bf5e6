// Package codectx surfaces what the user is currently working on, typically
// from an editor or workspace bridge. Providers never return errors: on any
// failure they degrade to an empty summary and the prompt simply omits the
// section.
package codectx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider kinds accepted by New.
const (
	KindNone = "none"
	KindHTTP = "http"
	KindGit  = "git"
)

// Provider describes the user's current coding context in a short paragraph.
type Provider interface {
	Summary(ctx context.Context, userID, message string) string
}

// Static always reports the same context. The zero value reports nothing.
type Static struct {
	Text string
}

func (s Static) Summary(_ context.Context, _, _ string) string {
	return s.Text
}

// HTTP fetches the context summary from a workspace bridge.
type HTTP struct {
	target string
	client *http.Client
	log    *zap.Logger
}

// NewHTTP creates an HTTP provider against the bridge at target.
func NewHTTP(target string, log *zap.Logger) *HTTP {
	return &HTTP{
		target: strings.TrimRight(target, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// Summary requests GET {target}/context?user_id=... and returns the body
// text, or "" on any failure.
func (h *HTTP) Summary(ctx context.Context, userID, message string) string {
	u, err := url.Parse(h.target + "/context")
	if err != nil {
		h.log.Warn("code context target unparseable", zap.String("target", h.target), zap.Error(err))
		return ""
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		h.log.Warn("code context request build failed", zap.Error(err))
		return ""
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Warn("code context bridge unreachable", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if err != nil || resp.StatusCode != http.StatusOK {
		h.log.Warn("code context fetch failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		return ""
	}

	return strings.TrimSpace(string(body))
}

// NewOpts are the options for New.
type NewOpts struct {
	Kind   string
	Target string
	Logger *zap.Logger
}

// New builds the code context provider for the configured kind.
func New(o *NewOpts) (Provider, error) {
	if o == nil {
		o = &NewOpts{}
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	switch o.Kind {
	case "", KindNone:
		return Static{}, nil
	case KindHTTP:
		if o.Target == "" {
			return nil, errors.New("http code context provider requires a target URL")
		}
		return NewHTTP(o.Target, log), nil
	case KindGit:
		return NewGit(o.Target, log), nil
	default:
		return nil, fmt.Errorf("unknown code context provider kind %q", o.Kind)
	}
}
