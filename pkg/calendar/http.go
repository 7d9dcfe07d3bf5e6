package calendar

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTP fetches schedule summaries from an external calendar bridge. Any
// transport or status failure degrades to the Unavailable placeholder.
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

// Summary requests GET {target}/summary?user_id=... and returns the body
// text. An empty 200 body means the user has nothing scheduled and returns
// "", which omits the calendar section from prompts.
func (h *HTTP) Summary(ctx context.Context, userID, message string) string {
	u, err := url.Parse(h.target + "/summary")
	if err != nil {
		h.log.Warn("calendar target unparseable", zap.String("target", h.target), zap.Error(err))
		return Unavailable
	}
	q := u.Query()
	q.Set("user_id", userID)
	if message != "" {
		q.Set("hint", message)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		h.log.Warn("calendar request build failed", zap.Error(err))
		return Unavailable
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Warn("calendar bridge unreachable", zap.Error(err))
		return Unavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if err != nil {
		h.log.Warn("calendar response unreadable", zap.Error(err))
		return Unavailable
	}
	if resp.StatusCode != http.StatusOK {
		h.log.Warn("calendar bridge returned error", zap.Int("status", resp.StatusCode))
		return Unavailable
	}

	return strings.TrimSpace(string(body))
}
