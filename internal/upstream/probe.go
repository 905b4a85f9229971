package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds the liveness probe so a black-holed gateway
// cannot stall worker startup.
const DefaultProbeTimeout = 5 * time.Second

// HTTPProbe checks gateway liveness with a single GET against the gateway's
// health endpoint. It deliberately bypasses the BaseClient: a probe must not
// retry or trip a shared breaker, it just answers "is this gateway up right
// now".
type HTTPProbe struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTPProbe creates a probe with the given client. A nil client uses a
// dedicated one with the default probe timeout.
func NewHTTPProbe(client *http.Client, logger *slog.Logger) *HTTPProbe {
	if client == nil {
		client = &http.Client{Timeout: DefaultProbeTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProbe{
		client:  client,
		timeout: DefaultProbeTimeout,
		logger:  logger,
	}
}

// IsHealthy reports whether the gateway endpoint answers its health check
// with a 2xx status.
func (p *HTTPProbe) IsHealthy(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	u := strings.TrimRight(endpoint, "/") + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		p.logger.Warn("failed to build probe request", "endpoint", endpoint, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("gateway probe failed", "endpoint", endpoint, "error", err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !healthy {
		p.logger.Warn("gateway probe returned non-success status",
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
	}
	return healthy
}
