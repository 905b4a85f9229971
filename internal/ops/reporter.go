package ops

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"questward/internal/types"
)

// LogReporter is the production types.ErrorReporter. Captured errors are
// structured-logged and counted by error code; nothing is ever re-raised, so
// callers can fire and forget from any goroutine.
type LogReporter struct {
	logger   *slog.Logger
	captures *prometheus.CounterVec
}

var _ types.ErrorReporter = (*LogReporter)(nil)

// NewLogReporter creates a LogReporter. The registry may be nil, in which
// case only logging happens.
func NewLogReporter(logger *slog.Logger, registry *prometheus.Registry) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &LogReporter{logger: logger}
	if registry != nil {
		r.captures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questward",
			Name:      "captured_errors_total",
			Help:      "Errors captured from background runs, per error code.",
		}, []string{"code"})
		registry.MustRegister(r.captures)
	}
	return r
}

// Capture implements types.ErrorReporter.
func (r *LogReporter) Capture(err error) {
	if err == nil {
		return
	}

	code := string(types.ErrCodeInternalUnexpected)
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		code = string(appErr.Code)
	}

	r.logger.Error("captured background error",
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	if r.captures != nil {
		r.captures.WithLabelValues(code).Inc()
	}
}
