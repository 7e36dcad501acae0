// Package api exposes the gateway's HTTP endpoints: upload negotiation and
// live stream provisioning, plus health. Handlers translate service results
// into transport-level statuses and headers; all protocol semantics live in
// the stream package.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"streamgate/internal/auth"
	"streamgate/internal/observability/logging"
	"streamgate/internal/observability/metrics"
	"streamgate/internal/settings"
	"streamgate/internal/stream"
)

// Handler bundles the gateway services with their collaborators.
type Handler struct {
	Gateway  *stream.Service
	Settings settings.Provider
	Keys     *auth.Keyring
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// NewHandler wires a Handler with defaults for optional collaborators.
func NewHandler(gateway *stream.Service, provider settings.Provider, keys *auth.Keyring) *Handler {
	return &Handler{
		Gateway:  gateway,
		Settings: provider,
		Keys:     keys,
		Logger:   slog.Default(),
		Metrics:  metrics.Default(),
	}
}

func (h *Handler) logger(r *http.Request) *slog.Logger {
	base := h.Logger
	if base == nil {
		base = slog.Default()
	}
	if r == nil {
		return base
	}
	if ctxLogger := logging.LoggerFromContext(r.Context()); ctxLogger != nil {
		return ctxLogger
	}
	return logging.WithContext(r.Context(), base)
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

// featureEnabled reads a fresh settings snapshot and reports the flag. A
// provider failure is treated as disabled and logged.
func (h *Handler) featureEnabled(r *http.Request) bool {
	if h.Settings == nil {
		return false
	}
	values, err := h.Settings.Settings(r.Context())
	if err != nil {
		h.logger(r).Error("settings lookup failed", "error", err)
		return false
	}
	return values.Enabled
}

// Health reports liveness plus the state of the settings source.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	settingsState := "ok"
	if h.Settings == nil {
		settingsState = "missing"
		status = "degraded"
	} else if values, err := h.Settings.Settings(r.Context()); err != nil {
		settingsState = "unreachable"
		status = "degraded"
		h.recorder().SetSettingsHealth(-1)
	} else if !values.Configured() {
		settingsState = "misconfigured"
		h.recorder().SetSettingsHealth(0)
	} else {
		h.recorder().SetSettingsHealth(1)
	}
	authState := "disabled"
	if h.Keys != nil && h.Keys.Len() > 0 {
		authState = "enabled"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"settings": settingsState,
		"auth":     authState,
	})
}

func outcomeForError(err error) string {
	if ge, ok := stream.AsGatewayError(err); ok {
		return string(ge.Kind)
	}
	return "unknown"
}

func methodNotAllowed(w http.ResponseWriter, allow string, method string) {
	w.Header().Set("Allow", allow)
	writeErrors(w, http.StatusMethodNotAllowed, "method "+strings.TrimSpace(method)+" not allowed")
}
