// Package stream contains the gateway core: it translates inbound resumable
// upload and live stream requests into the streaming backend's API contract
// and maps the responses back into normalized shapes. No video bytes ever
// pass through this package.
package stream

import (
	"context"
	"log/slog"
	"strings"

	"streamgate/internal/settings"
)

// DefaultAPIBase is the streaming backend's API root.
const DefaultAPIBase = "https://api.cloudflare.com/client/v4"

// Header names shared between the gateway surface and the upstream contract.
const (
	HeaderUploadLength      = "Upload-Length"
	HeaderUploadDeferLength = "Upload-Defer-Length"
	HeaderUploadMetadata    = "Upload-Metadata"
	HeaderUploadCreator     = "Upload-Creator"
	HeaderTusResumable      = "Tus-Resumable"
	HeaderStreamMediaID     = "stream-media-id"
)

// DefaultProtocolVersion is used when the caller omits Tus-Resumable.
const DefaultProtocolVersion = "1.0.0"

// Config assembles a Service. Settings is required; everything else has
// working defaults.
type Config struct {
	Settings settings.Provider
	Caller   Caller
	APIBase  string
	Logger   *slog.Logger
}

// Service implements upload negotiation and live input provisioning against
// the streaming backend. Every call fetches settings fresh and performs at
// most one upstream request; failures are terminal for that call.
type Service struct {
	settings settings.Provider
	caller   Caller
	apiBase  string
	logger   *slog.Logger
}

// NewService builds a Service from the provided configuration.
func NewService(cfg Config) *Service {
	caller := cfg.Caller
	if caller == nil {
		caller = NewHTTPCaller(nil)
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		settings: cfg.Settings,
		caller:   caller,
		apiBase:  apiBase,
		logger:   logger,
	}
}

// credentials fetches a fresh settings snapshot and verifies both upstream
// credentials are present. It runs before any network call.
func (s *Service) credentials(ctx context.Context) (settings.Settings, *GatewayError) {
	if s.settings == nil {
		return settings.Settings{}, newGatewayError(KindMisconfigured, msgMisconfigured)
	}
	values, err := s.settings.Settings(ctx)
	if err != nil {
		s.logger.Error("settings lookup failed", "error", err)
		return settings.Settings{}, newGatewayError(KindMisconfigured, msgMisconfigured).withCause(err)
	}
	if !values.Configured() {
		return settings.Settings{}, newGatewayError(KindMisconfigured, msgMisconfigured)
	}
	return values, nil
}
