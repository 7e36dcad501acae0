// Package settings supplies the streaming backend configuration the gateway
// needs for each call: the upstream account, its API credential, and the
// feature flag. Providers are consulted on every request so credential
// rotation and flag flips take effect without a restart.
package settings

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
)

// Settings holds the per-call configuration snapshot.
type Settings struct {
	AccountID          string
	APIToken           string
	Enabled            bool
	MaxDurationSeconds int
}

// DefaultMaxDurationSeconds caps upload duration when the operator has not
// configured an explicit limit.
const DefaultMaxDurationSeconds = 300

// Provider returns a fresh settings snapshot. Implementations must not cache
// between calls.
type Provider interface {
	Settings(ctx context.Context) (Settings, error)
}

// Configured reports whether both upstream credentials are present.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.AccountID) != "" && strings.TrimSpace(s.APIToken) != ""
}

// MaxDuration returns the configured duration cap, falling back to the
// default when unset or invalid.
func (s Settings) MaxDuration() int {
	if s.MaxDurationSeconds > 0 {
		return s.MaxDurationSeconds
	}
	return DefaultMaxDurationSeconds
}

// Static is a fixed-value provider, used by tests and single-tenant setups
// where configuration is pinned at process start.
type Static struct {
	Values Settings
}

// Settings returns the pinned values.
func (p Static) Settings(ctx context.Context) (Settings, error) {
	return p.Values, nil
}

// EnvPrefix is the default environment variable prefix for EnvProvider.
const EnvPrefix = "STREAMGATE"

// EnvProvider reads configuration from environment variables on every call:
// <PREFIX>_ACCOUNT_ID, <PREFIX>_API_TOKEN, <PREFIX>_ENABLED, and
// <PREFIX>_MAX_DURATION_SECONDS.
type EnvProvider struct {
	Prefix string
}

// Settings reads the current environment. A malformed duration value is an
// error; a malformed enabled flag disables the feature.
func (p EnvProvider) Settings(ctx context.Context) (Settings, error) {
	prefix := strings.TrimSpace(p.Prefix)
	if prefix == "" {
		prefix = EnvPrefix
	}
	out := Settings{
		AccountID: strings.TrimSpace(os.Getenv(prefix + "_ACCOUNT_ID")),
		APIToken:  strings.TrimSpace(os.Getenv(prefix + "_API_TOKEN")),
	}
	if raw := strings.TrimSpace(os.Getenv(prefix + "_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err == nil {
			out.Enabled = enabled
		}
	}
	if raw := strings.TrimSpace(os.Getenv(prefix + "_MAX_DURATION_SECONDS")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return Settings{}, errors.New("parse " + prefix + "_MAX_DURATION_SECONDS: not an integer")
		}
		if parsed > 0 {
			out.MaxDurationSeconds = parsed
		}
	}
	return out, nil
}
