package settings

import (
	"context"
	"testing"
)

func TestEnvProviderReadsFreshValuesPerCall(t *testing.T) {
	t.Setenv("STREAMGATE_ACCOUNT_ID", "acct-1")
	t.Setenv("STREAMGATE_API_TOKEN", "token-1")
	t.Setenv("STREAMGATE_ENABLED", "true")

	provider := EnvProvider{}
	first, err := provider.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if first.AccountID != "acct-1" || first.APIToken != "token-1" || !first.Enabled {
		t.Fatalf("unexpected settings %+v", first)
	}

	// Rotation must be observed on the very next call.
	t.Setenv("STREAMGATE_API_TOKEN", "token-2")
	t.Setenv("STREAMGATE_ENABLED", "false")
	second, err := provider.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings after rotation: %v", err)
	}
	if second.APIToken != "token-2" {
		t.Fatalf("token = %q, want rotated value", second.APIToken)
	}
	if second.Enabled {
		t.Fatalf("enabled flag did not follow the environment")
	}
}

func TestEnvProviderMaxDuration(t *testing.T) {
	t.Setenv("STREAMGATE_MAX_DURATION_SECONDS", "600")
	values, err := EnvProvider{}.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if values.MaxDuration() != 600 {
		t.Fatalf("max duration = %d, want 600", values.MaxDuration())
	}

	t.Setenv("STREAMGATE_MAX_DURATION_SECONDS", "not-a-number")
	if _, err := (EnvProvider{}).Settings(context.Background()); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestSettingsConfigured(t *testing.T) {
	cases := []struct {
		name string
		in   Settings
		want bool
	}{
		{"both present", Settings{AccountID: "a", APIToken: "t"}, true},
		{"missing token", Settings{AccountID: "a"}, false},
		{"missing account", Settings{APIToken: "t"}, false},
		{"blank after trim", Settings{AccountID: "  ", APIToken: "t"}, false},
	}
	for _, tc := range cases {
		if got := tc.in.Configured(); got != tc.want {
			t.Fatalf("%s: Configured() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMaxDurationFallsBackToDefault(t *testing.T) {
	if got := (Settings{}).MaxDuration(); got != DefaultMaxDurationSeconds {
		t.Fatalf("MaxDuration() = %d, want %d", got, DefaultMaxDurationSeconds)
	}
}

func TestStaticProvider(t *testing.T) {
	provider := Static{Values: Settings{AccountID: "acct", APIToken: "tok", Enabled: true}}
	values, err := provider.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !values.Configured() || !values.Enabled {
		t.Fatalf("unexpected settings %+v", values)
	}
}
