// Command server starts the streamgate HTTP service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"streamgate/internal/api"
	"streamgate/internal/auth"
	"streamgate/internal/observability/logging"
	"streamgate/internal/observability/metrics"
	"streamgate/internal/server"
	"streamgate/internal/settings"
	"streamgate/internal/stream"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	settingsDriver := flag.String("settings-driver", "", "settings source (env or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string for the settings store")
	apiBase := flag.String("api-base", "", "base URL of the streaming backend API")
	upstreamTimeout := flag.Duration("upstream-timeout", 0, "timeout for streaming backend calls")
	apiKeys := flag.String("api-keys", "", "comma separated name:secret API keys")
	allowedOrigins := flag.String("cors-allowed-origins", "", "comma separated origins allowed to call the gateway")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	negotiateLimit := flag.Int("rate-negotiate-limit", 0, "maximum upload negotiations per window for a single IP")
	negotiateWindow := flag.Duration("rate-negotiate-window", 0, "window for counting upload negotiations")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed negotiation throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed negotiation throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	probeInterval := flag.Duration("settings-probe-interval", 0, "interval between settings source health probes")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("STREAMGATE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("STREAMGATE_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("STREAMGATE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("STREAMGATE_ADDR"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := firstNonEmpty(*postgresDSN, os.Getenv("STREAMGATE_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
	driver, err := resolveSettingsDriver(*settingsDriver, os.Getenv("STREAMGATE_SETTINGS_DRIVER"), dsn)
	if err != nil {
		logger.Error("failed to resolve settings driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" && driver != "postgres" {
		logger.Error("production mode requires the postgres settings driver", "driver", driver)
		os.Exit(1)
	}

	var provider settings.Provider
	switch driver {
	case "env":
		provider = settings.EnvProvider{}
	case "postgres":
		pgProvider, err := settings.NewPostgresProvider(ctx, dsn)
		if err != nil {
			logger.Error("failed to open settings store", "error", err)
			os.Exit(1)
		}
		if err := pgProvider.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare settings schema", "error", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pgProvider.Close(closeCtx); err != nil {
				logger.Warn("failed to close settings store", "error", err)
			}
		}()
		provider = pgProvider
	default:
		logger.Error("unsupported settings driver", "driver", driver)
		os.Exit(1)
	}

	var keys *auth.Keyring
	if spec := firstNonEmpty(*apiKeys, os.Getenv("STREAMGATE_API_KEYS")); spec != "" {
		keys, err = auth.ParseKeyring(spec)
		if err != nil {
			logger.Error("failed to parse api keys", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no api keys configured, authentication disabled")
	}

	callTimeout := resolveDuration(*upstreamTimeout, "STREAMGATE_UPSTREAM_TIMEOUT", stream.DefaultTimeout)
	gateway := stream.NewService(stream.Config{
		Settings: provider,
		Caller:   stream.NewHTTPCaller(&http.Client{Timeout: callTimeout}),
		APIBase:  firstNonEmpty(*apiBase, os.Getenv("STREAMGATE_API_BASE")),
		Logger:   logging.WithComponent(logger, "stream"),
	})

	handler := api.NewHandler(gateway, provider, keys)
	handler.Logger = logging.WithComponent(logger, "api")
	handler.Metrics = recorder

	srv, err := server.New(handler, keys, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("STREAMGATE_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("STREAMGATE_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:       resolveFloat(*globalRPS, "STREAMGATE_RATE_GLOBAL_RPS"),
			GlobalBurst:     resolveInt(*globalBurst, "STREAMGATE_RATE_GLOBAL_BURST"),
			NegotiateLimit:  resolveInt(*negotiateLimit, "STREAMGATE_RATE_NEGOTIATE_LIMIT"),
			NegotiateWindow: resolveDuration(*negotiateWindow, "STREAMGATE_RATE_NEGOTIATE_WINDOW", time.Minute),
			RedisAddr:       firstNonEmpty(*redisAddr, os.Getenv("STREAMGATE_RATE_REDIS_ADDR")),
			RedisPassword:   firstNonEmpty(*redisPassword, os.Getenv("STREAMGATE_RATE_REDIS_PASSWORD")),
			RedisTimeout:    resolveDuration(*redisTimeout, "STREAMGATE_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*allowedOrigins, os.Getenv("STREAMGATE_CORS_ALLOWED_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	ready := make(chan struct{})
	group.Go(func() error {
		logger.Info("streamgate listening", "addr", listenAddr, "mode", serverMode, "settings_driver", driver)
		return srv.Run(groupCtx, ready)
	})
	group.Go(func() error {
		select {
		case <-ready:
		case <-groupCtx.Done():
			return nil
		}
		probeSettings(groupCtx, provider, recorder,
			resolveDuration(*probeInterval, "STREAMGATE_SETTINGS_PROBE_INTERVAL", time.Minute),
			logging.WithComponent(logger, "settings-probe"))
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// probeSettings periodically reads the settings source so the health gauge
// reflects credential availability between requests.
func probeSettings(ctx context.Context, provider settings.Provider, recorder *metrics.Recorder, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		values, err := provider.Settings(ctx)
		switch {
		case err != nil:
			recorder.SetSettingsHealth(-1)
			logger.Warn("settings probe failed", "error", err)
		case !values.Configured():
			recorder.SetSettingsHealth(0)
		default:
			recorder.SetSettingsHealth(1)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func resolveSettingsDriver(flagValue, envValue, dsn string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(dsn) != "" {
		return "postgres", nil
	}
	return "env", nil
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
