// Command server starts the Streamcast control-plane HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"streamcast/internal/api"
	"streamcast/internal/capture"
	"streamcast/internal/control"
	"streamcast/internal/manifest"
	"streamcast/internal/observability/logging"
	"streamcast/internal/server"
	"streamcast/internal/store"
	"streamcast/internal/wowza"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when opening a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	channelDriver := flag.String("channel-driver", "", "media server channel driver (rest or noop)")
	channelTimeout := flag.Duration("channel-timeout", 0, "timeout for media server management calls")
	manifestURL := flag.String("manifest-url", "", "base URL of the manifest generation service")
	manifestToken := flag.String("manifest-token", "", "bearer token for the manifest generation service")
	manifestTimeout := flag.Duration("manifest-timeout", 0, "timeout for manifest generation calls")
	ffmpegBinary := flag.String("ffmpeg-binary", "", "path to the ffmpeg binary used for recordings")
	ffmpegGrace := flag.Duration("ffmpeg-grace", 0, "grace period before a capture process is killed")
	recordingRoot := flag.String("recording-root", "", "directory recordings are written under")
	recordingSettle := flag.Duration("recording-settle", 0, "wait after stopping a capture before measuring the artifact")
	archiveEndpoint := flag.String("archive-endpoint", "", "object storage endpoint for recording archival (e.g. http://127.0.0.1:9000)")
	archiveRegion := flag.String("archive-region", "", "object storage region")
	archiveAccessKey := flag.String("archive-access-key", "", "object storage access key")
	archiveSecretKey := flag.String("archive-secret-key", "", "object storage secret key")
	archiveBucket := flag.String("archive-bucket", "", "object storage bucket for recording archival")
	archiveUseSSL := flag.Bool("archive-use-ssl", false, "enable TLS for object storage requests")
	archivePrefix := flag.String("archive-prefix", "", "object storage key prefix for recordings")
	archivePublicEndpoint := flag.String("archive-public-endpoint", "", "public endpoint used for archived recording URLs")
	leaseRedisAddr := flag.String("lease-redis-addr", "", "Redis address for cross-instance owner leases")
	leaseRedisUsername := flag.String("lease-redis-username", "", "Redis username for owner leases")
	leaseRedisPassword := flag.String("lease-redis-password", "", "Redis password for owner leases")
	leaseRedisDB := flag.Int("lease-redis-db", 0, "Redis database for owner leases")
	leaseTTL := flag.Duration("lease-ttl", 0, "expiry applied to owner lease keys")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	mutationLimit := flag.Int("rate-mutation-limit", 0, "maximum state-changing calls per window for a single client")
	mutationWindow := flag.Duration("rate-mutation-window", 0, "window for counting state-changing calls")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed mutation throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed mutation throttling")
	rateRedisDB := flag.Int("rate-redis-db", 0, "Redis database for distributed mutation throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis rate limiter operations")
	panelOrigins := flag.String("panel-origins", "", "comma separated origins of hosting panels allowed to call the API")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	flag.Parse()

	serverMode := modeValue(*mode, os.Getenv("STREAMCAST_MODE"))
	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("STREAMCAST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("STREAMCAST_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")

	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("STREAMCAST_ADDR"))
	storagePostgresDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("STREAMCAST_STORAGE_DRIVER"), storagePostgresDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, storagePostgresDSN); err != nil {
			logger.Error("invalid production configuration", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo store.Repository
	switch driver {
	case "memory":
		memory, err := store.NewMemory(resolveDataPath(*dataPath, os.Getenv("STREAMCAST_DATA_PATH")))
		if err != nil {
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
		repo = memory
	case "postgres":
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:             storagePostgresDSN,
			MaxConnections:  int32(resolveInt(*postgresMaxConns, "STREAMCAST_POSTGRES_MAX_CONNS")),
			MinConnections:  int32(resolveInt(*postgresMinConns, "STREAMCAST_POSTGRES_MIN_CONNS")),
			MaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "STREAMCAST_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime: resolveDuration(*postgresMaxConnIdle, "STREAMCAST_POSTGRES_MAX_CONN_IDLE", 0),
			ConnectTimeout:  resolveDuration(*postgresConnectTimeout, "STREAMCAST_POSTGRES_CONNECT_TIMEOUT", 0),
			ApplicationName: firstNonEmpty(*postgresAppName, os.Getenv("STREAMCAST_POSTGRES_APP_NAME"), "streamcast"),
		})
		if err != nil {
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate datastore", "error", err)
			os.Exit(1)
		}
		repo = pg
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pg.Close(shutdownCtx); err != nil {
				logger.Warn("failed to close datastore", "error", err)
			}
		}()
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}

	var channel wowza.Channel
	switch resolveChannelDriver(*channelDriver, os.Getenv("STREAMCAST_CHANNEL_DRIVER"), serverMode) {
	case "rest":
		channel = wowza.NewRESTChannel(
			wowza.WithRequestTimeout(resolveDuration(*channelTimeout, "STREAMCAST_CHANNEL_TIMEOUT", 0)),
		)
	case "noop":
		channel = wowza.NoopChannel{}
		logger.Warn("media server channel disabled, endpoint operations will be simulated")
	default:
		logger.Error("unsupported channel driver", "driver", *channelDriver)
		os.Exit(1)
	}

	var provisioner manifest.Provisioner = manifest.Noop{}
	if base := firstNonEmpty(*manifestURL, os.Getenv("STREAMCAST_MANIFEST_URL")); base != "" {
		provisioner = manifest.NewHTTPProvisioner(
			base,
			firstNonEmpty(*manifestToken, os.Getenv("STREAMCAST_MANIFEST_TOKEN")),
			&http.Client{Timeout: resolveDuration(*manifestTimeout, "STREAMCAST_MANIFEST_TIMEOUT", 10*time.Second)},
		)
	} else {
		logger.Warn("manifest service not configured, playlist transmissions will skip manifest generation")
	}

	supervisor := capture.NewFFmpeg(
		capture.WithBinary(firstNonEmpty(*ffmpegBinary, os.Getenv("STREAMCAST_FFMPEG_BINARY"))),
		capture.WithGracePeriod(resolveDuration(*ffmpegGrace, "STREAMCAST_FFMPEG_GRACE", 0)),
		capture.WithLogger(logging.WithComponent(logger, "capture")),
	)

	archive := store.NewArchiveClient(store.ArchiveConfig{
		Endpoint:       firstNonEmpty(*archiveEndpoint, os.Getenv("STREAMCAST_ARCHIVE_ENDPOINT")),
		Region:         firstNonEmpty(*archiveRegion, os.Getenv("STREAMCAST_ARCHIVE_REGION")),
		AccessKey:      firstNonEmpty(*archiveAccessKey, os.Getenv("STREAMCAST_ARCHIVE_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*archiveSecretKey, os.Getenv("STREAMCAST_ARCHIVE_SECRET_KEY")),
		Bucket:         firstNonEmpty(*archiveBucket, os.Getenv("STREAMCAST_ARCHIVE_BUCKET")),
		UseSSL:         resolveBool(*archiveUseSSL, "STREAMCAST_ARCHIVE_USE_SSL"),
		Prefix:         firstNonEmpty(*archivePrefix, os.Getenv("STREAMCAST_ARCHIVE_PREFIX")),
		PublicEndpoint: firstNonEmpty(*archivePublicEndpoint, os.Getenv("STREAMCAST_ARCHIVE_PUBLIC_ENDPOINT")),
	})
	if archive.Enabled() {
		logger.Info("recording archival enabled", "bucket", firstNonEmpty(*archiveBucket, os.Getenv("STREAMCAST_ARCHIVE_BUCKET")))
	}

	controlOpts := []control.Option{
		control.WithChannel(channel),
		control.WithProvisioner(provisioner),
		control.WithSupervisor(supervisor),
		control.WithArchiveClient(archive),
		control.WithLogger(logging.WithComponent(logger, "control")),
	}
	if root := firstNonEmpty(*recordingRoot, os.Getenv("STREAMCAST_RECORDING_ROOT")); root != "" {
		controlOpts = append(controlOpts, control.WithRecordingRoot(root))
	}
	if settle := resolveDuration(*recordingSettle, "STREAMCAST_RECORDING_SETTLE", 0); settle > 0 {
		controlOpts = append(controlOpts, control.WithRecordingSettle(settle))
	}
	if leaseAddr := firstNonEmpty(*leaseRedisAddr, os.Getenv("STREAMCAST_LEASE_REDIS_ADDR")); leaseAddr != "" {
		lease, err := control.NewOwnerLease(ctx, control.OwnerLeaseConfig{
			Addr:     leaseAddr,
			Username: firstNonEmpty(*leaseRedisUsername, os.Getenv("STREAMCAST_LEASE_REDIS_USERNAME")),
			Password: firstNonEmpty(*leaseRedisPassword, os.Getenv("STREAMCAST_LEASE_REDIS_PASSWORD")),
			DB:       resolveInt(*leaseRedisDB, "STREAMCAST_LEASE_REDIS_DB"),
			TTL:      resolveDuration(*leaseTTL, "STREAMCAST_LEASE_TTL", 0),
		})
		if err != nil {
			logger.Error("failed to connect owner lease Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := lease.Close(); err != nil {
				logger.Warn("failed to close owner lease Redis", "error", err)
			}
		}()
		controlOpts = append(controlOpts, control.WithOwnerLease(lease))
		logger.Info("cross-instance owner leases enabled", "addr", leaseAddr)
	}

	orchestrator := control.NewOrchestrator(repo, controlOpts...)
	handler := api.NewHandler(orchestrator, repo, logging.WithComponent(logger, "api"))

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("STREAMCAST_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("STREAMCAST_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:      resolveFloat(*globalRPS, "STREAMCAST_RATE_GLOBAL_RPS"),
			GlobalBurst:    resolveInt(*globalBurst, "STREAMCAST_RATE_GLOBAL_BURST"),
			MutationLimit:  resolveInt(*mutationLimit, "STREAMCAST_RATE_MUTATION_LIMIT"),
			MutationWindow: resolveDuration(*mutationWindow, "STREAMCAST_RATE_MUTATION_WINDOW", time.Minute),
			RedisAddr:      firstNonEmpty(*rateRedisAddr, os.Getenv("STREAMCAST_RATE_REDIS_ADDR")),
			RedisPassword:  firstNonEmpty(*rateRedisPassword, os.Getenv("STREAMCAST_RATE_REDIS_PASSWORD")),
			RedisDB:        resolveInt(*rateRedisDB, "STREAMCAST_RATE_REDIS_DB"),
			RedisTimeout:   resolveDuration(*rateRedisTimeout, "STREAMCAST_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			PanelOrigins: splitAndTrim(firstNonEmpty(*panelOrigins, os.Getenv("STREAMCAST_PANEL_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	certFile, _ := srv.TLSFiles()
	logger.Info("Streamcast control plane starting", "addr", listenAddr, "mode", serverMode)
	if certFile != "" {
		logger.Info("TLS enabled", "cert_file", certFile)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
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

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "memory", nil
}

func validateProductionDatastore(driver, dsn string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveChannelDriver(flagValue, envValue, mode string) string {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver
	}
	if mode == "production" {
		return "rest"
	}
	return "noop"
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("STREAMCAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
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

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
