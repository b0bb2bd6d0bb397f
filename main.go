// Command my-insta-bot is the main entrypoint for the repost service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Builds the session store (local disk, optionally layered over Google
//     Drive or S3) and the repost pipeline.
//   - Starts the Twitch chat front end.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mojtba-allam/my-insta-bot/auth"
	"github.com/mojtba-allam/my-insta-bot/blobstore"
	"github.com/mojtba-allam/my-insta-bot/chat"
	"github.com/mojtba-allam/my-insta-bot/config"
	"github.com/mojtba-allam/my-insta-bot/db"
	"github.com/mojtba-allam/my-insta-bot/media"
	"github.com/mojtba-allam/my-insta-bot/pipeline"
	"github.com/mojtba-allam/my-insta-bot/publish"
	"github.com/mojtba-allam/my-insta-bot/server"
	"github.com/mojtba-allam/my-insta-bot/session"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("my-insta-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store: local disk cache, optionally layered over a remote backend.
	local, err := blobstore.NewLocal(filepath.Join(cfg.DataDir, "blobs"))
	if err != nil {
		slog.Error("failed to init local blob store", slog.Any("err", err))
		os.Exit(1)
	}
	var remote blobstore.Store
	switch cfg.SessionBackend {
	case "drive":
		httpClient, err := blobstore.DriveHTTPClient(ctx, cfg.DriveCredentialsFile, cfg.DriveTokenFile)
		if err != nil {
			slog.Error("drive auth failed", slog.Any("err", err))
			os.Exit(1)
		}
		remote, err = blobstore.NewDrive(ctx, httpClient, cfg.DriveFolderName)
		if err != nil {
			slog.Error("drive store init failed", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("session backend: google drive", slog.String("folder", cfg.DriveFolderName))
	case "s3":
		remote, err = blobstore.NewS3(ctx, blobstore.S3Config{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			slog.Error("s3 store init failed", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("session backend: s3", slog.String("bucket", cfg.S3Bucket))
	default:
		slog.Info("session backend: local disk only")
	}
	sessions := session.New(local, remote)

	// Pipeline
	authMgr := auth.NewManager(sessions)
	authMgr.Devices = db.DeviceIDs{DB: database}
	materializer := media.NewMaterializer(filepath.Join(cfg.DataDir, "scratch"), remote)
	svc := pipeline.New(database, authMgr, materializer, publish.NewPublisher())

	// Chat front end
	bot := chat.NewBot(cfg, database, svc, authMgr)
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat front end disabled", slog.Any("reason", err))
	} else {
		go func() {
			if err := bot.Start(ctx); err != nil {
				slog.Error("chat bot exited with error", slog.Any("err", err))
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	go func() {
		if err := server.Start(ctx, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
