// Package main initializes and starts the swyppy API server, setting up
// configuration, logging, the record backend, the media host, services,
// handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/swyppy/internal/config"
	"github.com/atinyakov/swyppy/internal/db"
	"github.com/atinyakov/swyppy/internal/identity"
	"github.com/atinyakov/swyppy/internal/logger"
	"github.com/atinyakov/swyppy/internal/media"
	"github.com/atinyakov/swyppy/internal/repository"
	"github.com/atinyakov/swyppy/internal/server/handler/http"
	"github.com/atinyakov/swyppy/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, .env, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if options.JWTSecret == "" {
		zapLogger.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pick the record tree; listings and user profiles share it.
	tree, err := openTree(ctx, options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init record backend", zap.Error(err))
	}

	// Pick the media host.
	uploader, err := openMedia(ctx, options)
	if err != nil {
		zapLogger.Fatal("cannot init media host", zap.Error(err))
	}

	// Initialize business-logic services.
	listingService := service.NewListingService(tree, uploader, zapLogger)
	if err := listingService.FetchAll(ctx); err != nil {
		zapLogger.Warn("initial listing fetch failed", zap.Error(err))
	}
	service.StartAutoRefresh(ctx, listingService, options.RefreshInterval, zapLogger)

	ids := identity.New(options.IdentityURL, options.FirebaseAPIKey, nil)
	// Requests are authorized by JWT; no user's credential is kept server-side.
	authService := service.NewServerAuthService(ids, tree, zapLogger)

	jobs := http.NewUploadJobs(options.ProgressTTL)
	jobs.Start()
	defer jobs.Stop()

	// Create HTTP handlers for auth and listing endpoints.
	authHandler := &http.AuthHandler{
		AuthService: authService,
		Secret:      []byte(options.JWTSecret),
		TTL:         options.TokenTTL,
	}
	listingHandler := &http.ListingHandler{
		Listings: listingService,
		Jobs:     jobs,
		Log:      zapLogger,
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, listingHandler, []byte(options.JWTSecret), zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func openTree(ctx context.Context, options *config.Options, log *zap.Logger) (service.Tree, error) {
	switch options.Backend {
	case config.BackendPostgres:
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		// Purge soft-deleted nodes after the retention period.
		db.StartSoftDeleteCleaner(ctx, postgresDB, time.Hour, options.Retention, log)
		return repository.NewPostgresTree(postgresDB), nil
	case config.BackendFirebase:
		if options.FirebaseURL == "" {
			return nil, errors.New("FIREBASE_URL is required")
		}
		tree := repository.NewFirebaseTree(options.FirebaseURL, nil)
		tree.SetTokenSource(repository.StaticToken(options.FirebaseSecret))
		return tree, nil
	default:
		return nil, fmt.Errorf("unknown record backend %q", options.Backend)
	}
}

func openMedia(ctx context.Context, options *config.Options) (service.MediaUploader, error) {
	switch options.MediaHost {
	case config.MediaS3:
		return media.NewS3(ctx, media.S3Config{
			Bucket:          options.S3.Bucket,
			Region:          options.S3.Region,
			Endpoint:        options.S3.Endpoint,
			AccessKeyID:     options.S3.AccessKeyID,
			SecretAccessKey: options.S3.SecretAccessKey,
		})
	case config.MediaCloudinary:
		return media.NewCloudinary(options.UploadURL, options.UploadPreset, nil), nil
	default:
		return nil, fmt.Errorf("unknown media host %q", options.MediaHost)
	}
}
