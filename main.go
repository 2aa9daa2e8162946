package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	_ "github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage/memory"   // in-process engine
	_ "github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage/postgres" // PostgreSQL engine
	_ "github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage/sqldb"    // SQL Server, MySQL and SQLite engines
	"github.com/ekaya-inc/ekaya-rx/pkg/auth"
	"github.com/ekaya-inc/ekaya-rx/pkg/config"
	"github.com/ekaya-inc/ekaya-rx/pkg/handlers"
	"github.com/ekaya-inc/ekaya-rx/pkg/llm"
	"github.com/ekaya-inc/ekaya-rx/pkg/metrics"
	"github.com/ekaya-inc/ekaya-rx/pkg/middleware"
	"github.com/ekaya-inc/ekaya-rx/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const serviceName = "ekaya-rx"

const shutdownTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Prescription analysis API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the storage schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), false)
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "local" || cfg.Env == "test" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations opens storage with or without auto-migration and prints the
// schema version.
func runMigrations(ctx context.Context, apply bool) error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	settings := cfg.StorageSettings()
	settings.AutoMigrate = apply

	store, err := storage.Open(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	migrator, ok := store.(storage.Migrator)
	if !ok {
		logger.Info("Storage engine has no versioned schema", zap.String("engine", store.Engine()))
		return nil
	}

	version, dirty, err := migrator.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("engine=%s version=%d dirty=%t\n", store.Engine(), version, dirty)
	if dirty {
		return errors.New("schema is dirty; fix the failed migration and force its version")
	}
	return nil
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ekaya-rx",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("storage_engine", cfg.Storage.Engine),
		zap.String("vision_provider", cfg.Vision.Provider),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Strings("allowed_origins", cfg.CORS.AllowedOrigins))

	store, err := storage.Open(ctx, cfg.StorageSettings(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}()

	vision, err := llm.NewVisionClient(cfg.VisionSettings(), logger.Named("vision"))
	if err != nil {
		return fmt.Errorf("failed to create vision client: %w", err)
	}

	collector := metrics.NewCollector(serviceName, prometheus.NewRegistry())

	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		AuthorizedParties:  cfg.Auth.AuthorizedParties,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger.Named("auth"))
	authMiddleware := auth.NewMiddleware(authService, cfg.Auth.EnableVerification, logger.Named("auth"))

	patientService := services.NewPatientService(store, logger)
	statsService := services.NewStatsService(store, nil, logger)
	prescriptionService := services.NewPrescriptionService(store, vision, services.PrescriptionConfig{
		AnalysisTimeout: cfg.Vision.Timeout,
		DefaultDoctorID: cfg.Auth.DefaultDoctorID,
	}, collector, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, store, logger.Named("health")).RegisterRoutes(mux)
	handlers.NewPatientsHandler(patientService, logger.Named("patients")).RegisterRoutes(mux, authMiddleware)
	handlers.NewPrescriptionsHandler(prescriptionService, cfg.Upload.MaxBytes, logger.Named("prescriptions")).RegisterRoutes(mux, authMiddleware)
	handlers.NewStatsHandler(statsService, logger.Named("stats")).RegisterRoutes(mux, authMiddleware)
	mux.Handle("GET /metrics", collector.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	var handler http.Handler = mux
	handler = middleware.Metrics(collector)(handler)
	handler = middleware.RequestLogger(logger.Named("http"))(handler)
	handler = corsHandler.Handler(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads wait on the vision call, which can take minutes.
		WriteTimeout: cfg.Vision.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	useTLS := cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening",
			zap.String("addr", server.Addr),
			zap.Bool("tls", useTLS))
		var err error
		if useTLS {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
