package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/config"
	"github.com/pesio-ai/be-freight-documents/internal/common/database"
	"github.com/pesio-ai/be-freight-documents/internal/common/httpclient"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/metrics"
	"github.com/pesio-ai/be-freight-documents/internal/common/middleware"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/handler"
	"github.com/pesio-ai/be-freight-documents/internal/repository"
	"github.com/pesio-ai/be-freight-documents/internal/service"
	"github.com/pesio-ai/be-freight-documents/migrations"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("upstream", cfg.Upstream.BaseURL).
		Msg("Starting Freight Documents Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Audit log store (optional)
	var audit repository.AuditRecorder = repository.NopAuditRecorder{}
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, database.Config{
			URL:         cfg.Database.URL,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		audit = repository.NewAuditRepository(db)
		log.Info().Msg("Database connection established")
	} else {
		log.Warn().Msg("No database configured, audit log disabled")
	}

	// Notifications (optional)
	var events client.EventPublisherInterface
	if cfg.NATS.URL != "" {
		nc, js, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer func(nc *nats.Conn) { _ = nc.Drain() }(nc)
		events = client.NewNotificationPublisher(js, cfg.NATS.SubjectPrefix, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	rest := httpclient.NewClient(cfg.Upstream.BaseURL,
		httpclient.WithTimeout(cfg.Upstream.Timeout),
		httpclient.WithObserver(m.ObserveUpstream),
	)
	catalogs := client.NewCatalogClient(rest, cfg.Upstream.CatalogPageSize)
	confirmations := service.NewConfirmationRegistry(cfg.Documents.ConfirmTTL)

	// One controller per document type
	types := document.Types()
	controllers := make([]*service.SessionController, 0, len(types))
	grpcServices := make([]string, 0, len(types))
	for _, t := range types {
		controllers = append(controllers, service.NewSessionController(service.ControllerDeps{
			Documents:      client.NewDocumentsClient(rest, t),
			Catalogs:       catalogs,
			Audit:          audit,
			Events:         events,
			Confirmations:  confirmations,
			Defaults:       service.SessionDefaults{CompanyID: cfg.Documents.DefaultCompanyID},
			MaxConcurrency: cfg.Upstream.MaxConcurrency,
			Log:            log,
			Metrics:        m,
		}))
		grpcServices = append(grpcServices, "freightdocs."+t.Code)
	}

	// Setup HTTP routes
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	handler.NewHTTPHandler(controllers, log).Register(router)

	// Apply middleware
	var h http.Handler = router
	h = middleware.Auth(auth.NewTokenParser(cfg.Auth.JWTSecret, cfg.Auth.PersonClaim), "/health", "/metrics")(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server (health + reflection)
	grpcServer := handler.NewGRPCServer(log, grpcServices...)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	grpcServer.MarkNotServing()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.Stop()

	log.Info().Msg("Server stopped")
}
