package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mesikahq/rxledger/internal/api"
	"github.com/mesikahq/rxledger/internal/archive"
	"github.com/mesikahq/rxledger/internal/audit"
	"github.com/mesikahq/rxledger/internal/auth"
	"github.com/mesikahq/rxledger/internal/config"
	"github.com/mesikahq/rxledger/internal/ledger"
	"github.com/mesikahq/rxledger/internal/notify"
	"github.com/mesikahq/rxledger/internal/prescription"
	"github.com/mesikahq/rxledger/internal/registry"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Connect to the ledger. A credential or transport failure aborts
	// startup entirely; there is no partial service.
	profile, err := ledger.LoadProfile(cfg.Fabric.ProfilePath)
	if err != nil {
		logger.Fatal("Failed to load connection profile", zap.Error(err))
	}

	conn, err := ledger.Connect(profile)
	if err != nil {
		logger.Fatal("Failed to connect to ledger peer", zap.Error(err))
	}
	defer conn.Close()

	network := conn.Network(cfg.Fabric.Channel)
	contract := network.GetContract(cfg.Fabric.Chaincode)
	ledgerService := prescription.NewService(prescription.NewGatewaySubmitter(contract), logger)

	// Off-chain event archive.
	ctx := context.Background()
	mongoClient, err := archive.Connect(ctx, archive.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		Collection:     cfg.Mongo.Collection,
		MaxPoolSize:    cfg.Mongo.MaxPoolSize,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)

	archiveService := archive.NewService(mongoClient, cfg.Mongo.Database, cfg.Mongo.Collection, logger)

	// Audit trail.
	auditService := audit.Nop()
	if cfg.Elasticsearch.URL != "" {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{cfg.Elasticsearch.URL},
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Elasticsearch", zap.Error(err))
		}
		auditService = audit.NewService(esClient)
	}

	// Live chaincode event listening from the current ledger head. Stream
	// faults reach the supervisory handler; deliberate shutdown does not.
	listenCtx, stopListening := context.WithCancel(context.Background())
	defer stopListening()

	listener := prescription.NewListener(network, cfg.Fabric.Chaincode, archiveService,
		func(err error) {
			logger.Error("chaincode event stream fault", zap.Error(err))
		}, logger)
	if err := listener.Start(listenCtx); err != nil {
		logger.Fatal("Failed to start event listening", zap.Error(err))
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}

	clients := make(map[string]string, len(cfg.Auth.Clients))
	for _, c := range cfg.Auth.Clients {
		clients[c.ID] = c.Secret
	}
	authService := auth.NewService(jwtSecret, cfg.Auth.TokenExpiry, clients)

	notifyService := notify.NewResendService(os.Getenv("RESEND_API_KEY"), cfg.Notify.From, logger)
	doctorLookup := registry.NewHTTPLookup(cfg.Registry.DoctorURL, cfg.Registry.Timeout, logger)
	pharmacistLookup := registry.NewHTTPLookup(cfg.Registry.PharmacistURL, cfg.Registry.Timeout, logger)

	handler := api.NewHandler(
		ledgerService,
		notifyService,
		doctorLookup,
		pharmacistLookup,
		authService,
		auditService,
		cfg.Notify.ValidationBaseURL,
		logger,
	)

	router := api.NewRouter(handler, authService)
	engine := router.SetupRouter(logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if cfg.Server.TLS.Enabled {
			if err := srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		} else {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Teardown order: stop consuming events, close gateway then channel,
	// then the off-chain stores (the remaining defers).
	stopListening()
	if err := conn.Close(); err != nil {
		logger.Error("Failed to close ledger connection", zap.Error(err))
	}

	logger.Info("Server exiting")
}
