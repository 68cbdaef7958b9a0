package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/ruyi-tarot/tarot-service/internal/catalog"
	"github.com/ruyi-tarot/tarot-service/internal/config"
	"github.com/ruyi-tarot/tarot-service/internal/draw"
	"github.com/ruyi-tarot/tarot-service/internal/handler"
	"github.com/ruyi-tarot/tarot-service/internal/oracle"
	"github.com/ruyi-tarot/tarot-service/internal/random"
	"github.com/ruyi-tarot/tarot-service/internal/repository"
	"github.com/ruyi-tarot/tarot-service/internal/service"
	"github.com/ruyi-tarot/tarot-service/internal/session"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage
	repo, err := openRepository(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open ledger storage: %v", err)
	}
	if err := repo.SeedPromos(service.SeedPromoCodes); err != nil {
		logger.Fatalf("Failed to seed promo codes: %v", err)
	}

	// Initialize layers
	ledger := service.NewLedgerService(repo, logger, cfg)
	oracleClient := oracle.NewClient(cfg, logger)
	engine := draw.NewEngine(catalog.New(), random.NewCryptoTimeSource())
	sessions := session.NewManager(engine, ledger, oracleClient, logger,
		cfg.SpreadSize, cfg.ShuffleDelay, cfg.SettleDelay)
	h := handler.NewHandler(ledger, sessions, oracleClient, logger)

	// Nightly ledger snapshot, idle-session sweep and stats log
	c := cron.New()
	_, err = c.AddFunc("0 4 * * *", func() {
		if s, ok := repo.(interface{ Snapshot() error }); ok {
			if err := s.Snapshot(); err != nil {
				logger.Warnf("Ledger snapshot failed: %v", err)
			}
		}
		sessions.Sweep(24 * time.Hour)
		stats, err := ledger.Stats()
		if err != nil {
			logger.Warnf("Failed to collect ledger stats: %v", err)
			return
		}
		logger.Infof("Ledger stats: %d users, %d points in circulation",
			stats.TotalUsers, stats.TotalPointsInCirculation)
	})
	if err != nil {
		logger.Fatalf("Failed to schedule ledger snapshot: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Setup router
	r := mux.NewRouter()
	h.RegisterRoutes(r, cfg)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second, // oracle calls can be slow
	}
	logger.Infof("Starting tarot service on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

// openRepository selects the ledger store from configuration: the
// write-through JSON file by default, Postgres when configured.
func openRepository(cfg *config.Config, logger *logrus.Logger) (repository.Repository, error) {
	switch cfg.StorageDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return repository.NewPostgresRepository(db)
	case "file":
		return repository.NewFileRepository(cfg.DataFile, logger)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
