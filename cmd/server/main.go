package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"

	"clinicsync-backend/lib/clinicstore"
	"clinicsync-backend/lib/configutil"
	"clinicsync-backend/lib/serviceutil"
	"clinicsync-backend/lib/sqliteutil"
	"clinicsync-backend/lib/telemetry"
	"clinicsync-backend/lib/userstore"
	"clinicsync-backend/services/directory"
	"clinicsync-backend/services/stock"
	syncservice "clinicsync-backend/services/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Port               int                `json:"port"`
	DatabasePath       string             `json:"database_path"`
	UserFilePath       string             `json:"user_file_path"`
	SnapshotPath       string             `json:"snapshot_path"`
	SuperAdminUsername string             `json:"superadmin_username"`
	Scraping           syncservice.Config `json:"scraping"`
}

func main() {
	verbose := flag.Bool("v", false, "enables verbose logging")
	configPath := flag.String("config", "config.json5", "path to the configuration file")
	flag.Parse()

	telemetry.InitSlog(*verbose)

	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(ctx, "clinicsync-server")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())

	config, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "data/clinic.db"
	}
	if config.UserFilePath == "" {
		config.UserFilePath = "data/users.json"
	}
	if config.SnapshotPath == "" {
		config.SnapshotPath = "data/vaccines.json"
	}

	db, err := sqliteutil.OpenDB(clinicstore.Schema, config.DatabasePath)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	defer db.Close()

	store := clinicstore.NewStore(db)
	users := userstore.New(config.UserFilePath, config.SuperAdminUsername)
	snapshotter := stock.NewSnapshotter(store, config.SnapshotPath)

	syncer := syncservice.NewService(config.Scraping, store, users)
	syncer.OnStockSynced(func(ctx context.Context) {
		if err := snapshotter.Write(ctx); err != nil {
			slog.WarnContext(ctx, "failed to refresh stock snapshot", "err", err)
		}
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Mount("/sync", syncservice.NewHandler(syncer).Routes())
	router.Mount("/stock", stock.NewHandler(store).Routes())
	router.Mount("/directory", directory.NewHandler(users).Routes())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serviceutil.StartHttpServer(config.Port, router)
}
