package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagefleet/pagefleet/internal/product"
	"github.com/pagefleet/pagefleet/pkg/browser"
	"github.com/pagefleet/pagefleet/pkg/config"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/database"
	"github.com/pagefleet/pagefleet/pkg/diag"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/storage"
	"github.com/pagefleet/pagefleet/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("product")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  "pagefleet-product",
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer tel.Close()

	client, err := newCoordinatorClient(cfg)
	if err != nil {
		log.Fatal("failed to connect to coordinator", "error", err)
	}
	defer client.Close()
	client = coordinator.NewTracingClient(client, tel.Tracer())

	driver, err := browser.NewChromeDriver(browser.Config{
		RemoteDebugURL: cfg.Browser.RemoteDebugURL,
		NavTimeout:     cfg.Browser.NavTimeout,
		MaxNavPerSec:   cfg.Browser.MaxNavPerSec,
	}, log)
	if err != nil {
		log.Fatal("failed to attach to browser", "error", err)
	}
	defer driver.Close()

	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	store := storage.New(db)
	if err := store.Migrate(); err != nil {
		log.Fatal("failed to migrate storage", "error", err)
	}

	prodCfg := product.Config{
		ID:                cfg.Role.ID,
		PollInterval:      cfg.Role.ProductPollInterval,
		HeartbeatInterval: cfg.Role.HeartbeatInterval,
	}

	worker := product.New(prodCfg, client, driver, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbMonitor, err := database.NewDBMonitor(db.DB, log.Raw())
	if err != nil {
		log.Fatal("failed to initialize database monitor", "error", err)
	}
	if err := dbMonitor.Start(ctx); err != nil {
		log.Fatal("failed to start database monitor", "error", err)
	}

	go diag.New("product", prodCfg.ID, cfg.Role.DiagInterval, log).Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	select {
	case <-quit:
		log.Info("shutting down product worker...", "productId", prodCfg.ID)
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatal("product worker exited with error", "error", err)
		}
	}

	log.Info("product worker exited", "productId", prodCfg.ID)
}

func newCoordinatorClient(cfg *config.Config) (coordinator.Client, error) {
	switch cfg.Coordinator.Backend {
	case "etcd":
		return coordinator.NewEtcdClient(coordinator.EtcdConfig{
			Endpoints: cfg.Coordinator.EtcdEndpoints,
			Timeout:   cfg.Coordinator.EtcdTimeout,
			Namespace: cfg.Coordinator.Namespace,
		})
	default:
		return coordinator.NewRedisClient(coordinator.RedisConfig{
			Addr:      cfg.Coordinator.RedisAddr,
			Password:  cfg.Coordinator.RedisPassword,
			DB:        cfg.Coordinator.RedisDB,
			Namespace: cfg.Coordinator.Namespace,
		}), nil
	}
}
