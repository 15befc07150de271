package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagefleet/pagefleet/internal/general"
	"github.com/pagefleet/pagefleet/pkg/browser"
	"github.com/pagefleet/pagefleet/pkg/config"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/diag"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("general")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  "pagefleet-general",
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

	genCfg := general.Config{
		ID:                        cfg.Role.ID,
		MaxProductWorkerID:        cfg.Role.MaxWorkerID,
		ProductWorkerTotal:        cfg.Role.ProductWorkerTotal,
		LiveWindow:                cfg.Role.LiveWindow,
		TickInterval:              cfg.Role.GeneralTickInterval,
		HeartbeatInterval:         cfg.Role.HeartbeatInterval,
		BatchPollInterval:         cfg.Role.BatchPollInterval,
		TabsPerBatch:              cfg.Role.TabsPerBatch,
		TabOpenDelayMin:           cfg.Role.TabOpenDelayMin,
		TabOpenDelayMax:           cfg.Role.TabOpenDelayMax,
		NavTimeout:                cfg.Browser.NavTimeout,
		ServiceUnavailableBackoff: cfg.Role.ServiceUnavailableWait,
		ListingURLTemplate:        cfg.Site.ListingURLTemplate,
		ParallelTabOpen:           cfg.Role.ParallelTabOpen,
	}

	events := eventstream.NewPublisher(cfg.Kafka.ToKafkaConfig())
	defer events.Close()

	worker := general.New(genCfg, client, driver, log, events, tel.Tracer())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go diag.New("general", genCfg.ID, cfg.Role.DiagInterval, log).Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	select {
	case <-quit:
		log.Info("shutting down general worker...", "generalId", genCfg.ID)
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatal("general worker exited with error", "error", err)
		}
	}

	log.Info("general worker exited", "generalId", genCfg.ID)
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
