package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagefleet/pagefleet/internal/manager"
	"github.com/pagefleet/pagefleet/pkg/config"
	"github.com/pagefleet/pagefleet/pkg/coordinator"
	"github.com/pagefleet/pagefleet/pkg/diag"
	"github.com/pagefleet/pagefleet/pkg/eventstream"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("manager")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  "pagefleet-manager",
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

	var strategy manager.Strategy
	if cfg.Role.EnableRoundRobin {
		strategy = manager.NewRotationStrategy(client, log)
	} else {
		strategy = manager.NewEvenStrategy(client, log)
	}

	mgrCfg := manager.Config{
		MaxWorkerID:  cfg.Role.MaxWorkerID,
		LiveWindow:   cfg.Role.LiveWindow,
		TickInterval: cfg.Role.ManagerTickInterval,
	}

	events := eventstream.NewPublisher(cfg.Kafka.ToKafkaConfig())
	defer events.Close()

	mgr := manager.New(client, strategy, mgrCfg, log, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go diag.New("manager", "1", cfg.Role.DiagInterval, log).Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- mgr.Run(ctx)
	}()

	select {
	case <-quit:
		log.Info("shutting down manager...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Fatal("manager exited with error", "error", err)
		}
	}

	log.Info("manager exited")
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
