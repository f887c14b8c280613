package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedwagon-io/solarbridge/internal/api"
	"github.com/speedwagon-io/solarbridge/internal/broadcast"
	"github.com/speedwagon-io/solarbridge/internal/bus"
	"github.com/speedwagon-io/solarbridge/internal/command"
	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/decoder"
	"github.com/speedwagon-io/solarbridge/internal/health"
	"github.com/speedwagon-io/solarbridge/internal/ingest"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
	"github.com/speedwagon-io/solarbridge/internal/qr"
	"github.com/speedwagon-io/solarbridge/internal/session"
	"github.com/speedwagon-io/solarbridge/internal/session/whatsapp"
	"github.com/speedwagon-io/solarbridge/internal/state"
	"github.com/speedwagon-io/solarbridge/internal/storage"
	"github.com/speedwagon-io/solarbridge/internal/twin"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting solar bridge",
		slog.String("env", cfg.Env),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("bus_url", cfg.Bus.URL),
		slog.Bool("session_enabled", cfg.Session.Enabled),
		slog.Bool("twin_enabled", cfg.Twin.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	repo, err := storage.Open(log.With(slog.String("component", "storage")), cfg.Storage)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	busClient := bus.New(log.With(slog.String("component", "bus")), cfg.Bus)
	if err := busClient.Connect(ctx); err != nil {
		log.Error("failed to connect to bus", sl.Err(err))
		os.Exit(1)
	}

	store := state.NewStore()
	subjects := cfg.Bus.Subjects

	var observers []ingest.Observer
	if cfg.Twin.Enabled {
		observers = append(observers, twin.NewEstimator(
			log.With(slog.String("component", "twin")),
			twin.ModuleFromConfig(cfg.Twin),
			busClient, m, subjects.EstimatedPower, cfg.Bus.QoS,
		))
	}

	pipeline := ingest.NewPipeline(
		log.With(slog.String("component", "ingest")),
		decoder.New(subjects),
		store,
		ingest.NewWriter(log.With(slog.String("component", "writer")), repo, m),
		m,
		observers...,
	)

	broadcaster := broadcast.New(
		log.With(slog.String("component", "broadcast")),
		store, busClient, m, subjects.State, cfg.Bus.QoS, cfg.Bus.BroadcastInterval,
	)

	challenge := session.NewPairingChallenge()

	healthServer := health.NewServer(log, cfg.Health.Address)
	healthServer.AddChecker(health.NewStorageHealthChecker(repo.Ping))
	healthServer.AddChecker(health.NewBusHealthChecker(busClient.IsConnected))

	var wg sync.WaitGroup

	if cfg.Session.Enabled {
		sessionLog := log.With(slog.String("component", "session"))

		dialer, err := whatsapp.NewDialer(ctx, sessionLog, cfg.Session.AuthDir)
		if err != nil {
			log.Error("failed to open control session store", sl.Err(err))
			os.Exit(1)
		}
		defer dialer.Close()

		manager := session.NewManager(sessionLog, dialer, challenge, m)
		manager.OnChallenge(func(code string) {
			sessionLog.Info("scan the pairing code below or open /qr")
			qr.PrintTerminal(os.Stdout, code)
		})
		healthServer.AddChecker(health.NewSessionHealthChecker(manager.State))

		dispatcher := command.NewDispatcher(
			log.With(slog.String("component", "command")),
			repo, busClient, manager, m,
			subjects.Control, cfg.Bus.ControlQoS,
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sessionLog.Error("control session stopped", sl.Err(err))
			}
		}()
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx, manager.Inbound())
		}()
	}

	if err := healthServer.Start(); err != nil {
		log.Error("failed to start health server", sl.Err(err))
		os.Exit(1)
	}

	apiServer := api.NewServer(
		log.With(slog.String("component", "api")),
		cfg.HTTP, repo, store, challenge, promhttp.Handler(),
	)
	if err := apiServer.Start(); err != nil {
		log.Error("failed to start api server", sl.Err(err))
		os.Exit(1)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		broadcaster.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		busClient.Run(ctx, func(ctx context.Context, msg bus.Message) {
			pipeline.Handle(ctx, msg.Subject, msg.Payload)
		})
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop api server", sl.Err(err))
	}
	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop health server", sl.Err(err))
	}

	wg.Wait()
	busClient.Close()

	if err := repo.Close(); err != nil {
		log.Error("failed to close storage", sl.Err(err))
	}

	log.Info("solar bridge stopped")
}
