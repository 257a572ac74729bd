// Command terrasense runs the farm telemetry core: ingestion, alerting,
// live broadcast and notification delivery behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/api"
	"github.com/terrasense/terrasense-go/internal/conf"
	"github.com/terrasense/terrasense-go/internal/datastore"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/ingest"
	"github.com/terrasense/terrasense-go/internal/mqtt"
	"github.com/terrasense/terrasense-go/internal/notify"
	"github.com/terrasense/terrasense-go/internal/realtime"
	"github.com/terrasense/terrasense-go/internal/status"
)

const shutdownTimeout = 15 * time.Second

// drainer runs until its context is cancelled and all queued work is flushed.
type drainer interface {
	Start(ctx context.Context)
}

// startDrain runs d in a goroutine and returns a channel that closes once
// the drain loop has fully flushed and returned.
func startDrain(ctx context.Context, d drainer) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	return done
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "terrasense",
		Short:         "Real-time farm telemetry core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "terrasense:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	settings, err := conf.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := datastore.Open(settings.Database.Driver, settings.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}

	devices := repository.NewDeviceRepository(db)
	readings := repository.NewReadingRepository(db)
	farms := repository.NewFarmRepository(db)
	rules := repository.NewRuleRepository(db)
	subscriptions := repository.NewSubscriptionRepository(db)

	tracker := status.NewTracker()
	verifier := realtime.NewJWTVerifier(settings.Realtime.SigningSecret)
	hub := realtime.NewHub(verifier, farms, log.Named("realtime"))

	sender := notify.NewWebPushSender(
		settings.Push.Subscriber,
		settings.Push.VAPIDPublicKey,
		settings.Push.VAPIDPrivateKey,
	)
	dispatcher := notify.NewDispatcher(subscriptions, farms, sender, log.Named("notify"))

	var operator *notify.OperatorNotifier
	if settings.Push.OperatorURL != "" {
		operator, err = notify.NewOperatorNotifier([]string{settings.Push.OperatorURL}, log.Named("notify"))
		if err != nil {
			return fmt.Errorf("invalid operator notification config: %w", err)
		}
	}
	notifier := notify.NewAlertNotifier(dispatcher, farms, operator)

	actions := alerting.NewActionDispatcher(hub, notifier, log.Named("alerting"))
	engine := alerting.NewEngine(alerting.EngineConfig{
		Rules:              rules,
		Readings:           readings,
		Farms:              farms,
		Dispatcher:         actions,
		Log:                log.Named("alerting"),
		EvaluationInterval: settings.Alerting.EvaluationInterval.Std(),
		MaxConcurrentFarms: settings.Alerting.MaxConcurrentFarms,
	})
	if err := engine.LoadRules(ctx); err != nil {
		return fmt.Errorf("failed to load alert rules: %w", err)
	}

	pipeline := ingest.NewPipeline(ingest.Config{
		Devices:        devices,
		Readings:       readings,
		Farms:          farms,
		Tracker:        tracker,
		Hub:            hub,
		Checker:        engine,
		Log:            log.Named("ingest"),
		DrainInterval:  settings.Ingestion.DrainInterval.Std(),
		DrainChunkSize: settings.Ingestion.DrainChunkSize,
		DeviceCacheTTL: settings.Ingestion.DeviceCacheTTL.Std(),
	})

	controller := api.New(api.Config{
		Pipeline:   pipeline,
		Engine:     engine,
		Hub:        hub,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Devices:    devices,
		Readings:   readings,
		Farms:      farms,
		Rules:      rules,
		Verifier:   verifier,
		Log:        log.Named("api"),
	})

	pipelineDone := startDrain(ctx, pipeline)
	go engine.Start(ctx)
	engine.StartHistoryCleanup(settings.Alerting.HistoryRetentionDays)

	var source *mqtt.Source
	if settings.MQTT.Enabled {
		source = mqtt.NewSource(&settings.MQTT, pipeline, log.Named("mqtt"))
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT source: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listener starting", zap.String("listen", settings.HTTP.Listen))
		if err := controller.Echo.Start(settings.HTTP.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http listener failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if source != nil {
		source.Stop()
	}
	// Queued readings must reach the datastore before the process exits.
	<-pipelineDone
	engine.Stop()
	hub.Shutdown()
	if err := controller.Echo.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
