package taskfire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/RezaEskandarii/taskfire/client"
	"github.com/RezaEskandarii/taskfire/di"
	"github.com/RezaEskandarii/taskfire/internal/metrics"
	"github.com/RezaEskandarii/taskfire/internal/notify"
	"github.com/RezaEskandarii/taskfire/internal/registry"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Taskfire is a running scheduler: an initialized queue manager with its queues started, a
// recurring scheduler and the optional metrics endpoint.
type Taskfire struct {
	Manager   *client.QueueManager
	Recurring *client.RecurringScheduler
	Metrics   *metrics.Collector

	deps          *di.Dependencies
	metricsServer *http.Server
	logger        *slog.Logger
}

// New initializes the whole scheduler from cfg.
//
// The function performs the following steps:
//  1. Creates the storage backend, lock manager and message broker selected by cfg.
//  2. Builds the notifier chain: structured log, message broker and Prometheus metrics.
//  3. Initializes the queue manager, which recovers tasks interrupted by a crash.
//  4. Creates the configured queues that are not persisted yet.
//  5. Starts every queue so recovered and pending work is drained.
//  6. Starts the recurring scheduler and, if enabled, the metrics endpoint.
//
// reg must hold every task type found in the store; an unknown type aborts initialization.
func New(ctx context.Context, cfg *config.TaskfireConfig, reg *registry.Registry) (*Taskfire, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return NewWithLogger(ctx, cfg, reg, logger)
}

func NewWithLogger(ctx context.Context, cfg *config.TaskfireConfig, reg *registry.Registry, logger *slog.Logger) (*Taskfire, error) {
	// ---------------------------------------------------------------------------------------------
	// Storage, lock manager and message broker
	// ---------------------------------------------------------------------------------------------
	deps, err := di.GetDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tf := &Taskfire{deps: deps, logger: logger}

	// ---------------------------------------------------------------------------------------------
	// Notifier chain
	// ---------------------------------------------------------------------------------------------
	notifiers := notify.NewMulti(0, notify.NewLogNotifier(logger))
	if deps.MessageBroker != nil {
		notifiers.Add(notify.NewBrokerNotifier(deps.MessageBroker, cfg.EventTopic))
	}

	opts := []client.ManagerOption{
		client.WithLogger(logger),
		client.WithDefaults(cfg.MaxNumberOfRetries, cfg.MaxNumberOfTries),
		client.WithEventBuffer(cfg.EventBuffer),
	}
	if deps.LockMgr != nil {
		opts = append(opts, client.WithRecoveryLock(deps.LockMgr))
	}

	var promRegistry *prometheus.Registry
	if cfg.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		tf.Metrics = metrics.NewCollector(promRegistry)
		notifiers.Add(tf.Metrics)
		opts = append(opts, client.WithPoolObserver(tf.Metrics))
	}
	opts = append(opts, client.WithNotifier(notifiers))

	// ---------------------------------------------------------------------------------------------
	// Queue manager and queues
	// ---------------------------------------------------------------------------------------------
	tf.Manager = client.NewQueueManager(deps.TaskStore, reg, opts...)
	if err := tf.Manager.Initialize(ctx, cfg.StorageKey); err != nil {
		_ = deps.Close()
		return nil, err
	}

	for _, qc := range cfg.Queues {
		if tf.Manager.HasQueue(qc.Name) {
			continue
		}
		if _, err := tf.Manager.CreateQueue(ctx, qc.Name, qc.ThreadNumber); err != nil {
			_ = tf.Shutdown(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("create queue %s: %w", qc.Name, err)
		}
	}

	for _, q := range tf.Manager.Queues() {
		q.StartThreads()
	}

	tf.Recurring = client.NewRecurringScheduler(tf.Manager)
	tf.Recurring.Start()

	if promRegistry != nil {
		tf.serveMetrics(cfg.MetricsAddr, promRegistry)
	}

	logger.Info("taskfire started",
		slog.String("storage", cfg.StorageDriver.String()),
		slog.String("notifier", cfg.NotifierDriver.String()),
		slog.Int("queues", len(tf.Manager.Queues())),
		slog.Int("notifiers", notifiers.Len()),
		slog.Any("task_types", reg.List()),
	)
	return tf, nil
}

func (tf *Taskfire) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	tf.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := tf.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tf.logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops recurring submissions, the queues and the metrics endpoint, then closes the
// store and the message broker. Tasks still running are recovered on the next start.
func (tf *Taskfire) Shutdown(ctx context.Context) error {
	var errs []error

	if tf.Recurring != nil {
		<-tf.Recurring.Stop().Done()
	}
	if err := tf.Manager.Uninitialize(ctx); err != nil && !errors.Is(err, client.ErrNotInitialized) {
		errs = append(errs, err)
	}
	if tf.metricsServer != nil {
		if err := tf.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := tf.deps.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
