// Package for main function of the volume broker
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/dimitrisb35/volume-broker/pkg/base"
	"github.com/dimitrisb35/volume-broker/pkg/base/backoff"
	"github.com/dimitrisb35/volume-broker/pkg/base/config"
	"github.com/dimitrisb35/volume-broker/pkg/binder"
	"github.com/dimitrisb35/volume-broker/pkg/catalog"
	"github.com/dimitrisb35/volume-broker/pkg/claimstore"
	"github.com/dimitrisb35/volume-broker/pkg/eventing"
	"github.com/dimitrisb35/volume-broker/pkg/metrics"
	"github.com/dimitrisb35/volume-broker/pkg/observer"
	"github.com/dimitrisb35/volume-broker/pkg/provisioner"
	"github.com/dimitrisb35/volume-broker/pkg/reclaimer"
)

var (
	catalogPath  = flag.String("catalog", "", "Path to the storage class catalog YAML")
	watchCatalog = flag.Bool("watch-catalog", false, "Reload the catalog when the file changes")
	logPath      = flag.String("logpath", "", "Log path for the broker")
	verboseLogs  = flag.Bool("verbose", false, "Debug mode in logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("fail to load configuration, error: %v", err)
	}

	logLevel := logrus.InfoLevel
	if *verboseLogs {
		logLevel = logrus.DebugLevel
	} else if parsed, parseErr := logrus.ParseLevel(cfg.LogLevel); parseErr == nil {
		logLevel = parsed
	}
	if *logPath == "" {
		*logPath = cfg.LogPath
	}

	logger, err := base.InitLogger(*logPath, logLevel)
	if err != nil {
		logger.Warnf("Can't set logger's output to %s. Using stdout instead.\n", *logPath)
	}

	logger.Info("Starting volume broker ...")

	cat := catalog.NewCatalog(logger)
	if *catalogPath != "" {
		if err := cat.LoadFromFile(*catalogPath); err != nil {
			logger.Fatalf("fail to load catalog from %s, error: %v", *catalogPath, err)
		}
		if *watchCatalog {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				logger.Fatalf("fail to create catalog watcher, error: %v", err)
			}
			defer func() { _ = watcher.Close() }()
			go cat.UpdateOnConfigChange(watcher, *catalogPath)
		}
	}

	store := claimstore.NewStore(logger)
	recorder := eventing.NewRecorder(logger)

	backends := provisioner.NewRegistry(
		provisioner.NewBlockProvisioner(poolSize(logger, cfg.BlockPool), logger),
		provisioner.NewFileProvisioner(poolSize(logger, cfg.FilePool), logger),
		provisioner.NewObjectProvisioner(poolSize(logger, cfg.ObjectPool), logger),
		provisioner.NewEphemeralProvisioner(poolSize(logger, cfg.EphemeralPool), logger),
	)

	brokerMetrics := metrics.NewBrokerMetrics()
	promRegistry := prometheus.NewRegistry()
	for _, collector := range brokerMetrics.Collect() {
		promRegistry.MustRegister(collector)
	}

	backoffHandler := backoff.NewExponentialHandler(cfg.BackoffConfig())
	bnd := binder.NewBinder(cat, store, backends, backoffHandler,
		cfg.RetryMaxAttempts, cfg.Workers, cfg.ResyncInterval, recorder, brokerMetrics, logger)
	rec := reclaimer.NewReclaimer(cat, store, backends, cfg.ReclaimInterval, recorder, brokerMetrics, logger)

	obs := observer.NewObserver(cat, store, recorder, logger)
	srv := observer.NewServer(obs, bnd, cfg.RestAddress, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
		<-signalChan
		logger.Info("Got termination signal")
		cancel()
	}()

	go bnd.Run(ctx)
	go rec.Run(ctx)

	if err := srv.ListenAndServe(ctx, promRegistry); err != nil {
		logger.Fatalf("fail to serve, error: %v", err)
	}
	logger.Info("Volume broker stopped")
}

func poolSize(logger *logrus.Logger, quantity string) int64 {
	parsed, err := resource.ParseQuantity(quantity)
	if err != nil {
		logger.Fatalf("fail to parse pool size %q, error: %v", quantity, err)
	}
	return parsed.Value()
}
