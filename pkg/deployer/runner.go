package deployer

import (
	"context"
	goerrors "errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-deployer/pkg/container"
	"github.com/core-tools/hsu-deployer/pkg/control"
	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Run loads the configuration and serves until a signal arrives or
// runDuration seconds elapse (0 runs forever).
func Run(runDuration int, configFile string, coreLogger coreLogging.Logger, logger logging.Logger) error {
	logger.Infof("Deployer runner starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Infof("Using CONFIGURATION FILE: %s", configFile)

	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}
	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	logger.Infof("Configuration loaded successfully from %s", configFile)
	logger.Infof("Host: %s, app base: %s, config base: %s, control port: %d",
		config.Host.Name, config.Host.AppBase, config.Host.ConfigBase, config.Control.Port)

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	go func() {
		select {
		case receivedSignal := <-sig:
			logger.Infof("Deployer runner received signal: %v", receivedSignal)
			cancel()
		case <-ctx.Done():
		}
	}()

	err = Serve(ctx, config, coreLogger, logger)
	logger.Infof("Deployer runner stopped")
	return err
}

// Serve runs the deployer described by config until ctx is done. The
// control API listens on the loopback interface only.
func Serve(ctx context.Context, config *DeployerConfig, coreLogger coreLogging.Logger, logger logging.Logger) error {
	host := container.NewStandardHost(config.Host.Name, config.Host.AppBase,
		logging.WithPrefix(logger, "host: "+config.Host.Name+" , "))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(registry)

	deployer, err := NewDeployer(config.Host.Options(), host, container.NewFactory(), metrics, logger)
	if err != nil {
		return errors.NewInternalError("failed to create deployer", err)
	}

	if err := deployer.Start(ctx); err != nil {
		logger.Errorf("Deployer started without automatic deployment: %v", err)
	}

	controlServer, err := coreControl.NewServer(coreControl.ServerOptions{Port: config.Control.Port}, coreLogger)
	if err != nil {
		_ = host.Stop(context.Background())
		return errors.NewNetworkError("failed to create control server", err).WithContext("port", config.Control.Port)
	}

	// Register core services
	coreHandler := coreDomain.NewDefaultHandler(coreLogger)
	coreControl.RegisterGRPCServerHandler(controlServer.GRPC(), coreHandler, coreLogger)

	// Register deployer services
	control.RegisterGRPCServerHandler(controlServer.GRPC(), NewHandler(deployer), logger)
	controlServer.Start(ctx)

	var metricsServer *http.Server
	if config.Metrics.Address != MetricsDisabled {
		metricsServer = startMetricsServer(config.Metrics.Address, registry, logger)
	}

	var changes <-chan struct{}
	if boolValue(config.Host.WatchFilesystem) && deployer.AutoDeploy() {
		changes, err = deployer.Watch(ctx, DefaultDebounce)
		if err != nil {
			logger.Warnf("Filesystem notifications unavailable, relying on periodic checks: %v", err)
		}
	}

	logger.Infof("Deployer is ready, check interval: %v", config.Deployer.CheckInterval)

	ticker := time.NewTicker(config.Deployer.CheckInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			deployer.Check(ctx, "timer")
		case <-changes:
			deployer.Check(ctx, "filesystem")
		}
	}

	logger.Infof("Ready to stop deployer...")

	deployer.Stop(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	controlServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to stop metrics server: %v", err)
		}
	}

	// reset to background so contexts can stop gracefully
	if err := host.Stop(context.Background()); err != nil {
		logger.Errorf("Some contexts failed to stop: %v", err)
	}
	return nil
}

func startMetricsServer(address string, gatherer prometheus.Gatherer, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Metrics server listening, address: %s", address)
		if err := server.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	return server
}
