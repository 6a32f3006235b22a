package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/vitaliisemenov/turnsync/internal/config"
)

// ================================================================================
// Signal handler for hot config reload
// ================================================================================
// Listens for SIGHUP, reloads configuration from disk, revalidates it, and
// atomically swaps it in for readers. Unlike a full config-update service with
// versioning and rollback, this only ever replaces the current snapshot: a
// config that fails validation is discarded and the previous snapshot is kept.

// ConfigApplier receives a freshly loaded and validated config on reload.
type ConfigApplier interface {
	ApplyConfig(cfg *config.Config)
}

// SignalMetricsInterface defines the interface for signal handler metrics
type SignalMetricsInterface interface {
	RecordReloadAttempt(source, status string)
	RecordValidationFailure(source string)
	RecordReloadDuration(source string, duration float64)
	RecordSuccessTimestamp(source string, timestamp float64)
	RecordFailureTimestamp(source string, timestamp float64)
}

// SignalHandler manages Unix signal handling for hot reload
type SignalHandler struct {
	applier ConfigApplier
	logger  *slog.Logger
	metrics SignalMetricsInterface

	current atomic.Value // *config.Config

	lastReloadTime atomic.Value // time.Time
	debounceWindow time.Duration

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	sigChan    chan os.Signal
	reloadChan chan struct{}
}

// NewSignalHandler creates a new SignalHandler
func NewSignalHandler(applier ConfigApplier, initial *config.Config, logger *slog.Logger) *SignalHandler {
	return NewSignalHandlerWithMetrics(applier, initial, logger, NewSignalPrometheusMetrics())
}

// NewSignalHandlerWithMetrics creates a SignalHandler with custom metrics (for testing)
func NewSignalHandlerWithMetrics(
	applier ConfigApplier,
	initial *config.Config,
	logger *slog.Logger,
	metrics SignalMetricsInterface,
) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &SignalHandler{
		applier:        applier,
		logger:         logger,
		metrics:        metrics,
		debounceWindow: 1 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		sigChan:        make(chan os.Signal, 1),
		reloadChan:     make(chan struct{}, 10),
	}
	if initial != nil {
		h.current.Store(initial)
	}
	return h
}

// Current returns the most recently applied configuration.
func (h *SignalHandler) Current() *config.Config {
	v := h.current.Load()
	if v == nil {
		return nil
	}
	return v.(*config.Config)
}

// Start begins listening for signals
func (h *SignalHandler) Start() error {
	h.logger.Info("starting signal handler for hot reload")

	signal.Notify(h.sigChan, syscall.SIGHUP)

	h.wg.Add(1)
	go h.signalListener()

	h.wg.Add(1)
	go h.reloadWorker()

	h.logger.Info("signal handler started successfully",
		"signals", []string{"SIGHUP"},
		"debounce_window", h.debounceWindow,
	)

	return nil
}

// Stop stops signal handling
func (h *SignalHandler) Stop() {
	h.logger.Info("stopping signal handler")

	signal.Stop(h.sigChan)
	close(h.sigChan)

	h.cancel()
	h.wg.Wait()

	h.logger.Info("signal handler stopped successfully")
}

func (h *SignalHandler) signalListener() {
	defer h.wg.Done()

	for {
		select {
		case sig, ok := <-h.sigChan:
			if !ok {
				return
			}

			h.logger.Info("received signal", "signal", sig.String())

			switch sig {
			case syscall.SIGHUP:
				select {
				case h.reloadChan <- struct{}{}:
					h.logger.Debug("reload request queued")
				default:
					h.logger.Warn("reload queue full, skipping request")
				}
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *SignalHandler) reloadWorker() {
	defer h.wg.Done()

	for {
		select {
		case <-h.reloadChan:
			if h.shouldDebounce() {
				h.logger.Debug("reload debounced (too soon after previous reload)")
				continue
			}

			h.updateLastReloadTime()
			h.executeReload()

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *SignalHandler) shouldDebounce() bool {
	lastReload := h.getLastReloadTime()
	if lastReload.IsZero() {
		return false
	}

	return time.Since(lastReload) < h.debounceWindow
}

func (h *SignalHandler) updateLastReloadTime() {
	h.lastReloadTime.Store(time.Now())
}

func (h *SignalHandler) getLastReloadTime() time.Time {
	val := h.lastReloadTime.Load()
	if val == nil {
		return time.Time{}
	}
	return val.(time.Time)
}

const reloadSource = "sighup"

// executeReload performs the actual config reload
func (h *SignalHandler) executeReload() {
	startTime := time.Now()

	h.logger.Info("executing config reload via SIGHUP")

	cfg, err := h.reloadConfigFromDisk()
	if err != nil {
		h.handleReloadError("failed to load config from disk", err, startTime)
		return
	}

	if err := cfg.Validate(); err != nil {
		h.metrics.RecordValidationFailure(reloadSource)
		h.handleReloadError("reloaded config failed validation, keeping previous config", err, startTime)
		return
	}

	h.current.Store(cfg)
	if h.applier != nil {
		h.applier.ApplyConfig(cfg)
	}

	duration := time.Since(startTime)
	h.metrics.RecordReloadAttempt(reloadSource, "success")
	h.metrics.RecordReloadDuration(reloadSource, duration.Seconds())
	h.metrics.RecordSuccessTimestamp(reloadSource, float64(time.Now().Unix()))

	h.logger.Info("config reload completed successfully via SIGHUP",
		"duration_ms", duration.Milliseconds(),
	)
}

// reloadConfigFromDisk loads configuration from disk using viper
func (h *SignalHandler) reloadConfigFromDisk() (*config.Config, error) {
	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		return nil, fmt.Errorf("config file path not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reload config file: %w", err)
	}

	return cfg, nil
}

func (h *SignalHandler) handleReloadError(message string, err error, startTime time.Time) {
	duration := time.Since(startTime)
	h.metrics.RecordReloadAttempt(reloadSource, "failure")
	h.metrics.RecordReloadDuration(reloadSource, duration.Seconds())
	h.metrics.RecordFailureTimestamp(reloadSource, float64(time.Now().Unix()))

	h.logger.Error(message,
		"error", err,
		"duration_ms", duration.Milliseconds(),
	)
}

// GetMetrics returns signal metrics (for testing/inspection)
func (h *SignalHandler) GetMetrics() SignalMetricsInterface {
	return h.metrics
}
