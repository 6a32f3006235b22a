package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaliisemenov/turnsync/internal/config"
)

// mockSignalPrometheusMetrics is a mock implementation for testing
type mockSignalPrometheusMetrics struct{}

func (m *mockSignalPrometheusMetrics) RecordReloadAttempt(source, status string)              {}
func (m *mockSignalPrometheusMetrics) RecordValidationFailure(source string)                  {}
func (m *mockSignalPrometheusMetrics) RecordReloadDuration(source string, duration float64)   {}
func (m *mockSignalPrometheusMetrics) RecordSuccessTimestamp(source string, timestamp float64) {}
func (m *mockSignalPrometheusMetrics) RecordFailureTimestamp(source string, timestamp float64) {}

// mockConfigApplier records the last config it was handed.
type mockConfigApplier struct {
	applied *config.Config
}

func (m *mockConfigApplier) ApplyConfig(cfg *config.Config) {
	m.applied = cfg
}

func newTestSignalHandler(applier ConfigApplier, initial *config.Config) *SignalHandler {
	return NewSignalHandlerWithMetrics(applier, initial, nil, &mockSignalPrometheusMetrics{})
}

func TestNewSignalHandler(t *testing.T) {
	applier := &mockConfigApplier{}
	handler := newTestSignalHandler(applier, &config.Config{})

	assert.NotNil(t, handler)
	assert.NotNil(t, handler.applier)
	assert.NotNil(t, handler.logger)
	assert.NotNil(t, handler.metrics)
	assert.Equal(t, 1*time.Second, handler.debounceWindow)
	assert.NotNil(t, handler.ctx)
	assert.NotNil(t, handler.cancel)
	assert.NotNil(t, handler.sigChan)
	assert.NotNil(t, handler.reloadChan)
	assert.NotNil(t, handler.Current())
}

func TestSignalHandler_StartStop(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	err := handler.Start()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	handler.Stop()

	select {
	case <-handler.ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("context not cancelled after Stop()")
	}
}

func TestSignalHandler_Debouncing(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})
	handler.debounceWindow = 100 * time.Millisecond

	assert.False(t, handler.shouldDebounce())

	handler.updateLastReloadTime()
	assert.True(t, handler.shouldDebounce())

	time.Sleep(150 * time.Millisecond)
	assert.False(t, handler.shouldDebounce())
}

func TestSignalHandler_GetLastReloadTime(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	lastTime := handler.getLastReloadTime()
	assert.True(t, lastTime.IsZero())

	handler.updateLastReloadTime()

	lastTime = handler.getLastReloadTime()
	assert.False(t, lastTime.IsZero())
	assert.WithinDuration(t, time.Now(), lastTime, 1*time.Second)
}

func TestSignalHandler_ReloadConfigFromDisk_FileNotFound(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	viper.SetConfigFile("/non/existent/path/config.yml")

	_, err := handler.reloadConfigFromDisk()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestSignalHandler_ReloadConfigFromDisk_EmptyPath(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	viper.Reset()

	_, err := handler.reloadConfigFromDisk()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file path not set")
}

func TestSignalHandler_HandleReloadError(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	startTime := time.Now()
	testErr := assert.AnError

	handler.handleReloadError("test error", testErr, startTime)
}

func TestSignalHandler_GetMetrics(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	metrics := handler.GetMetrics()

	assert.NotNil(t, metrics)
	assert.Equal(t, handler.metrics, metrics)
}

func TestSignalHandler_SignalListenerGoroutine(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	err := handler.Start()
	require.NoError(t, err)

	handler.sigChan <- syscall.SIGHUP

	time.Sleep(100 * time.Millisecond)

	handler.Stop()
}

func TestSignalHandler_ReloadWorkerGoroutine(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	err := handler.Start()
	require.NoError(t, err)

	handler.reloadChan <- struct{}{}

	time.Sleep(100 * time.Millisecond)

	handler.Stop()
}

func TestSignalHandler_ContextCancellation(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	select {
	case <-handler.ctx.Done():
		t.Fatal("context cancelled prematurely")
	default:
	}

	handler.cancel()

	select {
	case <-handler.ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("context not cancelled after cancel()")
	}
}

func TestSignalHandler_DebounceWindow(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	assert.Equal(t, 1*time.Second, handler.debounceWindow)

	handler.debounceWindow = 500 * time.Millisecond
	assert.Equal(t, 500*time.Millisecond, handler.debounceWindow)
}

func TestSignalHandler_MultipleStarts(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	err := handler.Start()
	require.NoError(t, err)

	err = handler.Start()
	require.NoError(t, err)

	handler.Stop()
}

func TestSignalHandler_StopWithoutStart(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	handler.Stop()
}

func TestSignalHandler_ApplierIntegration(t *testing.T) {
	applier := &mockConfigApplier{}
	handler := newTestSignalHandler(applier, &config.Config{})

	assert.NotNil(t, handler.applier)
	assert.Equal(t, applier, handler.applier)
}

func TestSignalHandler_GracefulStopDuringReload(t *testing.T) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	err := handler.Start()
	require.NoError(t, err)

	handler.reloadChan <- struct{}{}

	handler.Stop()

	select {
	case <-handler.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop gracefully")
	}
}

func TestSignalHandler_ExecuteReload_AppliesValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yml"
	contents := "redis:\n  addr: localhost:6379\nsession:\n  ttl: 60s\naudit:\n  retry_attempts: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	viper.Reset()
	viper.SetConfigFile(path)

	applier := &mockConfigApplier{}
	handler := newTestSignalHandler(applier, &config.Config{})

	handler.executeReload()

	assert.NotNil(t, applier.applied)
}

// Benchmark tests

func BenchmarkSignalHandler_Debouncing(b *testing.B) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})
	handler.updateLastReloadTime()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = handler.shouldDebounce()
	}
}

func BenchmarkSignalHandler_UpdateLastReloadTime(b *testing.B) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.updateLastReloadTime()
	}
}

func BenchmarkSignalMetrics_RecordReloadAttempt(b *testing.B) {
	metrics := &mockSignalPrometheusMetrics{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.RecordReloadAttempt("sighup", "success")
	}
}

func BenchmarkSignalHandler_GetLastReloadTime(b *testing.B) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})
	handler.updateLastReloadTime()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = handler.getLastReloadTime()
	}
}

func BenchmarkSignalHandler_StartStop(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})
		_ = handler.Start()
		handler.Stop()
	}
}

func BenchmarkSignalHandler_ContextCheck(b *testing.B) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		select {
		case <-handler.ctx.Done():
		default:
		}
	}
}

func BenchmarkSignalHandler_GetMetrics(b *testing.B) {
	handler := newTestSignalHandler(&mockConfigApplier{}, &config.Config{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = handler.GetMetrics()
	}
}

func BenchmarkMockMetrics_AllOperations(b *testing.B) {
	metrics := &mockSignalPrometheusMetrics{}
	now := float64(time.Now().Unix())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.RecordReloadAttempt("sighup", "success")
		metrics.RecordValidationFailure("sighup")
		metrics.RecordReloadDuration("sighup", 0.123)
		metrics.RecordSuccessTimestamp("sighup", now)
		metrics.RecordFailureTimestamp("sighup", now)
	}
}
