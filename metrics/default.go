package metrics

import (
	"sync/atomic"
	"time"

	"github.com/lcx/stdmetric/config"
	"github.com/lcx/stdmetric/log"
)

var _defaultEmitter atomic.Pointer[Emitter]

// Default returns the shared Emitter, creating one with default settings on
// first use. Components that can take an *Emitter should have it injected instead.
func Default() *Emitter {
	if e := _defaultEmitter.Load(); e != nil {
		return e
	}
	e := NewEmitter(nil)
	if _defaultEmitter.CompareAndSwap(nil, e) {
		return e
	}
	return _defaultEmitter.Load()
}

// SetDefault replaces the shared Emitter.
func SetDefault(e *Emitter) {
	_defaultEmitter.Store(e)
}

// InitializeWithConfigManager loads the "emitter" configuration from
// configManager and installs a hot-reloading default Emitter.
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	cfg := &EmitterCfg{}
	if err := configManager.LoadConfig(ConfigName, cfg); err != nil {
		return err
	}

	SetDefault(NewEmitterWithConfigManager(cfg, configManager))
	return nil
}

// Initialize installs the default Emitter using the singleton ConfigManager.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

// RecordCount emits a count record on the default Emitter.
func RecordCount(metricName string, count float64, fields Fields) {
	Default().RecordCount(metricName, count, fields)
}

// RecordCountInt emits an exact integer count record on the default Emitter.
func RecordCountInt(metricName string, count int64, fields Fields) {
	Default().RecordCountInt(metricName, count, fields)
}

// RecordGauge emits a gauge record on the default Emitter.
func RecordGauge(metricName string, value float64, fields Fields) {
	Default().RecordGauge(metricName, value, fields)
}

// RecordDuration emits a duration record on the default Emitter.
func RecordDuration(metricName string, durationMs float64, fields Fields) {
	Default().RecordDuration(metricName, durationMs, fields)
}

// RecordElapsed emits a duration record from a time.Duration on the default Emitter.
func RecordElapsed(metricName string, d time.Duration, fields Fields) {
	Default().RecordElapsed(metricName, d, fields)
}

// StartTimer starts a Timer on the default Emitter.
func StartTimer(metricName string, fields Fields) *Timer {
	return Default().StartTimer(metricName, fields)
}

// Flush syncs the destination of the default Emitter.
func Flush() {
	Default().Flush()
}

// Logger returns the log handle of the default Emitter.
func Logger() *log.Logger {
	return Default().Logger()
}
