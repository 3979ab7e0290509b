package metrics

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lcx/stdmetric/config"
	"github.com/lcx/stdmetric/log"
)

// Emitter writes metric records as "METRIC\t<json>" lines and exposes a
// Logger for "LOG\t<LEVEL>\t<message>" lines. Both channels share one
// destination stream and never forward to each other.
//
// Record methods never return errors and never panic: a record that cannot
// be encoded is dropped and reported as a single ERROR line on the log channel.
//
// Example usage:
//
//	e := NewEmitter(nil)
//	e.RecordCount("requests", 1, Fields{"region": "us"})
//	e.Logger().Info().Msg("ready")
type Emitter struct {
	metric *log.Channel
	logger *log.Logger
	policy atomic.Value // CollisionPolicy
	stats  emitterStats
}

// NewEmitter sets up the metric and log channels on the configured registry and
// returns an Emitter bound to them. If cfg is nil the defaults are used: stdout,
// DEBUG threshold, reserved keys win, no stats.
//
// Setting up replaces the channels' appenders, so building several Emitters on
// one registry never duplicates lines; the last one decides the destination.
func NewEmitter(cfg *EmitterCfg) *Emitter {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	level, levelErr := log.ParseLevel(cfg.LogLevel)
	registry := cfg.registry()
	appender := log.NewWriterAppender(cfg.writer())

	e := &Emitter{
		metric: registry.Setup(log.MetricChannel, log.PrefixFormatter(log.MetricPrefix), log.DebugLevel, appender),
		logger: log.NewLogger(registry.Setup(log.LogChannel, log.LeveledFormatter(log.LogPrefix), level, appender)),
		stats:  newStats(cfg.registerer()),
	}
	e.policy.Store(cfg.policy())

	if levelErr != nil {
		e.logger.Warn().Err(levelErr).Msg("emitter: falling back to DEBUG")
	}
	if !cfg.CollisionPolicy.valid() {
		e.logger.Warn().Msgf("emitter: unknown collision policy %q, using %s", cfg.CollisionPolicy, CollisionReservedWins)
	}
	return e
}

// NewEmitterWithConfigManager creates an Emitter that follows hot-reloads of the
// "emitter" configuration. When cfg is nil the configuration already loaded in
// configManager is used.
func NewEmitterWithConfigManager(cfg *EmitterCfg, configManager config.ConfigManager) *Emitter {
	if cfg == nil && configManager != nil {
		if loaded, err := configManager.GetConfig(ConfigName); err == nil {
			cfg, _ = loaded.(*EmitterCfg)
		}
	}

	e := NewEmitter(cfg)
	if configManager != nil {
		configManager.AddChangeListener(e)
	}
	return e
}

// OnConfigChanged implements config.ConfigChangeListener. Level and collision
// policy are applied; destination changes need a new Emitter.
func (e *Emitter) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != ConfigName {
		return nil
	}
	cfg, ok := newConfig.(*EmitterCfg)
	if !ok {
		return nil
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	e.logger.Channel().SetLevel(level)
	e.policy.Store(cfg.policy())
	return nil
}

// Logger returns the handle for leveled free-text messages.
func (e *Emitter) Logger() *log.Logger {
	return e.logger
}

// Flush syncs the destination of both channels. Call it before exit when the
// destination is a file.
func (e *Emitter) Flush() {
	e.metric.Refresh()
	e.logger.Channel().Refresh()
}

// Policy returns the collision policy in effect.
func (e *Emitter) Policy() CollisionPolicy {
	return e.policy.Load().(CollisionPolicy)
}

// RecordCount emits a count record: {"metric_type":"count","metric_name":..,"count":..}.
// Counts above 2^53 lose precision; use RecordCountInt for those.
func (e *Emitter) RecordCount(metricName string, count float64, fields Fields) {
	e.send(&Record{Type: TypeCount, Name: metricName, Value: count, Fields: fields})
}

// RecordCountInt emits a count record carrying count exactly.
func (e *Emitter) RecordCountInt(metricName string, count int64, fields Fields) {
	e.send(&Record{Type: TypeCount, Name: metricName, Value: float64(count), Int: count, Exact: true, Fields: fields})
}

// RecordGauge emits a gauge record with the measurement under "value".
func (e *Emitter) RecordGauge(metricName string, value float64, fields Fields) {
	e.send(&Record{Type: TypeGauge, Name: metricName, Value: value, Fields: fields})
}

// RecordDuration emits a duration record; durationMs is in milliseconds.
func (e *Emitter) RecordDuration(metricName string, durationMs float64, fields Fields) {
	e.send(&Record{Type: TypeDuration, Name: metricName, Value: durationMs, Fields: fields})
}

// RecordElapsed emits a duration record from a time.Duration.
func (e *Emitter) RecordElapsed(metricName string, d time.Duration, fields Fields) {
	e.RecordDuration(metricName, float64(d)/float64(time.Millisecond), fields)
}

func (e *Emitter) send(r *Record) {
	defer func() {
		if p := recover(); p != nil {
			e.logError(fmt.Sprintf("metric %q: emit panicked: %v\n%s", r.Name, p, debug.Stack()))
		}
	}()

	if e.Policy() == CollisionReject {
		if keys := r.Collisions(); len(keys) > 0 {
			e.stats.dropped(dropCollision)
			e.logError(fmt.Sprintf("metric %q: tags %s collide with reserved keys", r.Name, strings.Join(keys, ", ")))
			return
		}
	}

	payload, err := encodeRecord(r)
	if err != nil {
		e.stats.dropped(dropEncode)
		var ee *EncodeError
		if errors.As(err, &ee) {
			e.logError(fmt.Sprintf("%v\n%s", ee, ee.Stack))
		} else {
			e.logError(err.Error())
		}
		return
	}

	e.metric.Emit(log.InfoLevel, string(payload))
	e.stats.emitted(r.Type)
}

// logError reports a dropped record. A failing log sink must not turn into a
// panic in the caller either.
func (e *Emitter) logError(msg string) {
	defer func() { _ = recover() }()
	e.logger.Error().Msg(msg)
}
