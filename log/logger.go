package log

// Logger is the handle for leveled free-text messages on a channel.
//
// Example usage:
//
//	logger.Info().Msg("server started")
//	logger.Error().Err(err).Msg("flush failed")
type Logger struct {
	ch *Channel
}

// NewLogger creates a Logger writing to ch.
func NewLogger(ch *Channel) *Logger {
	return &Logger{ch: ch}
}

// Channel returns the channel the logger writes to.
func (x *Logger) Channel() *Channel {
	return x.ch
}

func (x *Logger) log(level Level) *LogEvent {
	if x == nil || x.ch == nil || !x.ch.Enabled(level) {
		return nil
	}
	return newEvent(x, level)
}

// Debug creates a debug-level event, or nil if debug is filtered.
func (x *Logger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info creates an info-level event.
func (x *Logger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn creates a warning-level event.
func (x *Logger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error creates an error-level event.
func (x *Logger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Critical creates a critical-level event. Unlike a fatal log it does not stop the process.
func (x *Logger) Critical() *LogEvent {
	return x.log(CriticalLevel)
}

var _defaultLogger *Logger

func init() {
	_defaultLogger = NewLogger(_defaultRegistry.Setup(LogChannel, LeveledFormatter(LogPrefix), DebugLevel, NewConsoleAppender()))
}

// Default returns the logger on the process-wide log channel.
func Default() *Logger {
	return _defaultLogger
}

// Debug creates a new debug-level log event using the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info creates a new info-level log event using the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn creates a new warning-level log event using the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error creates a new error-level log event using the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Critical creates a new critical-level log event using the default logger.
func Critical() *LogEvent {
	return _defaultLogger.Critical()
}
