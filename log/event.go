package log

import (
	"fmt"
	"sync"
)

// LogEvent is one pending log line. A nil *LogEvent is returned for filtered
// levels and every method on it is a no-op, so call chains need no nil checks.
type LogEvent struct {
	level  Level
	logger *Logger
	err    error
}

var _eventPool = sync.Pool{
	New: func() any {
		return &LogEvent{}
	},
}

func newEvent(logger *Logger, level Level) *LogEvent {
	e := _eventPool.Get().(*LogEvent)
	e.level = level
	e.logger = logger
	e.err = nil
	return e
}

// Err attaches an error, rendered as ": <err>" after the message.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil {
		return nil
	}
	e.err = err
	return e
}

// Msg writes the line and releases the event. The event must not be used afterwards.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	if e.err != nil {
		if msg == "" {
			msg = e.err.Error()
		} else {
			msg = msg + ": " + e.err.Error()
		}
	}
	e.logger.ch.Emit(e.level, msg)

	e.logger = nil
	e.err = nil
	_eventPool.Put(e)
}

// Msgf formats the message with fmt.Sprintf and writes the line.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}
