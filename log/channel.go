package log

import (
	"bytes"
	"sync"
	"sync/atomic"
)

const (
	// MetricChannel is the name of the channel carrying structured metric records.
	MetricChannel = "metric"
	// LogChannel is the name of the channel carrying leveled free-text messages.
	LogChannel = "log"

	MetricPrefix = "METRIC"
	LogPrefix    = "LOG"
)

// Formatter renders one record into buf, including the trailing newline.
type Formatter func(buf *bytes.Buffer, level Level, msg string)

// PrefixFormatter renders "<prefix>\t<msg>\n". The message is written verbatim,
// it is expected to be a single-line payload such as encoded JSON.
func PrefixFormatter(prefix string) Formatter {
	return func(buf *bytes.Buffer, _ Level, msg string) {
		buf.WriteString(prefix)
		buf.WriteByte('\t')
		buf.WriteString(msg)
		buf.WriteByte('\n')
	}
}

// LeveledFormatter renders "<prefix>\t<LEVEL>\t<msg>\n".
// Line breaks inside msg are escaped so each record stays on one physical line.
func LeveledFormatter(prefix string) Formatter {
	return func(buf *bytes.Buffer, level Level, msg string) {
		buf.WriteString(prefix)
		buf.WriteByte('\t')
		buf.WriteString(level.String())
		buf.WriteByte('\t')
		writeEscaped(buf, msg)
		buf.WriteByte('\n')
	}
}

func writeEscaped(buf *bytes.Buffer, msg string) {
	for i := 0; i < len(msg); i++ {
		switch c := msg[i]; c {
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(c)
		}
	}
}

var _bufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

// Channel is a named, isolated line sink. Records written to a channel
// reach only its own appenders.
type Channel struct {
	name      string
	minLevel  atomic.Uint32
	mu        sync.RWMutex
	format    Formatter
	appenders []LogAppender
}

func newChannel(name string) *Channel {
	return &Channel{name: name, format: PrefixFormatter(name)}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Level returns the minimum level the channel emits.
func (c *Channel) Level() Level {
	return Level(c.minLevel.Load())
}

// SetLevel changes the minimum level. Safe for concurrent use with Emit.
func (c *Channel) SetLevel(level Level) {
	c.minLevel.Store(uint32(level))
}

// Enabled reports whether a record at level would be written.
func (c *Channel) Enabled(level Level) bool {
	return c.Level() <= level
}

// Appenders returns a copy of the attached appenders.
func (c *Channel) Appenders() []LogAppender {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogAppender, len(c.appenders))
	copy(out, c.appenders)
	return out
}

// reset replaces formatter and appenders. Previously attached appenders are dropped.
func (c *Channel) reset(format Formatter, appenders []LogAppender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	c.appenders = append(c.appenders[:0:0], appenders...)
}

// Emit formats a record and writes it to every appender, one Write per appender.
func (c *Channel) Emit(level Level, msg string) {
	if !c.Enabled(level) {
		return
	}

	buf := _bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer _bufPool.Put(buf)

	c.mu.RLock()
	defer c.mu.RUnlock()

	c.format(buf, level, msg)
	for _, appender := range c.appenders {
		// Sink failures are environmental and not reported back to callers.
		_, _ = appender.Write(buf.Bytes())
	}
}

// Refresh flushes every appender of the channel.
func (c *Channel) Refresh() {
	for _, appender := range c.Appenders() {
		appender.Refresh()
	}
}

// Registry holds named channels. Setting a channel up again replaces its
// appenders instead of adding to them, so repeated setup never duplicates output.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

// NewRegistry creates an empty registry. Tests use private registries to stay isolated
// from the process-wide one.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Setup gets or creates the named channel and configures it.
func (r *Registry) Setup(name string, format Formatter, level Level, appenders ...LogAppender) *Channel {
	r.mu.Lock()
	ch, ok := r.channels[name]
	if !ok {
		ch = newChannel(name)
		r.channels[name] = ch
	}
	r.mu.Unlock()

	if format == nil {
		format = PrefixFormatter(name)
	}
	ch.reset(format, appenders)
	ch.SetLevel(level)
	return ch
}

// Get returns a previously set up channel.
func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	return ch, ok
}

var _defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return _defaultRegistry
}
