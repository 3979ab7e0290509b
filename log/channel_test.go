package log

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleAppender_WriteDirect(t *testing.T) {
	var buf bytes.Buffer
	ca := NewWriterAppender(&buf)
	msg := []byte("hello-console-direct\n")

	n, err := ca.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, "hello-console-direct\n", buf.String())

	// bytes.Buffer has no Sync, Refresh must be a no-op
	ca.Refresh()
	assert.Equal(t, "hello-console-direct\n", buf.String())
}

type syncCounter struct {
	bytes.Buffer
	syncs int
}

func (s *syncCounter) Sync() error {
	s.syncs++
	return nil
}

func TestChannel_RefreshSyncsAppenders(t *testing.T) {
	var a, b syncCounter
	ch := NewRegistry().Setup("sink", nil, DebugLevel, NewWriterAppender(&a), NewWriterAppender(&b))

	ch.Refresh()
	assert.Equal(t, 1, a.syncs)
	assert.Equal(t, 1, b.syncs)
}

func TestPrefixFormatter(t *testing.T) {
	var buf bytes.Buffer
	PrefixFormatter(MetricPrefix)(&buf, InfoLevel, `{"a":1}`)
	assert.Equal(t, "METRIC\t{\"a\":1}\n", buf.String())
}

func TestLeveledFormatter_EscapesLineBreaks(t *testing.T) {
	var buf bytes.Buffer
	LeveledFormatter(LogPrefix)(&buf, ErrorLevel, "first\nsecond\r\nthird")
	assert.Equal(t, "LOG\tERROR\tfirst\\nsecond\\r\\nthird\n", buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestChannel_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry()
	ch := reg.Setup(LogChannel, LeveledFormatter(LogPrefix), WarnLevel, NewWriterAppender(&buf))

	ch.Emit(InfoLevel, "dropped")
	ch.Emit(WarnLevel, "kept")
	assert.Equal(t, "LOG\tWARNING\tkept\n", buf.String())

	ch.SetLevel(DebugLevel)
	assert.True(t, ch.Enabled(DebugLevel))
	ch.Emit(DebugLevel, "now kept")
	assert.Equal(t, "LOG\tWARNING\tkept\nLOG\tDEBUG\tnow kept\n", buf.String())
}

func TestRegistry_SetupIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry()

	first := reg.Setup(MetricChannel, PrefixFormatter(MetricPrefix), DebugLevel, NewWriterAppender(&buf))
	second := reg.Setup(MetricChannel, PrefixFormatter(MetricPrefix), DebugLevel, NewWriterAppender(&buf))
	require.Same(t, first, second)
	assert.Len(t, second.Appenders(), 1)

	first.Emit(InfoLevel, "x")
	assert.Equal(t, "METRIC\tx\n", buf.String())

	got, ok := reg.Get(MetricChannel)
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_ChannelsAreIsolated(t *testing.T) {
	var metricBuf, logBuf bytes.Buffer
	reg := NewRegistry()
	metric := reg.Setup(MetricChannel, PrefixFormatter(MetricPrefix), DebugLevel, NewWriterAppender(&metricBuf))
	logCh := reg.Setup(LogChannel, LeveledFormatter(LogPrefix), DebugLevel, NewWriterAppender(&logBuf))

	metric.Emit(InfoLevel, "m")
	logCh.Emit(ErrorLevel, "l")

	assert.Equal(t, "METRIC\tm\n", metricBuf.String())
	assert.Equal(t, "LOG\tERROR\tl\n", logBuf.String())
}

func TestRegistry_NilFormatterUsesName(t *testing.T) {
	var buf bytes.Buffer
	ch := NewRegistry().Setup("audit", nil, DebugLevel, NewWriterAppender(&buf))
	ch.Emit(InfoLevel, "x")
	assert.Equal(t, "audit\tx\n", buf.String())
	assert.Equal(t, "audit", ch.Name())
}

func TestChannel_ConcurrentWritesStayWholeLines(t *testing.T) {
	const (
		goroutines   = 10
		perGoroutine = 200
	)

	var buf bytes.Buffer
	ch := NewRegistry().Setup(MetricChannel, PrefixFormatter(MetricPrefix), DebugLevel, NewWriterAppender(&buf))

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				ch.Emit(InfoLevel, fmt.Sprintf(`{"g":%d,"i":%d}`, id, i))
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, goroutines*perGoroutine)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "METRIC\t{\"g\":"), line)
		assert.True(t, strings.HasSuffix(line, "}"), line)
	}
}
