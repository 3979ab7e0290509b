package log

import (
	"io"
	"testing"
)

func BenchmarkChannel_Emit(b *testing.B) {
	ch := NewRegistry().Setup(MetricChannel, PrefixFormatter(MetricPrefix), DebugLevel, NewWriterAppender(io.Discard))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch.Emit(InfoLevel, `{"metric_type":"count","metric_name":"bench","count":1}`)
	}
}

func BenchmarkLogger_Filtered(b *testing.B) {
	ch := NewRegistry().Setup(LogChannel, LeveledFormatter(LogPrefix), ErrorLevel, NewWriterAppender(io.Discard))
	logger := NewLogger(ch)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug().Msg("benchmark test message")
	}
}

func BenchmarkLogger_Parallel(b *testing.B) {
	ch := NewRegistry().Setup(LogChannel, LeveledFormatter(LogPrefix), DebugLevel, NewWriterAppender(io.Discard))
	logger := NewLogger(ch)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			logger.Info().Msg("benchmark test message")
		}
	})
}
