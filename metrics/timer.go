package metrics

import "time"

// Timer measures one operation and emits it as a duration record.
// Typical use: defer e.StartTimer("db_query", Fields{"table": "users"}).ObserveDuration()
type Timer struct {
	e      *Emitter
	name   string
	fields Fields
	start  time.Time
}

// StartTimer starts a Timer for metricName.
func (e *Emitter) StartTimer(metricName string, fields Fields) *Timer {
	return &Timer{e: e, name: metricName, fields: fields, start: time.Now()}
}

// ObserveDuration emits the time elapsed since StartTimer and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.e.RecordElapsed(t.name, d, t.fields)
	return d
}
