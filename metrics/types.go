package metrics

import "sort"

// MetricType is the shape of a metric record.
type MetricType string

const (
	TypeCount    MetricType = "count"    // Occurrence count
	TypeGauge    MetricType = "gauge"    // Instantaneous value
	TypeDuration MetricType = "duration" // Elapsed time in milliseconds
)

// Reserved record keys. Caller tags never override them.
const (
	KeyMetricType = "metric_type"
	KeyMetricName = "metric_name"
	KeyCount      = "count"
	KeyValue      = "value"
	KeyDuration   = "duration"
)

// ValueKey returns the record key that carries the measurement for this type.
func (t MetricType) ValueKey() string {
	switch t {
	case TypeCount:
		return KeyCount
	case TypeDuration:
		return KeyDuration
	default:
		return KeyValue
	}
}

// IsReserved reports whether key is one of the fixed record keys.
func IsReserved(key string) bool {
	switch key {
	case KeyMetricType, KeyMetricName, KeyCount, KeyValue, KeyDuration:
		return true
	}
	return false
}

// Fields are caller supplied tags merged into a record, such as region,
// endpoint or status code.
type Fields map[string]any

// Record is one metric emission. It is built per call and discarded after the write.
type Record struct {
	Type  MetricType
	Name  string
	Value float64
	// Int replaces Value when Exact is set, for counts beyond float64 precision.
	Int    int64
	Exact  bool
	Fields Fields
}

// Collisions returns the sorted tag keys that clash with reserved keys.
func (r *Record) Collisions() []string {
	var keys []string
	for k := range r.Fields {
		if IsReserved(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// tagKeys returns the non-reserved tag keys in sorted order.
func (r *Record) tagKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if !IsReserved(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
