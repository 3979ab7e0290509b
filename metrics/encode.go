package metrics

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime/debug"
	"strconv"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

const maxDepth = 32

var (
	// ErrCycle is returned when a tag value refers back to itself.
	ErrCycle = errors.New("cyclic value")
	// ErrTooDeep is returned when a tag value nests deeper than maxDepth.
	ErrTooDeep = errors.New("value nested too deeply")
)

var jsonAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// EncodeError describes a record that could not be encoded. Stack is captured
// where the failure was detected, or where the panic was raised.
type EncodeError struct {
	Metric string
	Err    error
	Panic  any
	Stack  []byte
}

func (e *EncodeError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("metric %q: encode panicked: %v", e.Metric, e.Panic)
	}
	return fmt.Sprintf("metric %q: encode failed: %v", e.Metric, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// encodeRecord renders r as a compact JSON object: reserved keys first in fixed
// order, then tags sorted by key. Tags colliding with reserved keys are skipped.
// Invalid UTF-8 in names, keys and text values is replaced with U+FFFD.
func encodeRecord(r *Record) (out []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &EncodeError{Metric: r.Name, Panic: p, Stack: debug.Stack()}
		}
	}()

	var value any = sanitizeFloat(r.Value)
	if r.Exact {
		value = r.Int
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, KeyMetricType, string(r.Type), true); err != nil {
		return nil, encodeFailure(r, err)
	}
	if err := writeField(&buf, KeyMetricName, validText(r.Name), false); err != nil {
		return nil, encodeFailure(r, err)
	}
	if err := writeField(&buf, r.Type.ValueKey(), value, false); err != nil {
		return nil, encodeFailure(r, err)
	}

	for _, k := range r.tagKeys() {
		v, err := newSanitizer().sanitize(r.Fields[k], 0)
		if err != nil {
			return nil, encodeFailure(r, fmt.Errorf("field %q: %w", k, err))
		}
		if err := writeField(&buf, k, v, false); err != nil {
			return nil, encodeFailure(r, fmt.Errorf("field %q: %w", k, err))
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeFailure(r *Record, err error) error {
	return &EncodeError{Metric: r.Name, Err: err, Stack: debug.Stack()}
}

func writeField(buf *bytes.Buffer, key string, v any, first bool) error {
	kb, err := jsonAPI.Marshal(validText(key))
	if err != nil {
		return err
	}
	vb, err := jsonAPI.Marshal(v)
	if err != nil {
		return err
	}
	if !first {
		buf.WriteByte(',')
	}
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
	return nil
}

func validText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

// sanitizeFloat keeps finite floats and turns NaN and infinities into text.
func sanitizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

// sanitizer rewrites a value into plain maps, slices and scalars the encoder
// always accepts. Containers are walked by the sanitizer itself so every level
// is covered by the cycle and depth checks; only scalars without structure are
// formatted with fmt. Cycles and excessive nesting are the only errors.
type sanitizer struct {
	// pointers on the current traversal path
	path map[uintptr]struct{}
}

func newSanitizer() *sanitizer {
	return &sanitizer{path: make(map[uintptr]struct{})}
}

func (s *sanitizer) enter(p uintptr) error {
	if _, ok := s.path[p]; ok {
		return ErrCycle
	}
	s.path[p] = struct{}{}
	return nil
}

func (s *sanitizer) leave(p uintptr) {
	delete(s.path, p)
}

func (s *sanitizer) sanitize(v any, depth int) (any, error) {
	if v == nil {
		return nil, nil
	}
	if depth > maxDepth {
		return nil, ErrTooDeep
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil, nil
		}
	}

	switch t := v.(type) {
	case json.Marshaler:
		b, err := t.MarshalJSON()
		if err == nil {
			var compact bytes.Buffer
			if err := json.Compact(&compact, b); err == nil {
				return json.RawMessage(bytes.ToValidUTF8(compact.Bytes(), []byte("\uFFFD"))), nil
			}
		}
		return s.fallback(rv, depth)
	case encoding.TextMarshaler:
		b, err := t.MarshalText()
		if err == nil {
			return validText(string(b)), nil
		}
		return s.fallback(rv, depth)
	case error:
		return validText(t.Error()), nil
	}
	return s.value(rv, depth)
}

// fallback renders a value whose marshal method failed. Byte slices such as
// json.RawMessage keep their text.
func (s *sanitizer) fallback(rv reflect.Value, depth int) (any, error) {
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return validText(string(rv.Bytes())), nil
	}
	if st, ok := rv.Interface().(fmt.Stringer); ok {
		return validText(st.String()), nil
	}
	return s.value(rv, depth)
}

// value converts rv by kind, ignoring marshal methods of rv itself.
func (s *sanitizer) value(rv reflect.Value, depth int) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil

	case reflect.String:
		return validText(rv.String()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil

	case reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return sanitizeFloat(f), nil
		}
		return float32(f), nil

	case reflect.Float64:
		return sanitizeFloat(rv.Float()), nil

	case reflect.Ptr:
		if err := s.enter(rv.Pointer()); err != nil {
			return nil, err
		}
		defer s.leave(rv.Pointer())
		return s.sanitize(rv.Elem().Interface(), depth+1)

	case reflect.Map:
		if err := s.enter(rv.Pointer()); err != nil {
			return nil, err
		}
		defer s.leave(rv.Pointer())
		return s.sanitizeMap(rv, depth)

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			// []byte encodes as base64, same as encoding/json
			return rv.Bytes(), nil
		}
		if rv.Len() > 0 {
			if err := s.enter(rv.Pointer()); err != nil {
				return nil, err
			}
			defer s.leave(rv.Pointer())
		}
		return s.sanitizeList(rv, depth)

	case reflect.Array:
		return s.sanitizeList(rv, depth)

	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		if err := s.sanitizeStruct(rv, depth, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	// complex numbers, channels, functions, unsafe pointers
	return validText(fmt.Sprint(rv.Interface())), nil
}

func (s *sanitizer) sanitizeList(rv reflect.Value, depth int) (any, error) {
	out := make([]any, rv.Len())
	for i := range out {
		ev, err := s.sanitize(rv.Index(i).Interface(), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// sanitizeMap stringifies keys. When distinct keys render to the same string
// only one entry is kept: a string key wins, then the key whose type name and
// then Go syntax representation sort first.
func (s *sanitizer) sanitizeMap(rv reflect.Value, depth int) (any, error) {
	winners := make(map[string]reflect.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		name := mapKey(k)
		if prev, ok := winners[name]; !ok || keyBefore(k, prev) {
			winners[name] = k
		}
	}

	out := make(map[string]any, len(winners))
	for name, k := range winners {
		ev, err := s.sanitize(rv.MapIndex(k).Interface(), depth+1)
		if err != nil {
			return nil, err
		}
		out[name] = ev
	}
	return out, nil
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return validText(k.String())
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		if b, err := tm.MarshalText(); err == nil {
			return validText(string(b))
		}
	}
	return validText(fmt.Sprint(k.Interface()))
}

func keyBefore(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if !a.IsValid() || !b.IsValid() {
		return !a.IsValid() && b.IsValid()
	}
	aStr, bStr := a.Kind() == reflect.String, b.Kind() == reflect.String
	if aStr != bStr {
		return aStr
	}
	if at, bt := a.Type().String(), b.Type().String(); at != bt {
		return at < bt
	}
	return fmt.Sprintf("%#v", a.Interface()) < fmt.Sprintf("%#v", b.Interface())
}

// sanitizeStruct walks exported fields the way encoding/json names them:
// json tag names, "-" skipped, omitempty and omitzero honoured, embedded
// structs flattened with outer fields taking precedence.
func (s *sanitizer) sanitizeStruct(rv reflect.Value, depth int, out map[string]any) error {
	if depth > maxDepth {
		return ErrTooDeep
	}

	t := rv.Type()
	var embedded []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, omitEmpty, omitZero, skip := jsonFieldTag(sf)
		if skip {
			continue
		}
		fv := rv.Field(i)

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				embedded = append(embedded, fv)
				continue
			}
		}
		if !sf.IsExported() || !fv.CanInterface() {
			continue
		}
		if (omitEmpty && isEmptyValue(fv)) || (omitZero && fv.IsZero()) {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		v, err := s.sanitize(fv.Interface(), depth+1)
		if err != nil {
			return err
		}
		out[validText(name)] = v
	}

	for _, fv := range embedded {
		inner := make(map[string]any)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			p := fv.Pointer()
			if err := s.enter(p); err != nil {
				return err
			}
			err := s.sanitizeStruct(fv.Elem(), depth+1, inner)
			s.leave(p)
			if err != nil {
				return err
			}
		} else if err := s.sanitizeStruct(fv, depth+1, inner); err != nil {
			return err
		}
		for k, v := range inner {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return nil
}

func jsonFieldTag(sf reflect.StructField) (name string, omitEmpty, omitZero, skip bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false, false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	for _, opt := range strings.Split(opts, ",") {
		switch opt {
		case "omitempty":
			omitEmpty = true
		case "omitzero":
			omitZero = true
		}
	}
	return name, omitEmpty, omitZero, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}
