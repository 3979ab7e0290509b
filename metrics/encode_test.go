package metrics

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickyMarshaler struct{}

func (panickyMarshaler) MarshalJSON() ([]byte, error) {
	panic("marshal exploded")
}

type brokenMarshaler struct{ ID int }

func (brokenMarshaler) MarshalJSON() ([]byte, error) {
	return []byte("{not json"), nil
}

type failingMarshaler struct{}

func (failingMarshaler) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot marshal")
}

func (failingMarshaler) String() string { return "failing" }

type prettyMarshaler struct{}

func (prettyMarshaler) MarshalJSON() ([]byte, error) {
	return []byte("{\n  \"a\": 1\n}"), nil
}

type withFunc struct {
	Name string
	Fn   func()
}

type node struct {
	Name string
	Next *node
}

func encodeFields(t *testing.T, fields Fields) map[string]any {
	t.Helper()
	b, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: fields})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out), string(b))
	return out
}

func TestEncodeRecord_Exact(t *testing.T) {
	b, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 5})
	require.NoError(t, err)
	assert.Equal(t, `{"metric_type":"count","metric_name":"x","count":5}`, string(b))

	b, err = encodeRecord(&Record{Type: TypeGauge, Name: "cpu", Value: 0.5, Fields: Fields{"region": "us", "host": "a"}})
	require.NoError(t, err)
	assert.Equal(t, `{"metric_type":"gauge","metric_name":"cpu","value":0.5,"host":"a","region":"us"}`, string(b))
}

func TestEncodeRecord_SkipsReservedTags(t *testing.T) {
	b, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{"count": 99, "metric_name": "y"}})
	require.NoError(t, err)
	assert.Equal(t, `{"metric_type":"count","metric_name":"x","count":1}`, string(b))
}

func TestEncodeRecord_NonFiniteValue(t *testing.T) {
	b, err := encodeRecord(&Record{Type: TypeGauge, Name: "ratio", Value: math.NaN()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"metric_type":"gauge","metric_name":"ratio","value":"NaN"}`, string(b))

	b, err = encodeRecord(&Record{Type: TypeGauge, Name: "ratio", Value: math.Inf(-1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"metric_type":"gauge","metric_name":"ratio","value":"-Inf"}`, string(b))
}

func TestEncodeRecord_StringifiesUnusualValues(t *testing.T) {
	ch := make(chan int)
	out := encodeFields(t, Fields{
		"nil":     nil,
		"nilptr":  (*node)(nil),
		"nilmap":  map[string]any(nil),
		"chan":    ch,
		"func":    func() {},
		"complex": complex(1, 2),
		"nan":     math.NaN(),
		"inf32":   float32(math.Inf(1)),
		"err":     errors.New("boom"),
		"failing": failingMarshaler{},
		"broken":  brokenMarshaler{ID: 7},
		"struct":  withFunc{Name: "n"},
		"intkeys": map[int]string{1: "a", 2: "b"},
		"nested":  map[string]any{"list": []any{1, "two", math.Inf(1)}},
		"array":   [2]int{3, 4},
		"bytes":   []byte("hi"),
		"time":    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"dur":     1500 * time.Millisecond,
		"pretty":  prettyMarshaler{},
		"ptr":     &node{Name: "a", Next: &node{Name: "b"}},
		"uintptr": uintptr(42),
		"raw":     json.RawMessage(`{bad`),
	})

	assert.Nil(t, out["nil"])
	assert.Nil(t, out["nilptr"])
	assert.Nil(t, out["nilmap"])
	assert.IsType(t, "", out["chan"])
	assert.IsType(t, "", out["func"])
	assert.Equal(t, "(1+2i)", out["complex"])
	assert.Equal(t, "NaN", out["nan"])
	assert.Equal(t, "+Inf", out["inf32"])
	assert.Equal(t, "boom", out["err"])
	assert.Equal(t, "failing", out["failing"])
	assert.Equal(t, map[string]any{"ID": float64(7)}, out["broken"])
	assert.Equal(t, map[string]any{"Name": "n", "Fn": nil}, out["struct"])
	assert.Equal(t, map[string]any{"1": "a", "2": "b"}, out["intkeys"])
	assert.Equal(t, map[string]any{"list": []any{float64(1), "two", "+Inf"}}, out["nested"])
	assert.Equal(t, []any{float64(3), float64(4)}, out["array"])
	assert.Equal(t, "aGk=", out["bytes"])
	assert.Equal(t, "2024-01-02T03:04:05Z", out["time"])
	assert.Equal(t, float64(1500*time.Millisecond), out["dur"])
	assert.Equal(t, map[string]any{"a": float64(1)}, out["pretty"])
	assert.Equal(t, map[string]any{"Name": "a", "Next": map[string]any{"Name": "b", "Next": nil}}, out["ptr"])
	assert.Equal(t, float64(42), out["uintptr"])
	assert.Equal(t, "{bad", out["raw"])
}

type inner struct {
	Zone string `json:"zone"`
	Rack int
}

type Labels struct {
	Team string `json:"team"`
}

type tagged struct {
	inner
	*Labels
	ID      int            `json:"id"`
	Secret  string         `json:"-"`
	Note    string         `json:"note,omitempty"`
	Zone    string         `json:"zone"`
	Handler chan int       `json:"handler"`
	Extra   map[string]any `json:"extra"`
	hidden  int
}

func TestEncodeRecord_StructFieldsFollowJSONTags(t *testing.T) {
	out := encodeFields(t, Fields{"s": tagged{
		inner:  inner{Zone: "inner", Rack: 4},
		Labels: &Labels{Team: "core"},
		ID:     7,
		Secret: "x",
		Zone:   "outer",
		Extra:  map[string]any{"k": "v"},
		hidden: 1,
	}})

	s, ok := out["s"].(map[string]any)
	require.True(t, ok, "%v", out["s"])
	assert.Equal(t, float64(7), s["id"])
	assert.Equal(t, "outer", s["zone"], "outer fields win over embedded ones")
	assert.Equal(t, float64(4), s["Rack"])
	assert.Equal(t, "core", s["team"])
	assert.Nil(t, s["handler"])
	assert.Equal(t, map[string]any{"k": "v"}, s["extra"])
	assert.NotContains(t, s, "Secret")
	assert.NotContains(t, s, "note")
	assert.NotContains(t, s, "hidden")
}

type holder struct {
	C chan int
	M map[string]any
}

func TestEncodeRecord_CycleBehindUnsupportedStructField(t *testing.T) {
	self := map[string]any{}
	self["self"] = self

	_, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{
		"h": holder{C: make(chan int), M: self},
	}})
	assert.ErrorIs(t, err, ErrCycle)
}

type loopMarshaler map[string]any

func (loopMarshaler) MarshalJSON() ([]byte, error) {
	return nil, errors.New("no")
}

func TestEncodeRecord_FailedMarshalerFallbackDetectsCycle(t *testing.T) {
	m := loopMarshaler{}
	m["self"] = m

	_, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{"m": m}})
	assert.ErrorIs(t, err, ErrCycle)
}

func TestEncodeRecord_CollidingMapKeysAreDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		out := encodeFields(t, Fields{"m": map[any]any{1: "int", "1": "string", int8(2): "int8", 2: "int"}})
		assert.Equal(t, map[string]any{"1": "string", "2": "int"}, out["m"])
	}
}

func TestEncodeRecord_ReplacesInvalidUTF8(t *testing.T) {
	b, err := encodeRecord(&Record{Type: TypeCount, Name: "bad\xffname", Value: 1, Fields: Fields{
		"tag":     "v\xfe",
		"key\xff": 1,
		"nested":  map[string]any{"k\xfe": []any{"x\xff"}},
		"marshal": json.RawMessage(`"ok"`),
	}})
	require.NoError(t, err)
	assert.True(t, utf8.Valid(b), string(b))

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "bad\uFFFDname", out["metric_name"])
	assert.Equal(t, "v\uFFFD", out["tag"])
	assert.Equal(t, float64(1), out["key\uFFFD"])
	assert.Equal(t, map[string]any{"k\uFFFD": []any{"x\uFFFD"}}, out["nested"])
}

func TestEncodeRecord_ExactInteger(t *testing.T) {
	b, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Int: 9007199254740993, Exact: true})
	require.NoError(t, err)
	assert.Equal(t, `{"metric_type":"count","metric_name":"x","count":9007199254740993}`, string(b))
}

func TestEncodeRecord_SharedValueIsNotACycle(t *testing.T) {
	shared := map[string]any{"k": "v"}
	out := encodeFields(t, Fields{"pair": []any{shared, shared}})
	assert.Equal(t, []any{map[string]any{"k": "v"}, map[string]any{"k": "v"}}, out["pair"])
}

func TestEncodeRecord_Cycle(t *testing.T) {
	self := map[string]any{}
	self["self"] = self

	_, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{"loop": self}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)

	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "x", ee.Metric)
	assert.NotEmpty(t, ee.Stack)
	assert.Contains(t, ee.Error(), `field "loop"`)
}

func TestEncodeRecord_StructCycle(t *testing.T) {
	n := &node{Name: "a"}
	n.Next = n

	_, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{"list": n}})
	assert.ErrorIs(t, err, ErrCycle)
}

func TestEncodeRecord_TooDeep(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < maxDepth+2; i++ {
		v = []any{v}
	}

	_, err := encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{"deep": v}})
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestEncodeRecord_PanicIsRecovered(t *testing.T) {
	var (
		b   []byte
		err error
	)
	assert.NotPanics(t, func() {
		b, err = encodeRecord(&Record{Type: TypeCount, Name: "x", Value: 1, Fields: Fields{"bad": panickyMarshaler{}}})
	})
	assert.Nil(t, b)

	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "marshal exploded", ee.Panic)
	assert.Contains(t, ee.Error(), "encode panicked: marshal exploded")
	assert.Contains(t, string(ee.Stack), "panickyMarshaler")
}
