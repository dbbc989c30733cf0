package jsbridge

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperName string

func (n upperName) MarshalValue() (Value, error) {
	return String(strings.ToUpper(string(n))), nil
}

type csvList struct {
	items []string
}

func (l *csvList) UnmarshalValue(v Value) error {
	s, ok := AsString(v)
	if !ok {
		return mismatch("String", v)
	}
	l.items = strings.Split(s, ",")
	return nil
}

type AuditInfo struct {
	ID      int
	Creator string `json:"creator,omitempty"`
}

type record struct {
	AuditInfo
	Title    string            `js:"title"`
	Count    int               `js:"count,omitempty"`
	Tags     []string          `json:"tags"`
	Labels   map[string]string `js:"labels,omitempty"`
	Owner    *upperName        `js:"owner"`
	Raw      Value             `js:"raw"`
	Internal string            `js:"-"`
	Skipped  string            `json:"-"`
	hidden   string
}

// TestMarshal tests the Go to Value mapping.
func TestMarshal(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want Value
	}{
		{"Nil", nil, None()},
		{"Bool", true, Bool(true)},
		{"Int8", int8(-3), Int(-3)},
		{"Uint32", uint32(7), Int(7)},
		{"HugeUint", uint64(math.MaxUint64), Float(float64(uint64(math.MaxUint64)))},
		{"Float32", float32(1.5), Float(1.5)},
		{"String", "hi", String("hi")},
		{"Bytes", []byte("ab"), Buffer("ab")},
		{"NilSlice", []int(nil), None()},
		{"Slice", []int{1, 2}, Sequence{Int(1), Int(2)}},
		{"Array", [2]bool{true, false}, Sequence{Bool(true), Bool(false)}},
		{"MapSorted", map[string]int{"b": 2, "a": 1}, Mapping{{Key: "a", Value: Int(1)}, {Key: "b", Value: Int(2)}}},
		{"IntKeys", map[int]string{2: "two", 1: "one"}, Mapping{{Key: "1", Value: String("one")}, {Key: "2", Value: String("two")}}},
		{"NilPointer", (*int)(nil), None()},
		{"Value", Some(Int(1)), Some(Int(1))},
		{"Marshaler", upperName("ada"), String("ADA")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Marshal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Marshal(make(chan int))
	assert.EqualError(t, err, "unsupported type: chan int")

	_, err = Marshal(map[bool]int{true: 1})
	assert.EqualError(t, err, "unsupported map key type: bool")

	_, err = Marshal([]interface{}{1, func() {}})
	assert.EqualError(t, err, "index 1: unsupported type: func()")
}

func TestMarshalStruct(t *testing.T) {
	owner := upperName("grace")
	got, err := Marshal(record{
		AuditInfo: AuditInfo{ID: 9},
		Title:     "notes",
		Tags:      []string{"x"},
		Owner:     &owner,
		Raw:       Bool(false),
		Internal:  "no",
		Skipped:   "no",
		hidden:    "no",
	})
	require.NoError(t, err)

	m := got.(Mapping)
	assert.Equal(t, []string{"ID", "title", "tags", "owner", "raw"}, m.Keys())

	v, _ := m.Get("owner")
	assert.Equal(t, String("GRACE"), v)
	v, _ = m.Get("tags")
	assert.Equal(t, Sequence{String("x")}, v)
}

// TestUnmarshal tests the Value to Go mapping.
func TestUnmarshal(t *testing.T) {
	t.Run("Target", func(t *testing.T) {
		var n int
		assert.Error(t, Unmarshal(Int(1), n))
		assert.Error(t, Unmarshal(Int(1), nil))
	})

	t.Run("Scalars", func(t *testing.T) {
		var b bool
		require.NoError(t, Unmarshal(Bool(true), &b))
		assert.True(t, b)

		var u uint16
		require.NoError(t, Unmarshal(Float(12), &u))
		assert.EqualValues(t, 12, u)

		var f float32
		require.NoError(t, Unmarshal(Int(3), &f))
		assert.EqualValues(t, 3, f)

		var s string
		require.NoError(t, Unmarshal(NewUTF16String("héllo"), &s))
		assert.Equal(t, "héllo", s)

		var wrapped int
		require.NoError(t, Unmarshal(Either{Index: 1, Value: Some(Int(4))}, &wrapped))
		assert.Equal(t, 4, wrapped)
	})

	t.Run("Errors", func(t *testing.T) {
		var i8 int8
		assert.EqualError(t, Unmarshal(Int(300), &i8), "value 300 overflows int8")

		var u uint
		assert.EqualError(t, Unmarshal(Int(-1), &u), "value -1 overflows uint")

		var s string
		assert.EqualError(t, Unmarshal(Bool(true), &s), "Expect value to be String, but received Boolean")

		var list []int
		assert.EqualError(t, Unmarshal(Sequence{Int(1), String("x")}, &list),
			"index 1: Expect value to be Number, but received String")
	})

	t.Run("Nothing", func(t *testing.T) {
		p := new(int)
		require.NoError(t, Unmarshal(None(), &p))
		assert.Nil(t, p)

		n := 5
		require.NoError(t, Unmarshal(Undefined{}, &n))
		assert.Zero(t, n)
	})

	t.Run("Interface", func(t *testing.T) {
		var out interface{}
		require.NoError(t, Unmarshal(Mapping{
			{Key: "list", Value: Sequence{Int(1), Float(1.5), String("s"), None()}},
			{Key: "buf", Value: Buffer("hi")},
		}, &out))
		assert.Equal(t, map[string]interface{}{
			"list": []interface{}{int64(1), 1.5, "s", nil},
			"buf":  []byte("hi"),
		}, out)
	})

	t.Run("ValueField", func(t *testing.T) {
		var v Value
		require.NoError(t, Unmarshal(Some(String("kept")), &v))
		assert.Equal(t, Some(String("kept")), v)
	})

	t.Run("Unmarshaler", func(t *testing.T) {
		var l csvList
		require.NoError(t, Unmarshal(String("a,b"), &l))
		assert.Equal(t, []string{"a", "b"}, l.items)
	})

	t.Run("Object", func(t *testing.T) {
		native := &AuditInfo{ID: 3}

		var p *AuditInfo
		require.NoError(t, Unmarshal(Object{Native: native}, &p))
		assert.Same(t, native, p)

		var byValue AuditInfo
		require.NoError(t, Unmarshal(Object{Native: native}, &byValue))
		assert.Equal(t, 3, byValue.ID)
	})

	t.Run("Struct", func(t *testing.T) {
		var r record
		require.NoError(t, Unmarshal(Mapping{
			{Key: "ID", Value: Int(2)},
			{Key: "creator", Value: String("ops")},
			{Key: "title", Value: String("t")},
			{Key: "tags", Value: Sequence{String("a")}},
			{Key: "labels", Value: Mapping{{Key: "env", Value: String("prod")}}},
			{Key: "raw", Value: Int(8)},
			{Key: "Internal", Value: String("ignored")},
		}, &r))

		assert.Equal(t, 2, r.ID)
		assert.Equal(t, "ops", r.Creator)
		assert.Equal(t, "t", r.Title)
		assert.Equal(t, []string{"a"}, r.Tags)
		assert.Equal(t, map[string]string{"env": "prod"}, r.Labels)
		assert.Equal(t, Int(8), r.Raw)
		assert.Empty(t, r.Internal)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	in := AuditInfo{ID: 4, Creator: "me"}
	v, err := Marshal(in)
	require.NoError(t, err)

	var out AuditInfo
	require.NoError(t, Unmarshal(v, &out))
	assert.Equal(t, in, out)
}
