package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	Name string `codec:"name"`
	Age  int    `codec:"age"`
}

type greeting struct {
	Message string
}

func init() {
	Register[person]("codec.person")
}

func TestEncodeDecodeRoundTripPrimitive(t *testing.T) {
	doc, err := Encode(42)
	require.NoError(t, err)

	v, err := Decode(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestEncodeDecodeRoundTripRegisteredStruct(t *testing.T) {
	p := person{Name: "ada", Age: 30}

	doc, err := Encode(p)
	require.NoError(t, err)

	m, ok := doc.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "codec.person", m["__type"])

	decoded, err := DecodeAs[person](doc)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestEncodeDecodeUnregisteredStructByFieldName(t *testing.T) {
	g := greeting{Message: "hi"}

	doc, err := Encode(g)
	require.NoError(t, err)

	decoded, err := DecodeAs[greeting](doc)
	require.NoError(t, err)
	assert.Equal(t, g, decoded)
}

func TestEncodeDecodeSliceOfRegisteredStructs(t *testing.T) {
	people := []person{{Name: "a", Age: 1}, {Name: "b", Age: 2}}

	doc, err := Encode(people)
	require.NoError(t, err)

	decoded, err := DecodeAs[[]person](doc)
	require.NoError(t, err)
	assert.Equal(t, people, decoded)
}

func TestEncodeDecodeBytes(t *testing.T) {
	data := []byte("hello world")

	doc, err := Encode(data)
	require.NoError(t, err)

	decoded, err := DecodeAs[[]byte](doc)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeDynamicResolvesRegisteredType(t *testing.T) {
	p := person{Name: "grace", Age: 40}

	doc, err := Encode(p)
	require.NoError(t, err)

	v, err := Decode(doc, nil)
	require.NoError(t, err)
	decoded, ok := v.(person)
	require.True(t, ok)
	assert.Equal(t, p, decoded)
}

type customError struct {
	msg string
}

func (e *customError) Error() string { return e.msg }
func (e *customError) Args() []any   { return []any{e.msg} }

func (e *customError) FromFields(fields map[string]any) error {
	if args, ok := fields["args"].([]any); ok && len(args) > 0 {
		if s, ok := args[0].(string); ok {
			e.msg = s
		}
	}
	return nil
}

func init() {
	RegisterError[*customError]("codec.customError")
}

func TestEncodeDecodeArgsError(t *testing.T) {
	var err error = &customError{msg: "boom"}

	doc, encErr := Encode(err)
	require.NoError(t, encErr)

	v, decErr := Decode(doc, nil)
	require.NoError(t, decErr)
	decoded, ok := v.(error)
	require.True(t, ok)
	assert.Equal(t, "boom", decoded.Error())
	var unwrapped *customError
	require.True(t, errors.As(decoded, &unwrapped))
}

func TestSet(t *testing.T) {
	s := NewSet[int]()
	s.Add(1)
	s.Add(2)
	s.Add(1)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(1))
	assert.False(t, s.Has(3))

	s.Remove(1)
	assert.False(t, s.Has(1))
}

func TestTuple2(t *testing.T) {
	tup := Tuple2[string, int]{First: "x", Second: 1}
	assert.Equal(t, "x", tup.First)
	assert.Equal(t, 1, tup.Second)
}

func TestChannelOfAndNames(t *testing.T) {
	ch := ChannelOf[person]()
	assert.Equal(t, Module+".codec.person", ch)
}

func TestEncodeDecodeName(t *testing.T) {
	name := "a.b:c*d/e"
	encoded := EncodeName(name)
	assert.NotContains(t, encoded, ".")
	assert.NotContains(t, encoded, ":")
	assert.NotContains(t, encoded, "*")
	assert.NotContains(t, encoded, "/")

	decoded := DecodeName(encoded)
	assert.Equal(t, name, decoded)
}

func TestValidateTopicNameRejectsEmpty(t *testing.T) {
	err := ValidateTopicName("")
	assert.Error(t, err)
}

func TestValidateTopicNameAcceptsQualifiedName(t *testing.T) {
	err := ValidateTopicName("eventbus.codec.person")
	assert.NoError(t, err)
}
