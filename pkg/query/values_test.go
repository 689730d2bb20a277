package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outpostdb/pgwire/pkg/wire"
)

func TestEscapeIdentifier(t *testing.T) {
	require.Equal(t, `"foo"`, EscapeIdentifier("foo"))
	require.Equal(t, `"fo""o"`, EscapeIdentifier(`fo"o`))
}

// Invariant 4 from spec §8: escapeIdentifier(s) is idempotent on the
// inner content — re-escaping an already-escaped identifier re-doubles
// the quotes.
func TestEscapeIdentifier_Idempotent(t *testing.T) {
	once := EscapeIdentifier(`a"b`)
	twice := EscapeIdentifier(once)
	require.Equal(t, `"a""b"`, once)
	require.Equal(t, `"""a""""b"""`, twice)
}

// Boundary behavior from spec §8: escapeLiteral("a\b'c") -> " E'a\\b''c'".
func TestEscapeLiteral_BoundaryCase(t *testing.T) {
	require.Equal(t, ` E'a\\b''c'`, EscapeLiteral(`a\b'c`))
}

func TestEscapeLiteral_NoBackslash(t *testing.T) {
	require.Equal(t, `'it''s'`, EscapeLiteral(`it's`))
}

// Boundary behavior from spec §8: array of mixed nulls and integers
// [1, null, 2] -> {1,NULL,2}.
func TestPrepareValue_ArrayWithNulls(t *testing.T) {
	resolved, err := PrepareValue([]any{1, nil, 2})
	require.NoError(t, err)
	require.Equal(t, arrayLiteral("{1,NULL,2}"), resolved)
}

func TestPrepareValue_NestedArray(t *testing.T) {
	resolved, err := PrepareValue([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.Equal(t, arrayLiteral("{{1,2},{3,4}}"), resolved)
}

func TestPrepareValue_StringArrayEscaping(t *testing.T) {
	resolved, err := PrepareValue([]string{`a"b`, `c\d`})
	require.NoError(t, err)
	require.Equal(t, arrayLiteral(`{"a\"b","c\\d"}`), resolved)
}

func TestPrepareValue_ByteArrayElement(t *testing.T) {
	resolved, err := PrepareValue([][]byte{{0xde, 0xad}})
	require.NoError(t, err)
	require.Equal(t, arrayLiteral(`{\xdead}`), resolved)
}

// Invariant 5 from spec §8: prepareValue(prepareValue(v)) == prepareValue(v)
// for scalars.
func TestPrepareValue_IdempotentOnScalars(t *testing.T) {
	for _, v := range []any{"hello", []byte("world"), nil} {
		once, err := PrepareValue(v)
		require.NoError(t, err)
		twice, err := PrepareValue(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}

func TestPrepareValue_Bool(t *testing.T) {
	resolved, err := PrepareValue(true)
	require.NoError(t, err)
	require.Equal(t, "t", resolved)

	resolved, err = PrepareValue(false)
	require.NoError(t, err)
	require.Equal(t, "f", resolved)
}

func TestPrepareValue_Null(t *testing.T) {
	resolved, err := PrepareValue(nil)
	require.NoError(t, err)
	require.Nil(t, resolved)
}

type circularToPostgres struct {
	self *circularToPostgres
}

func (c *circularToPostgres) ToPostgres(prepare func(any) (any, error)) (any, error) {
	return prepare(c.self)
}

// Boundary behavior from spec §8: a circular value via toPostgres fails
// with PrepareError.
func TestPrepareValue_CircularToPostgres(t *testing.T) {
	c := &circularToPostgres{}
	c.self = c

	_, err := PrepareValue(c)
	require.Error(t, err)
	var prepErr *wire.PrepareError
	require.ErrorAs(t, err, &prepErr)
}

type jsonPoint struct {
	X, Y int
}

func TestPrepareValue_StructAsJSON(t *testing.T) {
	resolved, err := PrepareValue(jsonPoint{X: 1, Y: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"X":1,"Y":2}`, resolved.(string))
}

func TestParseCommandTag(t *testing.T) {
	require.Equal(t, CommandTag{Command: "SELECT", RowsAffected: 3}, parseCommandTag([]byte("SELECT 3")))
	require.Equal(t, CommandTag{Command: "INSERT", RowsAffected: 1}, parseCommandTag([]byte("INSERT 0 1")))
	require.Equal(t, CommandTag{Command: "DELETE", RowsAffected: 0}, parseCommandTag([]byte("DELETE 0")))
}
