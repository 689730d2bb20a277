package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/outpostdb/pgwire/pkg/wire"
)

// ToPostgres is implemented by caller-supplied parameter types that know
// how to render themselves, per spec §4.1's "objects... unless they
// expose a toPostgres(prepare) capability" rule. prepare recursively
// prepares a returned value, allowing a toPostgres implementation to
// delegate to another value without re-implementing escaping.
type ToPostgres interface {
	ToPostgres(prepare func(any) (any, error)) (any, error)
}

// arrayLiteral distinguishes a value that is already a fully-formed
// PostgreSQL array literal (produced recursively by prepareArray) from an
// ordinary string that merely looks like one, so arrayElementLiteral
// never double-quotes a nested array.
type arrayLiteral string

// PrepareValue renders v into the text form PostgreSQL expects for a
// query parameter: nil for SQL NULL, a string for anything textual,
// []byte for a raw bytea payload, or, for a slice or array, an unexported
// string type holding the array literal. It is exported because spec §6
// lists it among the core's public free functions.
//
// PrepareValue is idempotent on scalars (spec invariant 5): calling it
// again on its own string/[]byte/nil output returns that same value
// unchanged, since those types hit the first cases in the type switch
// and are returned as-is.
func PrepareValue(v any) (any, error) {
	return prepareValue(v, map[uintptr]bool{})
}

func prepareValue(v any, visited map[uintptr]bool) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return x, nil
	case arrayLiteral:
		return x, nil
	case bool:
		if x {
			return "t", nil
		}
		return "f", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return x.Format("2006-01-02T15:04:05.999999999Z07:00"), nil
	case ToPostgres:
		return prepareToPostgres(x, visited)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		if visitErr := markVisited(visited, rv.Pointer()); visitErr != nil {
			return nil, visitErr
		}
		return prepareValue(rv.Elem().Interface(), visited)
	case reflect.Slice, reflect.Array:
		return prepareArray(rv, visited)
	case reflect.Map:
		if visitErr := markVisited(visited, rv.Pointer()); visitErr != nil {
			return nil, visitErr
		}
		return prepareJSON(v)
	case reflect.Struct:
		return prepareJSON(v)
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func prepareToPostgres(x ToPostgres, visited map[uintptr]bool) (any, error) {
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		if visitErr := markVisited(visited, rv.Pointer()); visitErr != nil {
			return nil, visitErr
		}
	}
	resolved, err := x.ToPostgres(func(inner any) (any, error) {
		return prepareValue(inner, visited)
	})
	if err != nil {
		return nil, err
	}
	return prepareValue(resolved, visited)
}

func markVisited(visited map[uintptr]bool, ptr uintptr) error {
	if ptr == 0 {
		return nil
	}
	if visited[ptr] {
		return &wire.PrepareError{Reason: "circular reference while preparing parameter"}
	}
	visited[ptr] = true
	return nil
}

func prepareJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &wire.PrepareError{Reason: fmt.Sprintf("marshaling parameter as JSON: %v", err)}
	}
	return string(data), nil
}

// prepareArray implements spec §4.1's array literal encoding:
// "{e1,e2,…}", recursive for nested arrays, NULL for nil elements,
// "\x<hex>" for byte-view elements, bare (unquoted) text for numbers and
// booleans, and backslash/quote-escaped quoted text for everything else.
func prepareArray(rv reflect.Value, visited map[uintptr]bool) (any, error) {
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), nil
	}

	n := rv.Len()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		elem, err := arrayElementLiteral(rv.Index(i).Interface(), visited)
		if err != nil {
			return nil, err
		}
		parts[i] = elem
	}
	return arrayLiteral("{" + strings.Join(parts, ",") + "}"), nil
}

// arrayElementLiteral renders one array element. Numbers and booleans are
// left bare (PostgreSQL array syntax never requires quoting them and spec
// §8's boundary example expects "{1,NULL,2}", not quoted digits); strings,
// byte slices rendered as text, and JSON-marshalled values are quoted and
// escaped; nested arrays and bytea elements use their own literal forms.
func arrayElementLiteral(v any, visited map[uintptr]bool) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", x), nil
	case []byte:
		return fmt.Sprintf("\\x%x", x), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "NULL", nil
		}
		if err := markVisited(visited, rv.Pointer()); err != nil {
			return "", err
		}
		return arrayElementLiteral(rv.Elem().Interface(), visited)
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		resolved, err := prepareArray(rv, visited)
		if err != nil {
			return "", err
		}
		return string(resolved.(arrayLiteral)), nil
	}

	resolved, err := prepareValue(v, visited)
	if err != nil {
		return "", err
	}
	switch r := resolved.(type) {
	case nil:
		return "NULL", nil
	case arrayLiteral:
		return string(r), nil
	case []byte:
		return fmt.Sprintf("\\x%x", r), nil
	case string:
		return quoteArrayString(r), nil
	default:
		return quoteArrayString(fmt.Sprintf("%v", r)), nil
	}
}

func quoteArrayString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// EscapeIdentifier quotes s for use as a SQL identifier, per spec §4.1:
// wrap in double quotes, doubling any embedded double quote.
func EscapeIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EscapeLiteral quotes s for use as a SQL string literal, per spec §4.1:
// wrap in single quotes, doubling embedded single quotes and backslashes,
// prefixing with " E" when any backslash appeared so PostgreSQL parses
// the backslash escapes rather than treating them as standard-conforming
// literal text.
func EscapeLiteral(s string) string {
	hasBackslash := strings.Contains(s, `\`)
	escaped := strings.ReplaceAll(s, `'`, `''`)
	escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	if hasBackslash {
		return " E'" + escaped + "'"
	}
	return "'" + escaped + "'"
}
