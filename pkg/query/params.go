package query

import "fmt"

// encodeParams renders each value in values into its wire-ready bytes
// (nil means SQL NULL — pgproto3.Bind treats a nil Parameters element as
// length -1 per spec §4.1) and reports, per parameter, whether it was
// encoded in binary format.
//
// Only raw bytea payloads ([]byte-typed parameters) get binary encoding
// when preferBinary is set; everything else is sent in text format. This
// resolves spec §9's open question on binary-mode parameter encoding for
// non-primitive types in favor of the stated default: text unless a
// caller-registered encoder exists, which this core does not yet expose
// for parameters (only for decoding results, via the type registry).
func encodeParams(values []any, preferBinary bool) (formats []int16, bufs [][]byte, err error) {
	formats = make([]int16, len(values))
	bufs = make([][]byte, len(values))
	for i, v := range values {
		resolved, err := PrepareValue(v)
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		buf, binary, err := encodeOneParam(resolved, preferBinary)
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		bufs[i] = buf
		if binary {
			formats[i] = 1
		}
	}
	return formats, bufs, nil
}

func encodeOneParam(resolved any, preferBinary bool) ([]byte, bool, error) {
	switch r := resolved.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		if preferBinary {
			return r, true, nil
		}
		return []byte(fmt.Sprintf("\\x%x", r)), false, nil
	case arrayLiteral:
		return []byte(string(r)), false, nil
	case string:
		return []byte(r), false, nil
	default:
		return []byte(fmt.Sprintf("%v", r)), false, nil
	}
}
