package query

import "sync"

// Decoder converts one column's raw wire bytes into a Go value, given the
// column's type OID and format code. data is nil for SQL NULL; a Decoder
// is never called in that case (the engine substitutes a bare nil
// without consulting the registry).
type Decoder func(oid uint32, format int16, data []byte) (any, error)

type typeKey struct {
	oid    uint32
	format int16
}

// TypeRegistry is a per-session (or global) map from (oid, format) to
// Decoder, per spec §9's "Type decoder registry" design note: resolution
// checks the session map first, falls back to the global map, and
// finally to raw bytes (binary) or string (text) if neither has an
// entry. This core does not ship OID-specific decoders itself — spec §1
// explicitly treats "the type OID→value decoder library" as an external
// collaborator — only the registration/dispatch mechanism.
type TypeRegistry struct {
	mu       sync.RWMutex
	decoders map[typeKey]Decoder
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{decoders: make(map[typeKey]Decoder)}
}

// SetTypeParser registers (or replaces) the decoder for one (oid, format)
// pair.
func (r *TypeRegistry) SetTypeParser(oid uint32, format int16, fn Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[typeKey{oid, format}] = fn
}

// GetTypeParser returns the decoder registered for (oid, format), if any.
func (r *TypeRegistry) GetTypeParser(oid uint32, format int16) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.decoders[typeKey{oid, format}]
	return fn, ok
}

// globalTypeRegistry backs the package-level SetGlobalTypeParser, the
// layer every session-level TypeRegistry falls back to on miss.
var globalTypeRegistry = NewTypeRegistry()

// SetGlobalTypeParser registers a decoder visible to every Engine that
// doesn't shadow it with its own session-level registration.
func SetGlobalTypeParser(oid uint32, format int16, fn Decoder) {
	globalTypeRegistry.SetTypeParser(oid, format, fn)
}

// GetGlobalTypeParser returns the globally registered decoder for
// (oid, format), if any.
func GetGlobalTypeParser(oid uint32, format int16) (Decoder, bool) {
	return globalTypeRegistry.GetTypeParser(oid, format)
}

// decodeColumn resolves one column's bytes through session, then the
// global registry, then the spec §9 fallback: raw bytes for binary
// format, the plain string for text format.
func decodeColumn(session *TypeRegistry, oid uint32, format int16, data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	if session != nil {
		if fn, ok := session.GetTypeParser(oid, format); ok {
			return fn(oid, format, data)
		}
	}
	if fn, ok := globalTypeRegistry.GetTypeParser(oid, format); ok {
		return fn(oid, format, data)
	}
	if format == 1 {
		return append([]byte(nil), data...), nil
	}
	return string(data), nil
}
