package query

import "time"

// RowMode selects how a completed Result's rows are meant to be
// consumed: positionally (array) or by column name (object), per spec
// §3's Query data model. The engine always populates Row.Values
// positionally; RowMode only affects which accessor a caller is expected
// to reach for (Values vs Map/Get) — it does not change what gets stored.
type RowMode int

const (
	RowModeArray RowMode = iota
	RowModeObject
)

// Query represents one caller request, per spec §3. Zero value is a
// simple, unparameterized, text-format query — set fields to opt into
// prepared statements, binary results, or a custom row callback.
type Query struct {
	// Text is the SQL statement. Required.
	Text string

	// Values holds the parameters for $1, $2, ... placeholders. A
	// non-empty Values, or a non-empty Name, forces the extended query
	// protocol (spec §4.4).
	Values []any

	// Name, if set, is a prepared-statement name. The first Query with a
	// given Name on a session sends Parse; later Queries with the same
	// Name (on the same session) skip straight to Bind, since
	// Session.HasParsedStatement reports it already known.
	Name string

	// Portal names the server-side cursor Bind creates. Most callers
	// leave this empty (the unnamed portal); a non-empty Portal is for
	// cursor-style chunked fetches via RowLimit.
	Portal string

	// RowLimit bounds how many rows a single Execute may return before
	// the server replies PortalSuspended instead of CommandComplete.
	// Zero means "no limit" — fetch the entire result in one response.
	RowLimit uint32

	// Binary requests binary-format results. BinarySet distinguishes an
	// explicit false from "unset" so the session's BinaryDefault can
	// apply per spec §4.4's binary-inheritance rule; callers normally
	// don't set BinarySet directly — see WithBinary.
	Binary    bool
	BinarySet bool

	RowMode RowMode

	// Timeout overrides the session's default query_timeout for this
	// query alone. Zero means "use the session default".
	Timeout time.Duration

	// OnRow, if set, is invoked synchronously for each row as it
	// streams in, and the row is not also accumulated into the
	// returned Result.Rows — this is the "stream of rows" half of
	// spec §6's Session.query(...) → Result | stream of rows surface.
	OnRow func(Row)

	// ParameterOIDs optionally pins the server-side types Parse should
	// assume for Values, in the same positions. Leaving it nil lets the
	// server infer types from context, which is sufficient for the vast
	// majority of queries.
	ParameterOIDs []uint32
}

// WithBinary returns a copy of q with Binary explicitly set, overriding
// session inheritance.
func (q Query) WithBinary(binary bool) Query {
	q.Binary = binary
	q.BinarySet = true
	return q
}

// usesExtendedProtocol reports whether q must go through Parse/Bind/
// Describe/Execute/Sync rather than a single simple Query message, per
// spec §4.4: "A query with no parameters and no name may use simple
// Query. Any query with parameters or a prepared-statement name uses
// extended protocol."
func (q *Query) usesExtendedProtocol() bool {
	return len(q.Values) > 0 || q.Name != ""
}
