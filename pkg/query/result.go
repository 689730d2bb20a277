package query

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"
)

// FieldDescriptor is per-column metadata preceding data rows, per spec
// §3's Result data model. It is populated from pgproto3.FieldDescription
// with no field dropped; the one rename is TableAttributeNumber, which
// appears here as ColumnID.
type FieldDescriptor struct {
	Name         string
	TableOID     uint32
	ColumnID     uint16
	DataTypeOID  uint32
	DataTypeSize int16
	TypeModifier int32
	Format       int16 // 0 = text, 1 = binary
}

func fieldsFromDescription(fds []pgproto3.FieldDescription) []FieldDescriptor {
	out := make([]FieldDescriptor, len(fds))
	for i, f := range fds {
		out[i] = FieldDescriptor{
			Name:         string(f.Name),
			TableOID:     f.TableOID,
			ColumnID:     f.TableAttributeNumber,
			DataTypeOID:  f.DataTypeOID,
			DataTypeSize: f.DataTypeSize,
			TypeModifier: f.TypeModifier,
			Format:       f.Format,
		}
	}
	return out
}

// Row is one decoded DataRow, bound through the active type-decoder
// registry (spec §4.4). Values are positional, matching Result.Fields;
// Map and Get exist for RowModeObject-style consumers without forcing
// every caller to pay for a map allocation per row.
type Row struct {
	fields []FieldDescriptor
	Values []any
}

// Get returns the value of the named column, or (nil, false) if no such
// column exists in this row's result.
func (r Row) Get(name string) (any, bool) {
	for i, f := range r.fields {
		if f.Name == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map renders the row as a column-name-keyed map, for RowModeObject
// consumers.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Values))
	for i, f := range r.fields {
		if i < len(r.Values) {
			m[f.Name] = r.Values[i]
		}
	}
	return m
}

// CommandTag is the parsed form of a CommandComplete tag string
// ("INSERT 0 1", "SELECT 3", "DELETE 1"), per SPEC_FULL.md §6: every
// driver in the retrieved pack (pgx, lib/pq) exposes this same
// {Command, RowsAffected} shape to callers instead of making them parse
// the raw tag themselves.
type CommandTag struct {
	Command      string
	RowsAffected int64
}

func parseCommandTag(tag []byte) CommandTag {
	fields := strings.Fields(string(tag))
	if len(fields) == 0 {
		return CommandTag{}
	}
	ct := CommandTag{Command: fields[0]}
	// "INSERT oid rows" is the one three-token tag; everything else
	// PostgreSQL emits is "COMMAND rows" or a bare "COMMAND".
	if fields[0] == "INSERT" && len(fields) >= 3 {
		if n, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			ct.RowsAffected = n
		}
		return ct
	}
	if len(fields) >= 2 {
		if n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64); err == nil {
			ct.RowsAffected = n
		}
	}
	return ct
}

// Result accumulates one query's response, per spec §3: field metadata,
// decoded rows, a row count, and the parsed command tag.
type Result struct {
	Fields     []FieldDescriptor
	Rows       []Row
	RowCount   int64
	Command    string
	CommandTag CommandTag

	// Suspended reports whether the result ended on PortalSuspended
	// rather than CommandComplete — the caller asked for a bounded chunk
	// of a cursor query and more rows may be available. The engine does
	// not fetch the remaining rows: every Query it runs sends its own
	// Bind, and it has no call that sends only Execute for an existing
	// portal.
	Suspended bool

	// Empty reports whether the result ended on EmptyQueryResponse (the
	// submitted text contained no statement at all).
	Empty bool
}
