// Package wire implements the PostgreSQL frontend/backend wire protocol
// codec: functions mapping bytes to and from tagged Message variants. It
// opens no connections of its own: Reader and WriteMessage work over any
// io.Reader/io.Writer they are given. See package transport for the byte
// stream and package session for the protocol state machine driven on
// top of it.
package wire

import "github.com/jackc/pgx/v5/pgproto3"

// MsgType represents a PostgreSQL wire protocol message type byte.
type MsgType byte

// MsgLookup is a lookup table from MsgType to T.
// It uses [256]T so that indexing by a byte is always in-bounds, allowing
// the compiler to eliminate bounds checks entirely.
type MsgLookup[T any] [256]T

// Get returns the value for the given message type.
func (t *MsgLookup[T]) Get(m MsgType) T {
	return t[m]
}

// Outbound (frontend) message types - what this driver sends.
const (
	MsgBind              MsgType = 'B'
	MsgClose             MsgType = 'C'
	MsgCopyData          MsgType = 'd'
	MsgCopyDone          MsgType = 'c'
	MsgCopyFail          MsgType = 'f'
	MsgDescribe          MsgType = 'D'
	MsgExecute           MsgType = 'E'
	MsgFlush             MsgType = 'H'
	MsgFunctionCall      MsgType = 'F'
	MsgParse             MsgType = 'P'
	MsgPassword          MsgType = 'p' // Also SASLInitialResponse / SASLResponse
	MsgQuery             MsgType = 'Q'
	MsgSync              MsgType = 'S'
	MsgTerminate         MsgType = 'X'
)

// Inbound (backend) message types - what this driver receives.
const (
	MsgAuth                 MsgType = 'R'
	MsgBackendKeyData       MsgType = 'K'
	MsgBindComplete         MsgType = '2'
	MsgCloseComplete        MsgType = '3'
	MsgCommandComplete      MsgType = 'C'
	MsgCopyBothResponse     MsgType = 'W'
	MsgServerCopyData       MsgType = 'd'
	MsgServerCopyDone       MsgType = 'c'
	MsgCopyInResponse       MsgType = 'G'
	MsgCopyOutResponse      MsgType = 'H'
	MsgDataRow              MsgType = 'D'
	MsgEmptyQueryResponse   MsgType = 'I'
	MsgErrorResponse        MsgType = 'E'
	MsgFunctionCallResponse MsgType = 'V'
	MsgNoData               MsgType = 'n'
	MsgNoticeResponse       MsgType = 'N'
	MsgNotificationResponse MsgType = 'A'
	MsgParameterDescription MsgType = 't'
	MsgParameterStatus      MsgType = 'S'
	MsgParseComplete        MsgType = '1'
	MsgPortalSuspended      MsgType = 's'
	MsgReadyForQuery        MsgType = 'Z'
	MsgRowDescription       MsgType = 'T'
)

// MsgName returns a human-readable name for a message type, for logging.
var MsgName = MsgLookup[string]{
	'B': "Bind",
	'C': "Close/CommandComplete",
	'c': "CopyDone",
	'd': "CopyData",
	'D': "Describe/DataRow",
	'E': "Execute/ErrorResponse",
	'f': "CopyFail",
	'F': "FunctionCall",
	'H': "Flush/CopyOutResponse",
	'P': "Parse",
	'p': "PasswordMessage",
	'Q': "Query",
	'S': "Sync/ParameterStatus",
	'X': "Terminate",

	'1': "ParseComplete",
	'2': "BindComplete",
	'3': "CloseComplete",
	'A': "NotificationResponse",
	'G': "CopyInResponse",
	'I': "EmptyQueryResponse",
	'K': "BackendKeyData",
	'n': "NoData",
	'N': "NoticeResponse",
	'R': "Authentication",
	's': "PortalSuspended",
	't': "ParameterDescription",
	'T': "RowDescription",
	'V': "FunctionCallResponse",
	'W': "CopyBothResponse",
	'Z': "ReadyForQuery",
}

// TagFor returns the wire type byte for a concrete frontend or backend
// message value, so a caller tracing traffic can resolve it to a name via
// MsgName.Get without re-deriving the tag from the message's own Encode
// output. ok is false for a message type this driver never constructs or
// decodes.
func TagFor(msg any) (MsgType, bool) {
	switch msg.(type) {
	// Frontend (outbound).
	case *pgproto3.Bind:
		return MsgBind, true
	case *pgproto3.Close:
		return MsgClose, true
	case *pgproto3.CopyData:
		return MsgCopyData, true
	case *pgproto3.CopyDone:
		return MsgCopyDone, true
	case *pgproto3.CopyFail:
		return MsgCopyFail, true
	case *pgproto3.Describe:
		return MsgDescribe, true
	case *pgproto3.Execute:
		return MsgExecute, true
	case *pgproto3.Flush:
		return MsgFlush, true
	case *pgproto3.FunctionCall:
		return MsgFunctionCall, true
	case *pgproto3.Parse:
		return MsgParse, true
	case *pgproto3.PasswordMessage, *pgproto3.SASLInitialResponse, *pgproto3.SASLResponse:
		return MsgPassword, true
	case *pgproto3.Query:
		return MsgQuery, true
	case *pgproto3.Sync:
		return MsgSync, true
	case *pgproto3.Terminate:
		return MsgTerminate, true

	// Backend (inbound).
	case *pgproto3.AuthenticationOk, *pgproto3.AuthenticationCleartextPassword,
		*pgproto3.AuthenticationMD5Password, *pgproto3.AuthenticationSASL,
		*pgproto3.AuthenticationSASLContinue, *pgproto3.AuthenticationSASLFinal,
		*pgproto3.AuthenticationGSS, *pgproto3.AuthenticationGSSContinue:
		return MsgAuth, true
	case *pgproto3.BackendKeyData:
		return MsgBackendKeyData, true
	case *pgproto3.BindComplete:
		return MsgBindComplete, true
	case *pgproto3.CloseComplete:
		return MsgCloseComplete, true
	case *pgproto3.CommandComplete:
		return MsgCommandComplete, true
	case *pgproto3.CopyBothResponse:
		return MsgCopyBothResponse, true
	case *pgproto3.CopyInResponse:
		return MsgCopyInResponse, true
	case *pgproto3.CopyOutResponse:
		return MsgCopyOutResponse, true
	case *pgproto3.DataRow:
		return MsgDataRow, true
	case *pgproto3.EmptyQueryResponse:
		return MsgEmptyQueryResponse, true
	case *pgproto3.ErrorResponse:
		return MsgErrorResponse, true
	case *pgproto3.FunctionCallResponse:
		return MsgFunctionCallResponse, true
	case *pgproto3.NoData:
		return MsgNoData, true
	case *pgproto3.NoticeResponse:
		return MsgNoticeResponse, true
	case *pgproto3.NotificationResponse:
		return MsgNotificationResponse, true
	case *pgproto3.ParameterDescription:
		return MsgParameterDescription, true
	case *pgproto3.ParameterStatus:
		return MsgParameterStatus, true
	case *pgproto3.ParseComplete:
		return MsgParseComplete, true
	case *pgproto3.PortalSuspended:
		return MsgPortalSuspended, true
	case *pgproto3.ReadyForQuery:
		return MsgReadyForQuery, true
	case *pgproto3.RowDescription:
		return MsgRowDescription, true
	default:
		return 0, false
	}
}

// NameFor resolves msg straight to its human-readable name via TagFor and
// MsgName.Get, falling back to "?" for a message TagFor does not
// recognize (StartupMessage/SSLRequest/CancelRequest, which carry no
// single-byte tag of their own).
func NameFor(msg any) string {
	tag, ok := TagFor(msg)
	if !ok {
		return "?"
	}
	return MsgName.Get(tag)
}
