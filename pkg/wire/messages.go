package wire

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
)

// ServerAsync is the subset of backend messages that can arrive at any
// time, independent of whether a query is in flight: notices, LISTEN/NOTIFY
// deliveries, and runtime parameter changes.
type ServerAsync interface {
	pgproto3.BackendMessage
	isServerAsync()
}

// ServerExtendedQuery is the subset of backend messages that only appear
// in response to the extended query (Parse/Bind/Describe/Execute) pipeline.
type ServerExtendedQuery interface {
	pgproto3.BackendMessage
	isServerExtendedQuery()
}

// ServerResponse is the subset of backend messages that carry query
// results and command completion, shared by both the simple and extended
// query protocols.
type ServerResponse interface {
	pgproto3.BackendMessage
	isServerResponse()
}

type asyncTag struct{}

func (asyncTag) isServerAsync() {}

type extendedQueryTag struct{}

func (extendedQueryTag) isServerExtendedQuery() {}

type responseTag struct{}

func (responseTag) isServerResponse() {}

// The embeds below attach category membership to pgproto3's own message
// structs: Classify returns a small struct that embeds the caller's
// *pgproto3.X pointer next to a category tag, so it satisfies the
// category interface while sharing the decoded message. This keeps
// dispatch a plain type switch, never a base-class hierarchy.

type serverNoticeResponse struct {
	*pgproto3.NoticeResponse
	asyncTag
}
type serverNotificationResponse struct {
	*pgproto3.NotificationResponse
	asyncTag
}
type serverParameterStatus struct {
	*pgproto3.ParameterStatus
	asyncTag
}

type serverParseComplete struct {
	*pgproto3.ParseComplete
	extendedQueryTag
}
type serverBindComplete struct {
	*pgproto3.BindComplete
	extendedQueryTag
}
type serverParameterDescription struct {
	*pgproto3.ParameterDescription
	extendedQueryTag
}
type serverNoData struct {
	*pgproto3.NoData
	extendedQueryTag
}
type serverPortalSuspended struct {
	*pgproto3.PortalSuspended
	extendedQueryTag
}
type serverCloseComplete struct {
	*pgproto3.CloseComplete
	extendedQueryTag
}

type serverReadyForQuery struct {
	*pgproto3.ReadyForQuery
	responseTag
}
type serverCommandComplete struct {
	*pgproto3.CommandComplete
	responseTag
}
type serverDataRow struct {
	*pgproto3.DataRow
	responseTag
}
type serverRowDescription struct {
	*pgproto3.RowDescription
	responseTag
}
type serverEmptyQueryResponse struct {
	*pgproto3.EmptyQueryResponse
	responseTag
}
type serverErrorResponse struct {
	*pgproto3.ErrorResponse
	responseTag
}

// Classify tags a decoded backend message with its protocol category, or
// returns ok=false for messages this driver treats as opaque (COPY
// subprotocol messages, BackendKeyData, the authentication challenges,
// which are handled directly by package auth/session instead of through
// this dispatch).
func Classify(msg pgproto3.BackendMessage) (any, bool) {
	switch m := msg.(type) {
	case *pgproto3.NoticeResponse:
		return serverNoticeResponse{NoticeResponse: m}, true
	case *pgproto3.NotificationResponse:
		return serverNotificationResponse{NotificationResponse: m}, true
	case *pgproto3.ParameterStatus:
		return serverParameterStatus{ParameterStatus: m}, true

	case *pgproto3.ParseComplete:
		return serverParseComplete{ParseComplete: m}, true
	case *pgproto3.BindComplete:
		return serverBindComplete{BindComplete: m}, true
	case *pgproto3.ParameterDescription:
		return serverParameterDescription{ParameterDescription: m}, true
	case *pgproto3.NoData:
		return serverNoData{NoData: m}, true
	case *pgproto3.PortalSuspended:
		return serverPortalSuspended{PortalSuspended: m}, true
	case *pgproto3.CloseComplete:
		return serverCloseComplete{CloseComplete: m}, true

	case *pgproto3.ReadyForQuery:
		return serverReadyForQuery{ReadyForQuery: m}, true
	case *pgproto3.CommandComplete:
		return serverCommandComplete{CommandComplete: m}, true
	case *pgproto3.DataRow:
		return serverDataRow{DataRow: m}, true
	case *pgproto3.RowDescription:
		return serverRowDescription{RowDescription: m}, true
	case *pgproto3.EmptyQueryResponse:
		return serverEmptyQueryResponse{EmptyQueryResponse: m}, true
	case *pgproto3.ErrorResponse:
		return serverErrorResponse{ErrorResponse: m}, true
	}
	return nil, false
}

// ResponseHandlers dispatches the messages the query engine cares about
// without a type-switch at every call site. A nil field falls back to
// Default, matching the teacher's HandleDefault pattern.
type ResponseHandlers[T any] struct {
	ParseComplete      func(*pgproto3.ParseComplete) (T, error)
	PortalSuspended    func(*pgproto3.PortalSuspended) (T, error)
	ReadyForQuery      func(*pgproto3.ReadyForQuery) (T, error)
	CommandComplete    func(*pgproto3.CommandComplete) (T, error)
	DataRow            func(*pgproto3.DataRow) (T, error)
	RowDescription     func(*pgproto3.RowDescription) (T, error)
	EmptyQueryResponse func(*pgproto3.EmptyQueryResponse) (T, error)
	ErrorResponse      func(*pgproto3.ErrorResponse) (T, error)
	Default            func(pgproto3.BackendMessage) (T, error)
}

// Handle dispatches msg to the matching field, or to Default if unset or
// the message's category has no matching field. Handle panics if both the
// matching field and Default are nil, the same contract the teacher's
// generated dispatch structs use.
func (h ResponseHandlers[T]) Handle(msg pgproto3.BackendMessage) (T, error) {
	fallback := h.Default
	if fallback == nil {
		fallback = func(m pgproto3.BackendMessage) (T, error) {
			panic(fmt.Sprintf("wire: no handler defined for message %T", m))
		}
	}
	switch m := msg.(type) {
	case *pgproto3.ParseComplete:
		if h.ParseComplete != nil {
			return h.ParseComplete(m)
		}
	case *pgproto3.PortalSuspended:
		if h.PortalSuspended != nil {
			return h.PortalSuspended(m)
		}
	case *pgproto3.ReadyForQuery:
		if h.ReadyForQuery != nil {
			return h.ReadyForQuery(m)
		}
	case *pgproto3.CommandComplete:
		if h.CommandComplete != nil {
			return h.CommandComplete(m)
		}
	case *pgproto3.DataRow:
		if h.DataRow != nil {
			return h.DataRow(m)
		}
	case *pgproto3.RowDescription:
		if h.RowDescription != nil {
			return h.RowDescription(m)
		}
	case *pgproto3.EmptyQueryResponse:
		if h.EmptyQueryResponse != nil {
			return h.EmptyQueryResponse(m)
		}
	case *pgproto3.ErrorResponse:
		if h.ErrorResponse != nil {
			return h.ErrorResponse(m)
		}
	}
	return fallback(msg)
}
