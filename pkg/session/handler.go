package session

import "github.com/jackc/pgx/v5/pgproto3"

// ActiveQueryHandler is implemented by whatever the query engine installs
// as the session's active query. The session feeds it every backend
// message that arrives while Busy, in order, and lets it decide when the
// query is finished. The session itself never inspects row contents —
// it only needs to know when to transition back to Ready, which is
// always on ReadyForQuery, never decided by the handler.
type ActiveQueryHandler interface {
	// HandleMessage processes one backend message belonging to this
	// query's response. ReadyForQuery is delivered too, after which the
	// session discards the handler.
	HandleMessage(msg pgproto3.BackendMessage)

	// Fail is called instead of HandleMessage when the session cannot
	// continue serving this query: a transport error, a protocol
	// violation, or the session being torn down mid-query.
	Fail(err error)
}
