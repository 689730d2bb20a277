package session

import "github.com/outpostdb/pgwire/pkg/wire"

// ProtocolState is the session's view of server-tracked state: the
// identifiers needed for cancellation, the current transaction status,
// server runtime parameters, and which prepared statement names the
// server already knows about.
//
// This is the client-role counterpart to the teacher's
// pgwire.ProtocolState. It drops PendingCreate/PendingClose bookkeeping:
// a proxy needs that because it reconciles two independently-progressing
// wire streams (its client-facing one and its backend-facing one), but a
// client-role session only ever originates requests itself, so a
// statement name becomes known exactly when this session's own
// ParseComplete arrives — no "pending" window to track.
type ProtocolState struct {
	PID       uint32
	SecretKey uint32

	TxStatus wire.TxStatus

	ParameterStatuses map[string]string
	ParsedStatements  map[string]bool
}

func newProtocolState() ProtocolState {
	return ProtocolState{
		TxStatus:          wire.TxIdle,
		ParameterStatuses: make(map[string]string),
		ParsedStatements:  make(map[string]bool),
	}
}

// ParameterStatus returns the last known value of a server runtime
// parameter, e.g. "server_version" or "client_encoding".
func (s *ProtocolState) ParameterStatus(name string) (string, bool) {
	v, ok := s.ParameterStatuses[name]
	return v, ok
}

func (s *ProtocolState) applyParameterStatus(name, value string) {
	if value == "" {
		delete(s.ParameterStatuses, name)
		return
	}
	s.ParameterStatuses[name] = value
}
