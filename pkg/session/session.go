// Package session drives the PostgreSQL connection lifecycle: startup,
// authentication, and the ready/busy protocol state machine described in
// spec §4.3, on top of package transport's byte stream and package wire's
// codec. It owns cancellation and orderly/disorderly teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/outpostdb/pgwire/pkg/auth"
	"github.com/outpostdb/pgwire/pkg/transport"
	"github.com/outpostdb/pgwire/pkg/wire"
)

// Session drives one PostgreSQL connection. Create with New, then call
// Connect. Submit refuses a second query while one is active (it only
// accepts work in the Ready state); package query's QueryEngine queues
// callers so that it never asks for more than one at a time.
type Session struct {
	params ConnectionParameters
	logger *slog.Logger

	mu    sync.Mutex
	state State

	transport *transport.Transport
	reader    *wire.Reader

	protocol ProtocolState

	active ActiveQueryHandler

	// onReady is an internal hook the query engine installs to be told
	// whenever the session becomes Ready (including right after
	// Connect), so it can pulse its queue. It is not part of the public
	// event surface in state.go because only one internal owner ever
	// needs it.
	onReady func()

	handlers struct {
		connect      []func()
		end          []func()
		error        []func(error)
		notification []func(Notification)
		notice       []func(Notice)
		drain        []func()
	}
}

// New creates a Session in the Disconnected state. Call Connect to
// establish the connection.
func New(params ConnectionParameters, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		params:   params,
		protocol: newProtocolState(),
		state:    Disconnected,
	}
	// Bound once here rather than re-derived on every log call; the
	// "session" attribute still shows pid=0 until BackendKeyData arrives
	// during Connect, since String() is only evaluated at this point.
	s.logger = logger.With("session", s.String())
	return s
}

// String renders a redaction-safe identifier for logging, in the
// teacher's "user@database?pid=N" shape.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s@%s?pid=%d", s.params.User, s.params.database(), s.protocol.PID)
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID and SecretKey expose the BackendKeyData pair needed to build a
// CancelRequest for this session from another connection.
func (s *Session) PID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol.PID
}

func (s *Session) SecretKey() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol.SecretKey
}

// ParameterStatus returns a tracked server runtime parameter.
func (s *Session) ParameterStatus(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol.ParameterStatus(name)
}

// HasParsedStatement reports whether the server already knows the given
// prepared statement name on this session.
func (s *Session) HasParsedStatement(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol.ParsedStatements[name]
}

// BinaryDefault reports whether queries on this session default to
// binary result format when they don't request a format explicitly, per
// spec §4.4's binary-inheritance rule. Configured once at connect time
// via ConnectionParameters; the session itself never mutates it.
func (s *Session) BinaryDefault() bool {
	return s.params.BinaryDefault
}

// DefaultQueryTimeout returns the session-wide per-query read timeout
// configured in ConnectionParameters. A Query may override it; zero means
// no timeout.
func (s *Session) DefaultQueryTimeout() time.Duration {
	return s.params.QueryTimeout
}

// On registers a handler for a lifecycle event. Handlers are invoked in
// registration order, by direct call — never reflectively — per spec §9.
func (s *Session) On(event Event, handler any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event {
	case EventConnect:
		s.handlers.connect = append(s.handlers.connect, handler.(func()))
	case EventEnd:
		s.handlers.end = append(s.handlers.end, handler.(func()))
	case EventError:
		s.handlers.error = append(s.handlers.error, handler.(func(error)))
	case EventNotification:
		s.handlers.notification = append(s.handlers.notification, handler.(func(Notification)))
	case EventNotice:
		s.handlers.notice = append(s.handlers.notice, handler.(func(Notice)))
	case EventDrain:
		s.handlers.drain = append(s.handlers.drain, handler.(func()))
	}
}

// SetOnReady installs the query engine's pulse hook, called every time
// the session returns to Ready. It exists to let the query engine submit
// its next queued query without polling — only one collaborator is ever
// expected to call this.
func (s *Session) SetOnReady(fn func()) {
	s.mu.Lock()
	s.onReady = fn
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect opens the transport, performs the SSL pre-handshake if
// configured, sends the startup message, runs authentication, and blocks
// until ReadyForQuery or a fatal error. On success it starts the
// background read loop that drives the rest of the session's lifetime.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(Connecting)
	s.logger.Info("connecting", "host", s.params.Host, "port", s.params.Port)

	tr, err := transport.Connect(ctx, transport.Config{
		Host:           s.params.Host,
		Port:           s.params.Port,
		ConnectTimeout: s.params.ConnectTimeout,
		TLSConfig:      s.params.TLSConfig,
		Keepalive:      s.params.Keepalive,
		KeepaliveIdle:  s.params.KeepaliveIdle,
	})
	if err != nil {
		s.setState(Failed)
		s.logger.Error("transport connect failed", "error", err)
		return err
	}
	s.transport = tr
	s.reader = wire.NewReader(tr, 0)

	s.setState(Authenticating)
	startup := wire.BuildStartupMessage(s.params.startupParameters())
	s.logger.Debug("send", "message", wire.NameFor(startup))
	if err := wire.WriteMessage(s.transport, startup); err != nil {
		s.setState(Failed)
		tr.Destroy()
		s.logger.Error("writing startup message failed", "error", err)
		return &wire.TransportError{Cause: err}
	}

	if err := s.runAuthAndStartup(ctx); err != nil {
		s.setState(Failed)
		tr.Destroy()
		s.logger.Error("authentication failed", "error", err)
		return err
	}

	s.setState(Ready)
	// The PID learned from BackendKeyData during runAuthAndStartup makes
	// String() (and so the "session" attribute already bound into
	// s.logger) more useful from here on for anything logged afterward,
	// but slog.Logger has no way to rebind an already-derived attribute —
	// it's carried in logs as pid=0 until a fresh session.With() call,
	// which isn't worth the allocation on every subsequent log line.
	s.logger.Info("ready", "pid", s.PID())
	s.fireConnect()
	go s.readLoop()
	s.pulse()
	return nil
}

// runAuthAndStartup reads messages synchronously until ReadyForQuery,
// driving authentication as challenges arrive. This mirrors
// unng-lab-pap's connect() loop and the state machine table in spec §4.3.
func (s *Session) runAuthAndStartup(ctx context.Context) error {
	var scramClient *auth.ScramClient

	for {
		msg, err := s.reader.ReadMessage()
		if err != nil {
			return &wire.TransportError{Cause: err}
		}
		s.logger.Debug("recv", "message", wire.NameFor(msg))

		switch m := msg.(type) {
		case *pgproto3.BackendKeyData:
			s.mu.Lock()
			s.protocol.PID = m.ProcessID
			s.protocol.SecretKey = m.SecretKey
			s.mu.Unlock()

		case *pgproto3.ParameterStatus:
			s.mu.Lock()
			s.protocol.applyParameterStatus(m.Name, m.Value)
			s.mu.Unlock()

		case *pgproto3.AuthenticationOk:
			s.logger.Debug("authentication ok")

		case *pgproto3.AuthenticationCleartextPassword:
			s.logger.Debug("server requested cleartext password")
			password, err := s.params.Password.Resolve(ctx)
			if err != nil {
				return &wire.ConfigError{Reason: fmt.Sprintf("resolving password: %v", err)}
			}
			reply := &pgproto3.PasswordMessage{Password: password}
			s.logger.Debug("send", "message", wire.NameFor(reply))
			if err := wire.WriteMessage(s.transport, reply); err != nil {
				return &wire.TransportError{Cause: err}
			}

		case *pgproto3.AuthenticationMD5Password:
			s.logger.Debug("server requested md5 password")
			password, err := s.params.Password.Resolve(ctx)
			if err != nil {
				return &wire.ConfigError{Reason: fmt.Sprintf("resolving password: %v", err)}
			}
			digest := auth.ComputeMD5Password(s.params.User, password, m.Salt)
			reply := &pgproto3.PasswordMessage{Password: digest}
			s.logger.Debug("send", "message", wire.NameFor(reply))
			if err := wire.WriteMessage(s.transport, reply); err != nil {
				return &wire.TransportError{Cause: err}
			}

		case *pgproto3.AuthenticationSASL:
			s.logger.Debug("server requested SASL", "mechanisms", m.AuthMechanisms)
			if !containsMechanism(m.AuthMechanisms, auth.ScramMechanism) {
				return &wire.AuthenticationError{Reason: "server did not offer SCRAM-SHA-256"}
			}
			password, err := s.params.Password.Resolve(ctx)
			if err != nil {
				return &wire.ConfigError{Reason: fmt.Sprintf("resolving password: %v", err)}
			}
			scramClient, err = auth.NewScramClient(s.params.User, password)
			if err != nil {
				return &wire.AuthenticationError{Reason: "starting SCRAM exchange", Cause: err}
			}
			first := scramClient.ClientFirstMessage()
			initial := &pgproto3.SASLInitialResponse{
				AuthMechanism: auth.ScramMechanism,
				Data:          []byte(first),
			}
			s.logger.Debug("send", "message", wire.NameFor(initial))
			if err := wire.WriteMessage(s.transport, initial); err != nil {
				return &wire.TransportError{Cause: err}
			}

		case *pgproto3.AuthenticationSASLContinue:
			if scramClient == nil {
				return &wire.ProtocolError{Reason: "AuthenticationSASLContinue without a preceding AuthenticationSASL"}
			}
			if err := scramClient.ReceiveServerFirstMessage(string(m.Data)); err != nil {
				return &wire.AuthenticationError{Reason: "processing server-first-message", Cause: err}
			}
			final, err := scramClient.ClientFinalMessage()
			if err != nil {
				return &wire.AuthenticationError{Reason: "computing client-final-message", Cause: err}
			}
			reply := &pgproto3.SASLResponse{Data: []byte(final)}
			s.logger.Debug("send", "message", wire.NameFor(reply))
			if err := wire.WriteMessage(s.transport, reply); err != nil {
				return &wire.TransportError{Cause: err}
			}

		case *pgproto3.AuthenticationSASLFinal:
			if scramClient == nil {
				return &wire.ProtocolError{Reason: "AuthenticationSASLFinal without a preceding AuthenticationSASL"}
			}
			if err := scramClient.ReceiveServerFinalMessage(string(m.Data)); err != nil {
				return &wire.AuthenticationError{Reason: "verifying server signature", Cause: err}
			}
			s.logger.Debug("SCRAM server signature verified")

		case *pgproto3.ErrorResponse:
			s.logger.Warn("server error during connect", "code", m.Code, "message", m.Message)
			return wire.NewServerError(m)

		case *pgproto3.ReadyForQuery:
			s.mu.Lock()
			s.protocol.TxStatus = wire.TxStatus(m.TxStatus)
			s.mu.Unlock()
			return nil

		default:
			return &wire.ProtocolError{Reason: fmt.Sprintf("unexpected message %T during startup", m)}
		}
	}
}

func containsMechanism(mechanisms []string, want string) bool {
	for _, m := range mechanisms {
		if m == want {
			return true
		}
	}
	return false
}

// Submit writes a batch of frontend messages and installs handler as the
// active query. The caller (package query) must only call this when the
// session is Ready.
func (s *Session) Submit(msgs []pgproto3.FrontendMessage, handler ActiveQueryHandler) error {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return fmt.Errorf("session: Submit called while state is %s, not ready", s.state)
	}
	s.active = handler
	s.state = Busy
	s.mu.Unlock()

	// Encode the whole batch into one buffer and write it once, so the
	// server sees an extended-protocol pipeline as a single unit.
	var buf []byte
	for _, msg := range msgs {
		s.logger.Debug("send", "message", wire.NameFor(msg))
		var err error
		if buf, err = msg.Encode(buf); err != nil {
			return &wire.TransportError{Cause: fmt.Errorf("encode %T: %w", msg, err)}
		}
	}
	if _, err := s.transport.Write(buf); err != nil {
		return &wire.TransportError{Cause: err}
	}
	return nil
}

// readLoop is the session's single event source once Connect succeeds:
// every state transition after startup happens here, driven by inbound
// messages, per spec §5's "single-threaded cooperative" scheduling model.
func (s *Session) readLoop() {
	for {
		msg, err := s.reader.ReadMessage()
		if err != nil {
			s.onTransportClosed(err)
			return
		}
		s.logger.Debug("recv", "message", wire.NameFor(msg))
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg pgproto3.BackendMessage) {
	// wire.Classify tags the handful of messages that can arrive at any
	// time, independent of whether a query is active (spec §5: notices
	// and LISTEN/NOTIFY deliveries "must be delivered without affecting
	// the active-query state machine"), before anything below touches
	// s.active or s.state.
	if async, ok := wire.Classify(msg); ok {
		if _, ok := async.(wire.ServerAsync); ok {
			switch m := msg.(type) {
			case *pgproto3.NotificationResponse:
				s.fireNotification(Notification{PID: m.PID, Channel: m.Channel, Payload: m.Payload})
				return
			case *pgproto3.NoticeResponse:
				s.fireNotice(noticeFromResponse(m))
				return
			case *pgproto3.ParameterStatus:
				s.mu.Lock()
				s.protocol.applyParameterStatus(m.Name, m.Value)
				s.mu.Unlock()
				return
			}
		}
	}

	s.mu.Lock()
	active := s.active
	st := s.state
	s.mu.Unlock()

	if rfq, ok := msg.(*pgproto3.ReadyForQuery); ok {
		s.mu.Lock()
		s.protocol.TxStatus = wire.TxStatus(rfq.TxStatus)
		s.active = nil
		s.state = Ready
		s.mu.Unlock()
		if active != nil {
			active.HandleMessage(msg)
		}
		s.pulse()
		return
	}

	if st != Busy || active == nil {
		// A message arrived outside an active query and isn't one of
		// the async kinds handled above: surface it on the error
		// stream rather than silently dropping it. The session's state
		// is left as it is, so it still accepts queries afterwards.
		if errResp, ok := msg.(*pgproto3.ErrorResponse); ok {
			s.fireError(wire.NewServerError(errResp))
			return
		}
		s.fireError(&wire.ProtocolError{Reason: fmt.Sprintf("unexpected message %T while not busy", msg)})
		return
	}

	active.HandleMessage(msg)
}

func noticeFromResponse(m *pgproto3.NoticeResponse) Notice {
	return Notice{
		Severity: m.Severity,
		Code:     m.Code,
		Message:  m.Message,
		Detail:   m.Detail,
		Hint:     m.Hint,
	}
}

// pulse invokes the query engine's installed hook after the session
// returns to Ready, so it can submit the next queued query.
func (s *Session) pulse() {
	s.mu.Lock()
	hook := s.onReady
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.fireDrain()
}

// MarkStatementParsed records that the server has confirmed a prepared
// statement name via ParseComplete. Called by package query, not derived
// internally, since only the query engine knows which name a given
// ParseComplete corresponds to (the session sees messages, not the
// request that provoked them).
func (s *Session) MarkStatementParsed(name string) {
	s.mu.Lock()
	s.protocol.ParsedStatements[name] = true
	s.mu.Unlock()
}

func (s *Session) onTransportClosed(err error) {
	unexpected := !errors.Is(err, io.EOF)

	s.mu.Lock()
	wasEnding := s.state == Ending
	active := s.active
	s.active = nil
	s.state = Ended
	s.mu.Unlock()

	terminated := &wire.ConnectionTerminated{Unexpected: unexpected && !wasEnding}
	if terminated.Unexpected {
		s.logger.Warn("transport closed unexpectedly", "error", err)
	} else {
		s.logger.Info("transport closed")
	}
	if active != nil {
		active.Fail(terminated)
	}
	s.fireEnd()
	if terminated.Unexpected {
		s.fireError(terminated)
	}
}

// End marks the session Ending and tears down the transport: an orderly
// Terminate-then-close if idle, a hard close if a query is in flight (so
// a hung backend cannot block shutdown), per spec §4.3.
func (s *Session) End() error {
	s.mu.Lock()
	st := s.state
	s.state = Ending
	active := s.active
	s.mu.Unlock()

	s.logger.Info("ending", "state", st)
	if active != nil {
		active.Fail(&wire.ClientClosed{})
	}

	if st == Busy {
		return s.transport.Destroy()
	}
	return s.transport.End()
}

func (s *Session) fireConnect() {
	s.mu.Lock()
	hs := append([]func(){}, s.handlers.connect...)
	s.mu.Unlock()
	for _, h := range hs {
		h()
	}
}

func (s *Session) fireEnd() {
	s.mu.Lock()
	hs := append([]func(){}, s.handlers.end...)
	s.mu.Unlock()
	for _, h := range hs {
		h()
	}
}

func (s *Session) fireError(err error) {
	s.mu.Lock()
	hs := append([]func(error){}, s.handlers.error...)
	s.mu.Unlock()
	for _, h := range hs {
		h(err)
	}
}

func (s *Session) fireNotification(n Notification) {
	s.mu.Lock()
	hs := append([]func(Notification){}, s.handlers.notification...)
	s.mu.Unlock()
	for _, h := range hs {
		h(n)
	}
}

func (s *Session) fireNotice(n Notice) {
	s.mu.Lock()
	hs := append([]func(Notice){}, s.handlers.notice...)
	s.mu.Unlock()
	for _, h := range hs {
		h(n)
	}
}

func (s *Session) fireDrain() {
	s.mu.Lock()
	hs := append([]func(){}, s.handlers.drain...)
	s.mu.Unlock()
	for _, h := range hs {
		h()
	}
}
