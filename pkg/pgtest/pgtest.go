// Package pgtest provides a scripted fake PostgreSQL server for testing
// package session and package query against real wire bytes, without a
// live database. It is grounded directly on the teacher's pkg/testing,
// which already wraps github.com/jackc/pgmock for this purpose — only
// the helper scripts are new, since the teacher exercises this harness
// from the server side of a proxy and this driver needs client-role
// scenarios (simple-query result assembly, mid-query errors) the teacher
// never had a reason to script.
package pgtest

import (
	"net"
	"testing"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
)

// StepFunc adapts a plain function to the pgmock.Step interface, so
// callers can script one-off steps inline without a named type.
type StepFunc func(*pgproto3.Backend) error

func (f StepFunc) Step(backend *pgproto3.Backend) error { return f(backend) }

// Server wraps a pgmock.Script behind a one-shot TCP listener.
type Server struct {
	t        *testing.T
	script   *pgmock.Script
	listener net.Listener
}

// NewServer creates a fake server bound to an ephemeral local port,
// programmed with steps. Call Serve in a goroutine, then dial Addr().
func NewServer(t *testing.T, steps ...pgmock.Step) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("pgtest: listen: %v", err)
	}
	return &Server{t: t, script: &pgmock.Script{Steps: steps}, listener: ln}
}

// Addr returns the "host:port" string to dial.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host and Port split Addr for callers building a
// session.ConnectionParameters directly instead of parsing a string.
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve accepts exactly one connection and runs the script against it.
// Intended to be called in a goroutine; send its error to a channel the
// test reads after exercising the client side.
func (s *Server) Serve() error {
	conn, err := s.listener.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
	return s.script.Run(backend)
}

// Close closes the listener. Safe to call after Serve returns, or to
// abort a test early.
func (s *Server) Close() error {
	return s.listener.Close()
}

// TrustAuthSteps accepts an unauthenticated StartupMessage and completes
// startup with trust authentication (AuthenticationOk, BackendKeyData,
// ReadyForQuery) — pgmock's own canned sequence for the simplest
// connect path. Cleartext/MD5/SASL dispatch inside Session.Connect is
// covered at the unit level by package auth's own tests instead of
// re-scripted here, since pgmock's public API doesn't expose a
// documented way to intercept the startup handshake before trust auth
// completes.
func TrustAuthSteps() []pgmock.Step {
	return pgmock.AcceptUnauthenticatedConnRequestSteps()
}

// SimpleQuerySteps scripts a request/response for the simple query
// protocol: expect the Query message, optionally send a RowDescription/
// DataRow pair per row, then CommandComplete and ReadyForQuery.
func SimpleQuerySteps(text string, fields []pgproto3.FieldDescription, rows [][][]byte, tag string) []pgmock.Step {
	steps := []pgmock.Step{pgmock.ExpectMessage(&pgproto3.Query{String: text})}
	if fields != nil {
		steps = append(steps, pgmock.SendMessage(&pgproto3.RowDescription{Fields: fields}))
		for _, row := range rows {
			steps = append(steps, pgmock.SendMessage(&pgproto3.DataRow{Values: row}))
		}
	}
	steps = append(steps,
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte(tag)}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	)
	return steps
}

// SimpleErrorSteps scripts a simple-protocol query that fails: expect
// the Query message, send an ErrorResponse, then ReadyForQuery (the
// server always returns to Ready after a simple-query error).
func SimpleErrorSteps(text, severity, code, message string) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Query{String: text}),
		pgmock.SendMessage(&pgproto3.ErrorResponse{Severity: severity, Code: code, Message: message}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}
}

// WaitForClose scripts waiting for the client to close the connection —
// the last step of most scripts, so Script.Run doesn't return until the
// client under test has actually finished with this server.
func WaitForClose() pgmock.Step {
	return pgmock.WaitForClose()
}
