package query_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	pgproto3v2 "github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/require"

	"github.com/outpostdb/pgwire/pkg/pgtest"
	"github.com/outpostdb/pgwire/pkg/query"
	"github.com/outpostdb/pgwire/pkg/session"
	"github.com/outpostdb/pgwire/pkg/wire"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

func connectTo(t *testing.T, server *pgtest.Server) *session.Session {
	t.Helper()
	sess := session.New(session.ConnectionParameters{
		User:     "postgres",
		Database: "postgres",
		Host:     server.Host(),
		Port:     server.Port(),
	}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Connect(ctx))
	return sess
}

// Scenario 1 from spec §8: simple SELECT with one row.
func TestEngine_SimpleSelect(t *testing.T) {
	fields := []pgproto3v2.FieldDescription{{Name: []byte("?column?"), DataTypeOID: 23, DataTypeSize: 4}}
	steps := pgtest.TrustAuthSteps()
	steps = append(steps, pgtest.SimpleQuerySteps("SELECT 1::int", fields, [][][]byte{{[]byte("1")}}, "SELECT 1")...)
	steps = append(steps, pgtest.WaitForClose())

	server := pgtest.NewServer(t, steps...)
	defer server.Close()
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve() }()

	sess := connectTo(t, server)
	engine := query.NewEngine(sess)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := engine.Execute(ctx, &query.Query{Text: "SELECT 1::int"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "1", result.Rows[0].Values[0])
	require.Equal(t, int64(1), result.RowCount)
	require.Equal(t, uint32(23), result.Fields[0].DataTypeOID)
	require.Equal(t, "SELECT", result.CommandTag.Command)
	require.Equal(t, int64(1), result.CommandTag.RowsAffected)

	require.NoError(t, sess.End())
	require.NoError(t, <-errCh)
}

// Scenario 4 from spec §8: a server error mid-query is scoped to that
// query, and the next query on the same session succeeds.
func TestEngine_ServerErrorThenSuccess(t *testing.T) {
	steps := pgtest.TrustAuthSteps()
	steps = append(steps, pgtest.SimpleErrorSteps("SELECT 1/0", "ERROR", "22012", "division by zero")...)
	steps = append(steps, pgtest.SimpleQuerySteps("SELECT 2", nil, nil, "SELECT 1")...)
	steps = append(steps, pgtest.WaitForClose())

	server := pgtest.NewServer(t, steps...)
	defer server.Close()
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve() }()

	sess := connectTo(t, server)
	engine := query.NewEngine(sess)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := engine.Execute(ctx, &query.Query{Text: "SELECT 1/0"})
	require.Error(t, err)
	var serverErr *wire.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "22012", serverErr.Code)

	result, err := engine.Execute(ctx, &query.Query{Text: "SELECT 2"})
	require.NoError(t, err)
	require.Equal(t, "SELECT", result.Command)

	require.NoError(t, sess.End())
	require.NoError(t, <-errCh)
}

// Scenario 5 from spec §8: a per-query read timeout fires on the caller
// side while the server is still slow to respond, and the session
// returns to Ready once the delayed response finally drains.
func TestEngine_QueryTimeout(t *testing.T) {
	steps := pgtest.TrustAuthSteps()
	steps = append(steps,
		pgtest.StepFunc(func(backend *pgproto3v2.Backend) error {
			_, err := backend.Receive() // the Query message
			return err
		}),
		pgtest.StepFunc(func(backend *pgproto3v2.Backend) error {
			time.Sleep(150 * time.Millisecond)
			return backend.Send(&pgproto3v2.CommandComplete{CommandTag: []byte("SELECT 0")})
		}),
		pgtest.StepFunc(func(backend *pgproto3v2.Backend) error {
			return backend.Send(&pgproto3v2.ReadyForQuery{TxStatus: 'I'})
		}),
		pgtest.WaitForClose(),
	)

	server := pgtest.NewServer(t, steps...)
	defer server.Close()
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve() }()

	sess := connectTo(t, server)
	engine := query.NewEngine(sess)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	_, err := engine.Execute(ctx, &query.Query{Text: "SELECT pg_sleep(1)", Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	require.Error(t, err)
	var timeoutErr *wire.QueryTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Less(t, elapsed, 150*time.Millisecond)

	// Give the delayed response time to drain and return the session to
	// Ready before tearing down.
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, sess.End())
	require.NoError(t, <-errCh)
}
