package session

import (
	"context"

	"github.com/outpostdb/pgwire/pkg/transport"
	"github.com/outpostdb/pgwire/pkg/wire"
)

// Cancel requests cancellation of whatever query is currently running on
// the session identified by pid/secretKey, per spec §4.3: it opens a new,
// throwaway connection, sends a CancelRequest, and closes — it never
// touches the target session's own state, and a successful send is not a
// guarantee the query was actually interrupted.
func Cancel(ctx context.Context, cfg transport.Config, pid, secretKey uint32) error {
	tr, err := transport.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer tr.Destroy()

	if _, err := tr.Write(wire.CancelRequest(pid, secretKey)); err != nil {
		return &wire.TransportError{Cause: err}
	}
	return nil
}
