package wire

// Precomputed wire encodings for the handful of frontend messages that
// carry no payload and are sent often enough that re-encoding them on
// every call would be pointless allocation.
var (
	FlushMessage     = []byte{byte(MsgFlush), 0, 0, 0, 4}
	SyncMessage      = []byte{byte(MsgSync), 0, 0, 0, 4}
	TerminateMessage = []byte{byte(MsgTerminate), 0, 0, 0, 4}
	CopyDoneMessage  = []byte{byte(MsgCopyDone), 0, 0, 0, 4}
)
