package wire

import (
	"encoding/binary"

	"github.com/jackc/pgx/v5/pgproto3"
)

// ProtocolVersionNumber is the only startup protocol version this driver
// speaks: PostgreSQL protocol 3.0.
const ProtocolVersionNumber uint32 = 196608 // 3<<16 | 0

// sslRequestCode is the magic number that occupies the protocol-version
// field of an SSLRequest, distinguishing it from a StartupMessage on the
// wire before either side has agreed on a protocol.
const sslRequestCode uint32 = 80877103

// cancelRequestCode is the magic number that occupies the protocol-version
// field of a CancelRequest.
const cancelRequestCode uint32 = 80877102

// SSLRequest is the 8-byte message sent before the startup message to ask
// whether the server will upgrade the connection to TLS.
var SSLRequest = encodeFixedRequest(sslRequestCode)

func encodeFixedRequest(code uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 8)
	binary.BigEndian.PutUint32(buf[4:8], code)
	return buf
}

// CancelRequest encodes the 16-byte out-of-band message sent on a fresh
// connection to ask the server to cancel a running query identified by
// pid/secretKey.
func CancelRequest(pid, secretKey uint32) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], 16)
	binary.BigEndian.PutUint32(buf[4:8], cancelRequestCode)
	binary.BigEndian.PutUint32(buf[8:12], pid)
	binary.BigEndian.PutUint32(buf[12:16], secretKey)
	return buf
}

// startupParamOrder is the fixed order OrderedParameterNames reports the
// well-known StartupMessage parameters in. It does not affect the wire
// encoding.
var startupParamOrder = []string{
	"user",
	"database",
	"application_name",
	"replication",
	"options",
	"statement_timeout",
	"idle_in_transaction_session_timeout",
	"lock_timeout",
}

// BuildStartupMessage constructs the StartupMessage for a connection from
// a copy of params. The parameters are held in a map, so pgproto3 encodes
// them in Go's map iteration order; no fixed order is applied on the wire.
func BuildStartupMessage(params map[string]string) *pgproto3.StartupMessage {
	msg := &pgproto3.StartupMessage{
		ProtocolVersion: ProtocolVersionNumber,
		Parameters:      make(map[string]string, len(params)),
	}
	for k, v := range params {
		msg.Parameters[k] = v
	}
	return msg
}

// OrderedParameterNames returns the keys of params in the fixed
// startupParamOrder first, followed by any remaining keys. It exists so a
// caller that wants to log or trace the startup parameters sees the same
// deterministic order the wire encoding would if pgproto3.StartupMessage
// honored one; pgproto3 itself encodes map parameters in Go's randomized
// order, which this driver does not rely on for correctness, only for
// producing readable, stable logs and tests.
func OrderedParameterNames(params map[string]string) []string {
	seen := make(map[string]bool, len(params))
	names := make([]string, 0, len(params))
	for _, k := range startupParamOrder {
		if _, ok := params[k]; ok {
			names = append(names, k)
			seen[k] = true
		}
	}
	for k := range params {
		if !seen[k] {
			names = append(names, k)
		}
	}
	return names
}
