package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
)

func encode(t *testing.T, msg pgproto3.BackendMessage) []byte {
	t.Helper()
	buf, err := msg.Encode(nil)
	if err != nil {
		t.Fatalf("encode %T: %v", msg, err)
	}
	return buf
}

func TestReaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  pgproto3.BackendMessage
	}{
		{"ReadyForQuery", &pgproto3.ReadyForQuery{TxStatus: 'I'}},
		{"CommandComplete", &pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")}},
		{"DataRow", &pgproto3.DataRow{Values: [][]byte{[]byte("hello")}}},
		{"ErrorResponse", &pgproto3.ErrorResponse{Severity: "ERROR", Code: "42601", Message: "syntax error"}},
		{"AuthenticationOk", &pgproto3.AuthenticationOk{}},
		{"AuthenticationMD5Password", &pgproto3.AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}}},
		{"BackendKeyData", &pgproto3.BackendKeyData{ProcessID: 42, SecretKey: 99}},
		{"ParameterStatus", &pgproto3.ParameterStatus{Name: "server_version", Value: "16.0"}},
		{"NotificationResponse", &pgproto3.NotificationResponse{PID: 7, Channel: "updates", Payload: "ping"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wire := encode(t, tc.msg)
			r := NewReader(bytes.NewReader(wire), 0)
			got, err := r.ReadMessage()
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			gotWire, err := got.Encode(nil)
			if err != nil {
				t.Fatalf("re-encode: %v", err)
			}
			if !bytes.Equal(gotWire, wire) {
				t.Errorf("round trip mismatch:\n got  %x\n want %x", gotWire, wire)
			}
		})
	}
}

func TestReaderRejectsShortLength(t *testing.T) {
	buf := []byte{'Z', 0, 0, 0, 3} // length < 4 is impossible (excludes itself)
	r := NewReader(bytes.NewReader(buf), 0)
	_, err := r.ReadMessage()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v (%T)", err, err)
	}
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	buf := []byte{'D', 0, 0, 0, 100}
	r := NewReader(bytes.NewReader(buf), 10)
	_, err := r.ReadMessage()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v (%T)", err, err)
	}
}

func TestReaderPropagatesShortRead(t *testing.T) {
	buf := []byte{'Z', 0, 0, 0, 5} // says 1 body byte, gives none
	r := NewReader(bytes.NewReader(buf), 0)
	_, err := r.ReadMessage()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReaderTracksOffset(t *testing.T) {
	wire := encode(t, &pgproto3.ReadyForQuery{TxStatus: 'I'})
	r := NewReader(bytes.NewReader(append(wire, wire...)), 0)
	if _, err := r.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	if r.Offset() != int64(len(wire)) {
		t.Fatalf("offset after one message = %d, want %d", r.Offset(), len(wire))
	}
	if _, err := r.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	if r.Offset() != int64(2*len(wire)) {
		t.Fatalf("offset after two messages = %d, want %d", r.Offset(), 2*len(wire))
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	msg := &pgproto3.Query{String: "SELECT 1"}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatal(err)
	}
	want, err := msg.Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("WriteMessage wrote %x, want %x", buf.Bytes(), want)
	}
}
