package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgproto3"
)

// DefaultMaxMessageLength is the frame-length cap applied when a Reader is
// constructed with NewReader. PostgreSQL itself has no hard limit, but an
// unbounded length field from a confused or malicious peer should not be
// trusted to allocate memory.
const DefaultMaxMessageLength = 1 << 30 // 1 GiB

// Reader reads framed messages off a byte stream and decodes them into
// concrete pgproto3.BackendMessage values. It tracks a running byte offset
// so a ProtocolError can be correlated with a packet capture.
type Reader struct {
	r         io.Reader
	maxLen    uint32
	headerBuf [5]byte
	offset    int64
}

// NewReader constructs a Reader with the given frame-length cap. A maxLen
// of 0 uses DefaultMaxMessageLength.
func NewReader(r io.Reader, maxLen uint32) *Reader {
	if maxLen == 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &Reader{r: r, maxLen: maxLen}
}

// Offset returns the number of bytes consumed from the underlying stream.
func (r *Reader) Offset() int64 { return r.offset }

// ReadMessage reads one frame and decodes it into a BackendMessage.
func (r *Reader) ReadMessage() (pgproto3.BackendMessage, error) {
	tag, body, err := r.readFrame()
	if err != nil {
		return nil, err
	}
	msg, err := DecodeServerMessage(tag, body)
	if err != nil {
		return nil, &ProtocolError{Offset: r.offset, Reason: err.Error()}
	}
	return msg, nil
}

// readFrame reads the 5-byte header and the body it describes.
func (r *Reader) readFrame() (MsgType, []byte, error) {
	if _, err := io.ReadFull(r.r, r.headerBuf[:]); err != nil {
		return 0, nil, err
	}
	r.offset += 5

	tag := MsgType(r.headerBuf[0])
	length := binary.BigEndian.Uint32(r.headerBuf[1:5])
	if length < 4 {
		return 0, nil, &ProtocolError{Offset: r.offset, Reason: fmt.Sprintf("message length %d smaller than header", length)}
	}
	bodyLen := length - 4
	if bodyLen > r.maxLen {
		return 0, nil, &ProtocolError{Offset: r.offset, Reason: fmt.Sprintf("message length %d exceeds cap %d", bodyLen, r.maxLen)}
	}

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r.r, body); err != nil {
			if err == io.EOF {
				// The header promised a body; a stream that ends before
				// any of it arrives ended mid-frame, not between frames.
				err = io.ErrUnexpectedEOF
			}
			return 0, nil, err
		}
	}
	r.offset += int64(bodyLen)
	return tag, body, nil
}

// DecodeServerMessage decodes a single frame body into the concrete
// pgproto3.BackendMessage its tag identifies. It covers every message a
// client-role session can legally receive.
func DecodeServerMessage(tag MsgType, body []byte) (pgproto3.BackendMessage, error) {
	var msg pgproto3.BackendMessage
	switch tag {
	case MsgAuth:
		authMsg, err := decodeAuthentication(body)
		if err != nil {
			return nil, err
		}
		msg = authMsg
	case MsgBackendKeyData:
		msg = &pgproto3.BackendKeyData{}
	case MsgBindComplete:
		msg = &pgproto3.BindComplete{}
	case MsgCloseComplete:
		msg = &pgproto3.CloseComplete{}
	case MsgCommandComplete:
		msg = &pgproto3.CommandComplete{}
	case MsgCopyBothResponse:
		msg = &pgproto3.CopyBothResponse{}
	case MsgServerCopyData:
		msg = &pgproto3.CopyData{}
	case MsgServerCopyDone:
		msg = &pgproto3.CopyDone{}
	case MsgCopyInResponse:
		msg = &pgproto3.CopyInResponse{}
	case MsgCopyOutResponse:
		msg = &pgproto3.CopyOutResponse{}
	case MsgDataRow:
		msg = &pgproto3.DataRow{}
	case MsgEmptyQueryResponse:
		msg = &pgproto3.EmptyQueryResponse{}
	case MsgErrorResponse:
		msg = &pgproto3.ErrorResponse{}
	case MsgFunctionCallResponse:
		msg = &pgproto3.FunctionCallResponse{}
	case MsgNoData:
		msg = &pgproto3.NoData{}
	case MsgNoticeResponse:
		msg = &pgproto3.NoticeResponse{}
	case MsgNotificationResponse:
		msg = &pgproto3.NotificationResponse{}
	case MsgParameterDescription:
		msg = &pgproto3.ParameterDescription{}
	case MsgParameterStatus:
		msg = &pgproto3.ParameterStatus{}
	case MsgParseComplete:
		msg = &pgproto3.ParseComplete{}
	case MsgPortalSuspended:
		msg = &pgproto3.PortalSuspended{}
	case MsgReadyForQuery:
		msg = &pgproto3.ReadyForQuery{}
	case MsgRowDescription:
		msg = &pgproto3.RowDescription{}
	default:
		return nil, fmt.Errorf("unknown backend message type %q (0x%02x)", rune(tag), byte(tag))
	}
	if err := msg.Decode(body); err != nil {
		return nil, fmt.Errorf("decode %T: %w", msg, err)
	}
	return msg, nil
}

func decodeAuthentication(body []byte) (pgproto3.BackendMessage, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("authentication message too short: %d bytes", len(body))
	}
	switch binary.BigEndian.Uint32(body[0:4]) {
	case 0:
		return &pgproto3.AuthenticationOk{}, nil
	case 3:
		return &pgproto3.AuthenticationCleartextPassword{}, nil
	case 5:
		return &pgproto3.AuthenticationMD5Password{}, nil
	case 7:
		return &pgproto3.AuthenticationGSS{}, nil
	case 8:
		return &pgproto3.AuthenticationGSSContinue{}, nil
	case 10:
		return &pgproto3.AuthenticationSASL{}, nil
	case 11:
		return &pgproto3.AuthenticationSASLContinue{}, nil
	case 12:
		return &pgproto3.AuthenticationSASLFinal{}, nil
	default:
		return nil, fmt.Errorf("unknown authentication type %d", binary.BigEndian.Uint32(body[0:4]))
	}
}

// WriteMessage encodes a frontend message and writes it to w in a single
// Write call.
func WriteMessage(w io.Writer, msg pgproto3.FrontendMessage) error {
	buf, err := msg.Encode(nil)
	if err != nil {
		return fmt.Errorf("encode %T: %w", msg, err)
	}
	_, err = w.Write(buf)
	return err
}
