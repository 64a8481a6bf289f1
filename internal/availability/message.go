package availability

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// headerSize is the size of the code and payload length fields.
const headerSize = 8

// MaxMessageSize bounds the payload accepted by ReadMessage.
const MaxMessageSize = 64 << 20

// ErrMessageTooLarge is returned for payloads above MaxMessageSize.
var ErrMessageTooLarge = errors.New("availability: message too large")

// Message is one IPC message: a code followed by an opaque payload.
type Message struct {
	Code Code
	Data []byte
}

// WriteMessage writes m as code, payload size and payload, integers in
// little-endian byte order.
func WriteMessage(w io.Writer, m Message) error {
	if len(m.Data) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, headerSize+len(m.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Code))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(m.Data)))
	copy(buf[headerSize:], m.Data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Code, err)
	}
	return nil
}

// ReadMessage reads one message written by WriteMessage.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	m := Message{Code: Code(binary.LittleEndian.Uint32(header[0:4]))}
	size := binary.LittleEndian.Uint32(header[4:8])
	if size > MaxMessageSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}
	if size == 0 {
		return m, nil
	}

	m.Data = make([]byte, size)
	if _, err := io.ReadFull(r, m.Data); err != nil {
		return Message{}, fmt.Errorf("failed to read %s payload: %w", m.Code, err)
	}
	return m, nil
}
