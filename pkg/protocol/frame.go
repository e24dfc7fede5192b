package protocol

import (
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the size of the length prefix in bytes.
const FrameHeaderSize = 4

// Frame errors.
var (
	ErrFrameTooLarge = errors.New("protocol: message body too large")
	ErrTrailingBytes = errors.New("protocol: trailing bytes after message")
)

// Message is implemented by every structured message.
type Message interface {
	// EncodeTo appends the message body to e.
	EncodeTo(e *Encoder)

	// DecodeFrom reads the message body from d.
	DecodeFrom(d *Decoder) error
}

// Marshal encodes a message body without the length prefix.
func Marshal(m Message) []byte {
	e := NewEncoder()
	m.EncodeTo(e)
	return e.Bytes()
}

// Unmarshal decodes a message body. The whole buffer must be consumed.
func Unmarshal(data []byte, m Message) error {
	d := NewDecoder(data)
	if err := m.DecodeFrom(d); err != nil {
		return fmt.Errorf("protocol: decode %T: %w", m, err)
	}
	if !d.EOF() {
		return fmt.Errorf("protocol: decode %T: %w", m, ErrTrailingBytes)
	}
	return nil
}

// EncodeFrame returns the length-prefixed encoding of payload.
func EncodeFrame(payload []byte) []byte {
	n := len(payload)
	buf := make([]byte, FrameHeaderSize+n)
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
	buf[3] = byte(n >> 24)
	copy(buf[FrameHeaderSize:], payload)
	return buf
}

// ReadFrame reads one length-prefixed message body from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := uint32(header[0]) | uint32(header[1])<<8 |
		uint32(header[2])<<16 | uint32(header[3])<<24
	if length > MaxMessageSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrFrameTooLarge
	}
	_, err := w.Write(EncodeFrame(payload))
	return err
}

// ReadMessage reads one framed message from r into m.
func ReadMessage(r io.Reader, m Message) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return Unmarshal(payload, m)
}

// WriteMessage writes m to w as one framed message.
func WriteMessage(w io.Writer, m Message) error {
	return WriteFrame(w, Marshal(m))
}
