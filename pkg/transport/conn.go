package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a client connection carrying protocol messages and raw payloads.
type Conn interface {
	// Readable reports whether at least one byte can be read without
	// blocking, waiting at most timeout. It does not consume input.
	Readable(timeout time.Duration) (bool, error)

	// ReceiveMessage reads one framed message into m.
	ReceiveMessage(m protocol.Message) error

	// SendMessage writes m as one framed message.
	SendMessage(m protocol.Message) error

	// ReceiveBytes reads exactly n raw bytes.
	ReceiveBytes(n int) ([]byte, error)

	// SendBytes writes b as a raw payload.
	SendBytes(b []byte) error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string

	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// readError classifies a failed read as peer-closed or socket failure.
func readError(err error) error {
	if blerrors.KindOf(err) != "" {
		return err
	}
	if isClosed(err) {
		return blerrors.New("B201").Wrap(err)
	}
	return blerrors.New("B202").Wrap(err)
}

func writeError(err error) error {
	if isClosed(err) {
		return blerrors.New("B201").Wrap(err)
	}
	return blerrors.New("B203").Wrap(err)
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrClosed)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// receiveMessage reads a frame from r and decodes it. Framing failures are
// transport errors; decoding failures are protocol errors.
func receiveMessage(r io.Reader, m protocol.Message) error {
	payload, err := protocol.ReadFrame(r)
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return blerrors.New("B102").Wrap(err)
		}
		return readError(err)
	}
	if err := protocol.Unmarshal(payload, m); err != nil {
		return blerrors.New("B102").Wrap(err)
	}
	return nil
}
