package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

func newPipe(t *testing.T) (*StreamConn, *StreamConn) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := NewStreamConn(a), NewStreamConn(b)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestStreamReadableTimeout(t *testing.T) {
	server, _ := newPipe(t)

	start := time.Now()
	ok, err := server.Readable(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("Readable() error = %v", err)
	}
	if ok {
		t.Error("Readable() = true with no input")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Readable() returned before the timeout")
	}
}

func TestStreamMessageRoundTrip(t *testing.T) {
	server, client := newPipe(t)

	sent := &protocol.ClientMessage{Type: protocol.MsgQueryBound, StringValue: "volume"}
	errc := make(chan error, 1)
	go func() { errc <- client.SendMessage(sent) }()

	ok, err := server.Readable(time.Second)
	if err != nil || !ok {
		t.Fatalf("Readable() = %v, %v; want true, nil", ok, err)
	}
	// Readable must not consume input.
	ok, err = server.Readable(0)
	if err != nil || !ok {
		t.Fatalf("second Readable() = %v, %v; want true, nil", ok, err)
	}

	var got protocol.ClientMessage
	if err := server.ReceiveMessage(&got); err != nil {
		t.Fatalf("ReceiveMessage() error = %v", err)
	}
	if got != *sent {
		t.Errorf("ReceiveMessage() = %+v, want %+v", got, *sent)
	}
	if err := <-errc; err != nil {
		t.Errorf("SendMessage() error = %v", err)
	}
}

func TestStreamRawBytes(t *testing.T) {
	server, client := newPipe(t)

	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 5000)
	go func() {
		// Two writes must arrive as one contiguous run.
		client.SendBytes(payload[:7])
		client.SendBytes(payload[7:])
	}()

	got, err := server.ReceiveBytes(len(payload))
	if err != nil {
		t.Fatalf("ReceiveBytes() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("ReceiveBytes() payload mismatch")
	}
}

func TestStreamPeerClosed(t *testing.T) {
	server, client := newPipe(t)
	client.Close()

	_, err := server.Readable(time.Second)
	if !blerrors.Is(err, blerrors.KindTransport) {
		t.Errorf("Readable() error = %v, want transport error", err)
	}

	var msg protocol.ClientMessage
	if err := server.ReceiveMessage(&msg); !blerrors.Is(err, blerrors.KindTransport) {
		t.Errorf("ReceiveMessage() error = %v, want transport error", err)
	}
}

func TestStreamSendAfterClose(t *testing.T) {
	server, _ := newPipe(t)
	server.Close()
	if err := server.SendBytes([]byte{1}); !blerrors.Is(err, blerrors.KindTransport) {
		t.Errorf("SendBytes() error = %v, want transport error", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestStreamMalformedMessage(t *testing.T) {
	server, client := newPipe(t)

	go client.SendBytes(protocol.EncodeFrame([]byte{0x01, 0x02}))

	var msg protocol.ClientMessage
	err := server.ReceiveMessage(&msg)
	if !blerrors.Is(err, blerrors.KindProtocol) {
		t.Errorf("ReceiveMessage() error = %v, want protocol error", err)
	}
}
