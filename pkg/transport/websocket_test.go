package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// startWebSocket returns the server side Conn and the raw client socket.
func startWebSocket(t *testing.T) (*WebSocketConn, *websocket.Conn) {
	t.Helper()

	conns := make(chan *WebSocketConn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		conns <- NewWebSocketConn(ws)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c, client
	case <-time.After(5 * time.Second):
		t.Fatal("server did not accept the connection")
		return nil, nil
	}
}

func TestWebSocketSplitFrame(t *testing.T) {
	server, client := startWebSocket(t)

	if ok, err := server.Readable(10 * time.Millisecond); ok || err != nil {
		t.Fatalf("Readable() = %v, %v; want false, nil", ok, err)
	}

	frame := protocol.EncodeFrame(protocol.Marshal(&protocol.ClientMessage{
		Type:      protocol.MsgHello,
		UintValue: protocol.Version,
	}))
	// A frame split across messages must reassemble.
	if err := client.WriteMessage(websocket.BinaryMessage, frame[:3]); err != nil {
		t.Fatal(err)
	}
	if err := client.WriteMessage(websocket.BinaryMessage, frame[3:]); err != nil {
		t.Fatal(err)
	}

	ok, err := server.Readable(time.Second)
	if err != nil || !ok {
		t.Fatalf("Readable() = %v, %v; want true, nil", ok, err)
	}

	var msg protocol.ClientMessage
	if err := server.ReceiveMessage(&msg); err != nil {
		t.Fatalf("ReceiveMessage() error = %v", err)
	}
	if msg.Type != protocol.MsgHello || msg.UintValue != protocol.Version {
		t.Errorf("ReceiveMessage() = %+v", msg)
	}
}

func TestWebSocketSend(t *testing.T) {
	server, client := startWebSocket(t)

	if err := server.SendMessage(&protocol.HelloResult{Success: true}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	typ, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client ReadMessage() error = %v", err)
	}
	if typ != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", typ)
	}

	var res protocol.HelloResult
	if err := protocol.Unmarshal(data[protocol.FrameHeaderSize:], &res); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !res.Success {
		t.Error("HelloResult.Success = false")
	}
}

func TestWebSocketPeerClosed(t *testing.T) {
	server, client := startWebSocket(t)
	client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	client.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := server.Readable(50 * time.Millisecond)
		if err != nil {
			if !blerrors.Is(err, blerrors.KindTransport) {
				t.Errorf("Readable() error = %v, want transport error", err)
			}
			return
		}
	}
	t.Error("Readable() never reported the closed peer")
}
