package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// socketPair upgrades one real WebSocket connection and returns the server
// side wrapped in the adapter plus the raw client side.
func socketPair(t *testing.T) (*WebSocket, *websocket.Conn) {
	t.Helper()
	sockCh := make(chan *WebSocket, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		sockCh <- NewWebSocket(conn, SocketOptions{})
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case sock := <-sockCh:
		t.Cleanup(sock.Abort)
		return sock, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never upgraded")
		return nil, nil
	}
}

// receiveMessage drains fragments until one is marked final.
func receiveMessage(t *testing.T, sock *WebSocket) ([]byte, FrameKind) {
	t.Helper()
	buf := make([]byte, 8) // small on purpose, to force fragmented reads
	var msg []byte
	for {
		n, final, kind, err := sock.Receive(context.Background(), buf)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if kind == FrameClose {
			return nil, FrameClose
		}
		msg = append(msg, buf[:n]...)
		if final {
			return msg, kind
		}
	}
}

// TestWebSocketReceiveReassembles: one client message larger than the read
// buffer arrives as several fragments with only the last marked final.
func TestWebSocketReceiveReassembles(t *testing.T) {
	t.Parallel()

	sock, client := socketPair(t)
	payload := []byte("a message longer than the eight byte buffer")
	if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	msg, kind := receiveMessage(t, sock)
	if kind != FrameText {
		t.Errorf("kind = %v, want FrameText", kind)
	}
	if !bytes.Equal(msg, payload) {
		t.Errorf("message = %q, want %q", msg, payload)
	}
}

// TestWebSocketReceiveClose: the peer's close frame is reported as a close
// frame, not an error, and moves the state to closed.
func TestWebSocketReceiveClose(t *testing.T) {
	t.Parallel()

	sock, client := socketPair(t)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := client.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	_, _, kind, err := sock.Receive(context.Background(), make([]byte, 8))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if kind != FrameClose {
		t.Fatalf("kind = %v, want FrameClose", kind)
	}
	if got := sock.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

// TestWebSocketSendKinds: the frame kind maps to the WebSocket message type.
func TestWebSocketSendKinds(t *testing.T) {
	t.Parallel()

	sock, client := socketPair(t)
	if err := sock.Send(context.Background(), []byte("bin"), FrameBinary, true); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := sock.Send(context.Background(), []byte("txt"), FrameText, true); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := client.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || string(data) != "bin" {
		t.Fatalf("first message = (%d, %q, %v), want binary bin", mt, data, err)
	}
	mt, data, err = client.ReadMessage()
	if err != nil || mt != websocket.TextMessage || string(data) != "txt" {
		t.Fatalf("second message = (%d, %q, %v), want text txt", mt, data, err)
	}
}

// TestWebSocketCloseOutput: the close frame carries the status code to the
// peer and flips the state to closing.
func TestWebSocketCloseOutput(t *testing.T) {
	t.Parallel()

	sock, client := socketPair(t)
	if err := sock.CloseOutput(CloseInternalError, "kaput"); err != nil {
		t.Fatalf("CloseOutput() error = %v", err)
	}
	if got := sock.State(); got != StateClosing {
		t.Errorf("State() = %v, want closing", got)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	ce, ok := err.(*websocket.CloseError)
	if !ok || ce.Code != int(CloseInternalError) {
		t.Fatalf("ReadMessage() error = %v, want close 1011", err)
	}
}

// TestWebSocketAbortUnblocksReceive: a hard abort unblocks a pending read.
func TestWebSocketAbortUnblocksReceive(t *testing.T) {
	t.Parallel()

	sock, _ := socketPair(t)
	errCh := make(chan error, 1)
	go func() {
		_, _, _, err := sock.Receive(context.Background(), make([]byte, 8))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	sock.Abort()
	sock.Abort() // idempotent

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Receive() returned nil after abort")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Receive() still blocked after abort")
	}
	if got := sock.State(); got != StateAborted {
		t.Errorf("State() = %v, want aborted", got)
	}
}
