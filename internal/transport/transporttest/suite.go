// Package transporttest holds behaviour tests every transport engine must pass.
package transporttest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omochice/syncws/internal/peer"
	"github.com/omochice/syncws/internal/transport"
)

// Run exercises engine against an in-process peer.
func Run(t *testing.T, engine transport.Engine) {
	t.Run("ReceivesGreetingInOrder", func(t *testing.T) { testReceivesGreetingInOrder(t, engine) })
	t.Run("WriteTextAndClose", func(t *testing.T) { testWriteTextAndClose(t, engine) })
	t.Run("WriteAfterClose", func(t *testing.T) { testWriteAfterClose(t, engine) })
	t.Run("DialUnreachable", func(t *testing.T) { testDialUnreachable(t, engine) })
	t.Run("DropsBinaryKeepsOrder", func(t *testing.T) { testDropsBinaryKeepsOrder(t, engine) })
	t.Run("ReadLimitPerMessage", func(t *testing.T) { testReadLimitPerMessage(t, engine) })
	t.Run("CloseBoundedByTimeout", func(t *testing.T) { testCloseBoundedByTimeout(t, engine) })
	t.Run("AbortUnblocksRun", func(t *testing.T) { testAbortUnblocksRun(t, engine) })
}

func opts() transport.DialOptions {
	return transport.DialOptions{
		HandshakeTimeout: 2 * time.Second,
		CloseTimeout:     2 * time.Second,
		ReadLimit:        1 << 20,
		Logger:           zerolog.Nop(),
	}
}

func serve(t *testing.T, cfg peer.Config, hooks peer.Hooks) string {
	t.Helper()

	p := peer.New(cfg, hooks, zerolog.Nop())
	server := httptest.NewServer(p.Handler())
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, engine transport.Engine, url string) transport.Session {
	t.Helper()

	session, err := engine.Dial(context.Background(), url, opts())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return session
}

func run(session transport.Session, onText func(string)) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- session.Run(onText)
	}()
	return done
}

func testReceivesGreetingInOrder(t *testing.T, engine transport.Engine) {
	want := []string{"one", "two", "three"}
	url := serve(t, peer.Config{Greeting: want, CloseAfterGreeting: true}, peer.Hooks{})

	session := dial(t, engine, url)

	var got []string
	done := run(session, func(text string) { got = append(got, text) })

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run() to return")
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("received messages mismatch (-want +got):\n%s", diff)
	}
}

func testWriteTextAndClose(t *testing.T, engine transport.Engine) {
	received := make(chan string, 1)
	closed := make(chan int, 1)
	url := serve(t, peer.Config{}, peer.Hooks{
		OnMessage: func(text string) { received <- text },
		OnClose:   func(code int) { closed <- code },
	})

	session := dial(t, engine, url)
	done := run(session, func(string) {})

	if session.RemoteAddr() == "" {
		t.Error("RemoteAddr() returned empty string")
	}

	if err := session.WriteText(context.Background(), "ping"); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}

	select {
	case text := <-received:
		if text != "ping" {
			t.Errorf("peer received %q, want %q", text, "ping")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := session.Close(""); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run() to return")
	}

	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("peer close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for peer close")
	}
}

func testWriteAfterClose(t *testing.T, engine transport.Engine) {
	url := serve(t, peer.Config{}, peer.Hooks{})

	session := dial(t, engine, url)
	done := run(session, func(string) {})

	if err := session.Close(""); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	<-done

	if err := session.WriteText(context.Background(), "late"); err == nil {
		t.Error("expected error when writing after Close()")
	}
}

func testDialUnreachable(t *testing.T, engine transport.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := engine.Dial(ctx, "ws://127.0.0.1:1/", opts())
	if err == nil {
		t.Fatal("expected dial error for unreachable target")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Dial() took %v, expected to fail fast", elapsed)
	}
}

// serveFunc upgrades every request with a 1KB write buffer, so longer
// messages go out fragmented, and hands the connection to fn. The connection
// is closed once fn returns and the test has finished.
func serveFunc(t *testing.T, fn func(conn *websocket.Conn)) string {
	t.Helper()

	done := make(chan struct{})
	upgrader := websocket.Upgrader{WriteBufferSize: 1024}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		fn(conn)
		<-done
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(done) })

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitRun(t *testing.T, done <-chan error, within time.Duration) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(within):
		t.Fatalf("Run() did not return within %v", within)
		return nil
	}
}

func testDropsBinaryKeepsOrder(t *testing.T, engine transport.Engine) {
	large := strings.Repeat("x", 100000)
	url := serveFunc(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("a"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0xff, 0x10})
		conn.WriteMessage(websocket.TextMessage, []byte(large))
		conn.WriteMessage(websocket.TextMessage, []byte("b"))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	session := dial(t, engine, url)

	var got []string
	done := run(session, func(text string) { got = append(got, text) })

	if err := waitRun(t, done, 3*time.Second); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	want := []string{"a", large, "b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("received messages mismatch (-want +got):\n%s", diff)
	}
}

func testReadLimitPerMessage(t *testing.T, engine transport.Engine) {
	url := serveFunc(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("small"))
		conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("y", 10000)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	o := opts()
	o.ReadLimit = 4096
	session, err := engine.Dial(context.Background(), url, o)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	var got []string
	done := run(session, func(text string) { got = append(got, text) })

	if err := waitRun(t, done, 3*time.Second); err == nil {
		t.Error("expected Run() to fail on a message over the read limit")
	}

	if diff := cmp.Diff([]string{"small"}, got); diff != "" {
		t.Errorf("received messages mismatch (-want +got):\n%s", diff)
	}
}

func testCloseBoundedByTimeout(t *testing.T, engine transport.Engine) {
	// The server never reads, so the close frame is never answered.
	url := serveFunc(t, func(conn *websocket.Conn) {})

	o := opts()
	o.CloseTimeout = 300 * time.Millisecond
	session, err := engine.Dial(context.Background(), url, o)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	done := run(session, func(string) {})

	start := time.Now()
	if err := session.Close(""); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Close() blocked for %v", elapsed)
	}

	waitRun(t, done, 2*time.Second)
}

func testAbortUnblocksRun(t *testing.T, engine transport.Engine) {
	url := serveFunc(t, func(conn *websocket.Conn) {})

	session := dial(t, engine, url)
	done := run(session, func(string) {})

	start := time.Now()
	session.Abort()

	waitRun(t, done, time.Second)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Run() took %v to return after Abort()", elapsed)
	}
}
