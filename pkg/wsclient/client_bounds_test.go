package wsclient_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/omochice/syncws/pkg/wsclient"
)

// serveConn upgrades every request, hands the connection to fn and keeps it
// open until the test ends. The 1KB write buffer fragments longer messages.
func serveConn(t *testing.T, fn func(conn *websocket.Conn)) string {
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

// serveStalled accepts TCP connections and never answers the handshake.
func serveStalled(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	conns := make(chan net.Conn, 8)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		for {
			select {
			case conn := <-conns:
				conn.Close()
			default:
				return
			}
		}
	})

	return "ws://" + listener.Addr().String() + "/"
}

func TestClient_CloseContextExpires(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine string) {
		// The server never reads, so the close frame is never answered.
		url := serveConn(t, func(conn *websocket.Conn) {})

		client := newClient(t, engine)
		if err := client.Connect(url); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		if err := client.CloseContext(ctx); err != nil {
			t.Errorf("CloseContext() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("CloseContext() took %v, want it bounded by its context", elapsed)
		}

		if client.IsConnected() {
			t.Error("expected IsConnected() to be false after CloseContext()")
		}
		if msg, ok := client.Receive(); ok {
			t.Errorf("Receive() after CloseContext() = %q, want nothing", msg)
		}
	})
}

func TestClient_ConnectContextCancelled(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine string) {
		url := serveStalled(t)

		opts := wsclient.DefaultOptions()
		opts.Engine = engine
		opts.HandshakeTimeout = 10 * time.Second
		client, err := wsclient.New(opts)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		err = client.ConnectContext(ctx, url)

		var connErr *wsclient.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("ConnectContext() error = %v, want *ConnectionError", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("ConnectContext() took %v, want it bounded by its context", elapsed)
		}
		if client.IsConnected() {
			t.Error("expected IsConnected() to be false after cancelled connect")
		}
		if got := client.State(); got != wsclient.StateClosed {
			t.Errorf("State() = %v, want %v", got, wsclient.StateClosed)
		}
	})
}

func TestClient_SendBounded(t *testing.T) {
	payload := strings.Repeat("z", 1<<20)

	tests := []struct {
		name         string
		writeTimeout time.Duration
		ctxTimeout   time.Duration
	}{
		{name: "WriteTimeout", writeTimeout: 200 * time.Millisecond},
		{name: "SendContext", ctxTimeout: 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachEngine(t, func(t *testing.T, engine string) {
				// Nothing is read, so socket buffers fill and writes stall.
				url := serveConn(t, func(conn *websocket.Conn) {})

				opts := wsclient.DefaultOptions()
				opts.Engine = engine
				opts.CloseTimeout = 500 * time.Millisecond
				opts.WriteTimeout = tt.writeTimeout
				client, err := wsclient.New(opts)
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				t.Cleanup(func() {
					ctx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					client.CloseContext(ctx)
				})

				if err := client.Connect(url); err != nil {
					t.Fatalf("Connect() error = %v", err)
				}

				var sendErr error
				for i := 0; i < 256 && sendErr == nil; i++ {
					ctx := context.Background()
					var cancel context.CancelFunc = func() {}
					if tt.ctxTimeout > 0 {
						ctx, cancel = context.WithTimeout(ctx, tt.ctxTimeout)
					}

					start := time.Now()
					sendErr = client.SendContext(ctx, payload)
					cancel()

					if elapsed := time.Since(start); elapsed > 2*time.Second {
						t.Fatalf("SendContext() blocked for %v", elapsed)
					}
				}

				var transportErr *wsclient.TransportError
				if !errors.As(sendErr, &transportErr) {
					t.Errorf("SendContext() error = %v, want *TransportError", sendErr)
				}
			})
		})
	}
}

func TestClient_DropsBinaryKeepsOrder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, engine string) {
		large := strings.Repeat("x", 100000)
		url := serveConn(t, func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.TextMessage, []byte("a"))
			conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
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

		client := newClient(t, engine)
		if err := client.Connect(url); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		var got []string
		for {
			msg, ok := client.Receive()
			if !ok {
				break
			}
			got = append(got, msg)
		}

		if diff := cmp.Diff([]string{"a", large, "b"}, got); diff != "" {
			t.Errorf("received messages mismatch (-want +got):\n%s", diff)
		}
	})
}
