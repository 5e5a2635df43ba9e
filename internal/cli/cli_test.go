package cli_test

import (
	"bytes"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/omochice/syncws/internal/cli"
	"github.com/omochice/syncws/internal/peer"
)

func serve(t *testing.T, cfg peer.Config) string {
	t.Helper()

	p := peer.New(cfg, peer.Hooks{}, zerolog.Nop())
	server := httptest.NewServer(p.Handler())
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := cli.NewRootCommand(stdin, &stdout, &stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), err
}

func TestConnect_RecordAndReplay(t *testing.T) {
	url := serve(t, peer.Config{Greeting: []string{"hello", "world"}, CloseAfterGreeting: true})
	record := filepath.Join(t.TempDir(), "session.pb")

	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { stdinWriter.Close() })

	out, err := execute(t, stdin, "connect", url, "--record", record, "--log-level", "error")
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	for _, want := range []string{"< hello\n< world\n", "Server closed the connection"} {
		if !strings.Contains(out, want) {
			t.Errorf("connect output = %q, want it to contain %q", out, want)
		}
	}

	out, err = execute(t, strings.NewReader(""), "replay", record)
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("replay printed %d lines, want 2: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "1\t") || !strings.HasSuffix(lines[0], "\thello") {
		t.Errorf("first replay line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2\t") || !strings.HasSuffix(lines[1], "\tworld") {
		t.Errorf("second replay line = %q", lines[1])
	}
}

func TestConnect_Quit(t *testing.T) {
	for _, engine := range []string{"gobwas", "gorilla", "nhooyr"} {
		t.Run(engine, func(t *testing.T) {
			url := serve(t, peer.Config{})

			out, err := execute(t, strings.NewReader("quit\n"), "connect", url, "--engine", engine, "--log-level", "error")
			if err != nil {
				t.Fatalf("connect error = %v", err)
			}
			if !strings.Contains(out, "Disconnected from server") {
				t.Errorf("connect output = %q, want disconnect notice", out)
			}
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := execute(t, strings.NewReader(""), "connect", "ws://127.0.0.1:1/", "--log-level", "error")
	if err == nil {
		t.Fatal("expected connect error")
	}
}

func TestConnect_UnknownEngine(t *testing.T) {
	_, err := execute(t, strings.NewReader(""), "connect", "ws://127.0.0.1:1/", "--engine", "smoke-signals")
	if err == nil || !strings.Contains(err.Error(), "unknown transport engine") {
		t.Errorf("connect error = %v, want unknown engine", err)
	}
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, strings.NewReader(""), "replay", "missing.pb", "--log-level", "chatty")
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("error = %v, want invalid log level", err)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := execute(t, strings.NewReader(""), "replay", filepath.Join(t.TempDir(), "missing.pb"))
	if err == nil {
		t.Error("expected error for missing transcript")
	}
}
