package wsclient_test

import (
	"errors"
	"testing"

	"github.com/omochice/syncws/internal/peer"
	"github.com/omochice/syncws/pkg/wsclient"
)

func TestHandle_LastReleaseCloses(t *testing.T) {
	closed := make(chan int, 1)
	url := serve(t, peer.Config{}, peer.Hooks{
		OnClose: func(code int) { closed <- code },
	})

	client := newClient(t, wsclient.EngineGobwas)
	if err := client.Connect(url); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	h := wsclient.NewHandle(client)
	if h.Client() != client {
		t.Fatal("Client() returned a different client")
	}
	if err := h.Retain(); err != nil {
		t.Fatalf("Retain() error = %v", err)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if !client.IsConnected() {
		t.Fatal("expected connection to stay open while a reference remains")
	}

	if err := h.Release(); err != nil {
		t.Fatalf("last Release() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("expected last Release() to close the connection")
	}
	if code := <-closed; code != 1000 {
		t.Errorf("peer close code = %d, want 1000", code)
	}
}

func TestHandle_UseAfterRelease(t *testing.T) {
	h := wsclient.NewHandle(newClient(t, wsclient.EngineGobwas))

	if err := h.Release(); err != nil {
		t.Fatalf("Release() on unconnected client error = %v", err)
	}
	if err := h.Release(); !errors.Is(err, wsclient.ErrHandleReleased) {
		t.Errorf("second Release() error = %v, want %v", err, wsclient.ErrHandleReleased)
	}
	if err := h.Retain(); !errors.Is(err, wsclient.ErrHandleReleased) {
		t.Errorf("Retain() error = %v, want %v", err, wsclient.ErrHandleReleased)
	}
}
