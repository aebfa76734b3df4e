package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"skiff/internal/config"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.WebBind = "127.0.0.1:0"

	srv := New(&cfg, nil)
	if srv == nil {
		t.Fatal("expected server for non-empty bind")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func TestRootReportsRunning(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Bot Running" {
		t.Fatalf("body = %q", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("status field = %q", payload["status"])
	}
}

func TestUnknownPathIs404(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDisabledWhenBindEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WebBind = ""
	if srv := New(&cfg, nil); srv != nil {
		t.Fatal("expected nil server for empty bind")
	}
	var srv *Server
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("nil start: %v", err)
	}
	srv.Stop()
}

func TestShutdownOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WebBind = "127.0.0.1:0"
	srv := New(&cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := srv.Addr()
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get("http://" + addr + "/"); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server still answering after context cancel")
}
