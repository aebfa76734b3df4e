package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skiff/internal/config"
	"skiff/internal/services"
	"skiff/internal/tasks"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cfg := config.Default()
	return New(&cfg, nil)
}

func TestDownloadGeneric(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "Mozilla") {
			t.Errorf("missing browser user agent, got %q", got)
		}
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	out := filepath.Join(t.TempDir(), "file.bin")
	if err := f.Download(context.Background(), srv.URL+"/file.bin", out, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("payload mismatch, got %d bytes", len(data))
	}
}

func TestDownloadNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	err := f.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "f"), nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestDownloadEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 8192))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Fetch.MaxBytes = 1024
	f := New(&cfg, nil)

	err := f.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "f"), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDownloadHonoursCancelToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	registry := tasks.NewRegistry()
	token := registry.Register(1)
	token.Cancel()

	f := newTestFetcher(t)
	err := f.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "f"), token)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestDownloadDriveDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "abc123" {
			t.Errorf("unexpected id %q", r.URL.Query().Get("id"))
		}
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mkv"`)
		fmt.Fprint(w, "drive-bytes")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	f.baseURL = srv.URL

	out := filepath.Join(t.TempDir(), "movie.mkv")
	url := "https://drive.google.com/file/d/abc123/view"
	if err := f.Download(context.Background(), url, out, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "drive-bytes" {
		t.Fatalf("got %q", data)
	}
}

func TestDownloadDriveConfirmFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "tok_1" {
			w.Header().Set("Content-Disposition", `attachment`)
			fmt.Fprint(w, "large-file")
			return
		}
		fmt.Fprint(w, `<a href="/uc?export=download&confirm=tok_1&id=abc123">Download anyway</a>`)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	f.baseURL = srv.URL

	out := filepath.Join(t.TempDir(), "large.bin")
	if err := f.Download(context.Background(), "https://drive.google.com/open?id=abc123", out, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "large-file" {
		t.Fatalf("got %q", data)
	}
}

func TestDownloadDriveNotPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>Sign in required</html>")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	f.baseURL = srv.URL

	err := f.Download(context.Background(), "https://drive.google.com/open?id=abc123",
		filepath.Join(t.TempDir(), "f"), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDownloadDriveMissingID(t *testing.T) {
	f := newTestFetcher(t)
	err := f.Download(context.Background(), "https://drive.google.com/drive/folders",
		filepath.Join(t.TempDir(), "f"), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestExtractDriveID(t *testing.T) {
	cases := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://drive.google.com/file/d/1A_b-C/view", "1A_b-C", true},
		{"https://drive.google.com/open?id=xyz", "xyz", true},
		{"https://drive.google.com/uc?export=download&id=qrs", "qrs", true},
		{"https://drive.google.com/drive/my-drive", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractDriveID(tc.url)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ExtractDriveID(%q) = %q, %v; want %q, %v", tc.url, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsDriveURL(t *testing.T) {
	if !IsDriveURL("https://docs.google.com/uc?id=1") {
		t.Fatal("docs.google.com should count as Drive")
	}
	if IsDriveURL("https://example.com/video.mp4") {
		t.Fatal("plain host misdetected as Drive")
	}
}

func TestFilenameFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/path/video.mkv?sig=abc", "video.mkv"},
		{"https://example.com/some:odd*name.mp4", "some_odd_name.mp4"},
		{"https://example.com/archive.rar", "archive.rar.mp4"},
	}
	for _, tc := range cases {
		if got := FilenameFromURL(tc.url); got != tc.want {
			t.Errorf("FilenameFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
