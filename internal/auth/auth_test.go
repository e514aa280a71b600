package auth

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSession_InlineToken(t *testing.T) {
	s, err := LoadSession("  abc123  ", "/does/not/matter")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if s.AccessToken != "abc123" {
		t.Errorf("AccessToken = %q, want %q", s.AccessToken, "abc123")
	}
}

func TestLoadSession_TokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("file-token\n"), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	s, err := LoadSession("", path)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if s.AccessToken != "file-token" {
		t.Errorf("AccessToken = %q, want %q", s.AccessToken, "file-token")
	}
}

func TestLoadSession_NoToken(t *testing.T) {
	_, err := LoadSession("", "")
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestLoadToken_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("   \n"), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	if _, err := LoadToken(path); err == nil {
		t.Error("expected error for empty token file")
	}
}

func TestLoadToken_Missing(t *testing.T) {
	if _, err := LoadToken(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSession_Authorize(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://localhost/api/shop/subscription", nil)

	(&Session{AccessToken: "tok"}).Authorize(req)
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}

	req2, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	var nilSession *Session
	nilSession.Authorize(req2)
	if got := req2.Header.Get("Authorization"); got != "" {
		t.Errorf("nil session set Authorization = %q", got)
	}
}

func TestSession_Header(t *testing.T) {
	h := (&Session{AccessToken: "ws"}).Header()
	if h.Get("Authorization") != "Bearer ws" {
		t.Errorf("Header() Authorization = %q", h.Get("Authorization"))
	}

	var nilSession *Session
	if len(nilSession.Header()) != 0 {
		t.Error("nil session should produce empty header")
	}
}
