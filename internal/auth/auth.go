// Package auth provides the seller session credentials used for the shop API
// and the subscription socket.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrNoToken is returned when neither a token nor a token file is configured.
var ErrNoToken = errors.New("access token is required")

// Session holds the bearer access token of the logged-in seller.
type Session struct {
	AccessToken string
}

// LoadSession builds a Session from an inline token, or from tokenPath when
// the inline token is empty.
func LoadSession(token, tokenPath string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token != "" {
		return &Session{AccessToken: token}, nil
	}
	if tokenPath == "" {
		return nil, ErrNoToken
	}

	t, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Session{AccessToken: t}, nil
}

// LoadToken reads a token file. Surrounding whitespace is ignored.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// Authorize sets the Authorization header on req. A nil session is a no-op.
func (s *Session) Authorize(req *http.Request) {
	if s == nil || s.AccessToken == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)
}

// Header returns the headers for the websocket handshake.
func (s *Session) Header() http.Header {
	h := http.Header{}
	if s != nil && s.AccessToken != "" {
		h.Set("Authorization", "Bearer "+s.AccessToken)
	}
	return h
}
