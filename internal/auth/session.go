package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Credentials is the on-disk sign-in state.
type Credentials struct {
	RefreshToken string `toml:"refresh_token"`
	TokenURL     string `toml:"token_url"`
}

// FileSession exchanges the refresh token stored in a TOML credentials file
// for an access token. The file is re-read on every call so that sign-out
// (removing the file) takes effect immediately.
type FileSession struct {
	Path       string
	HTTPClient *http.Client
}

// NewFileSession returns a session backed by the credentials file at path.
func NewFileSession(path string) *FileSession {
	return &FileSession{
		Path:       path,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// LoadCredentials reads the credentials file. A missing file is ErrNoSession.
func LoadCredentials(path string) (*Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read credentials %s: %w", path, err)
	}
	if creds.RefreshToken == "" || creds.TokenURL == "" {
		return nil, ErrNoSession
	}
	return &creds, nil
}

// WriteCredentials stores credentials at path with owner-only permissions.
func WriteCredentials(path string, creds Credentials) error {
	if creds.RefreshToken == "" {
		return fmt.Errorf("refresh_token is required")
	}
	if creds.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// RemoveCredentials deletes the credentials file. A missing file is not an
// error.
func RemoveCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken implements Session.
func (s *FileSession) AccessToken(ctx context.Context) (string, error) {
	creds, err := LoadCredentials(s.Path)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: creds.RefreshToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	hc := s.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrNoSession
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token request: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return rr.AccessToken, nil
}
