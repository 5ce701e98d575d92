package main

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
)

const (
	defaultServer = "http://127.0.0.1:8080"
	defaultSocket = "/tmp/credbook.sock"

	// Error bodies larger than this are cut before being shown.
	maxErrorBody = 4 << 10
)

// cliConfig is what "auth login" persists for the following commands.
type cliConfig struct {
	Transport string `json:"transport"`
	Server    string `json:"server"`
	Socket    string `json:"socket"`
	Token     string `json:"token"`
}

func (c cliConfig) withDefaults() cliConfig {
	if c.Transport == "" {
		c.Transport = "uds"
	}
	if c.Server == "" {
		c.Server = defaultServer
	}
	if c.Socket == "" {
		c.Socket = defaultSocket
	}
	return c
}

// apiError is a non-2xx answer from the gate API. The server wraps every
// failure as {"error": "..."}; anything else is shown raw.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Status == http.StatusUnauthorized {
		return fmt.Sprintf("api error (%d): %s (run \"credbook auth login\")", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

func decodeAPIError(status int, body io.Reader) *apiError {
	payload, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var envelope struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(payload))
	if json.Unmarshal(payload, &envelope) == nil && envelope.Error != "" {
		msg = envelope.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &apiError{Status: status, Message: msg}
}

type apiClient struct {
	httpClient *http.Client
	server     string
	token      string
}

func newAPIClient(server, token string) *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		server:     strings.TrimRight(server, "/"),
		token:      token,
	}
}

func (c *apiClient) request(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, resp.Body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".credbook", "config.json"), nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	return readConfig(path)
}

// readConfig treats a missing file as "not logged in yet".
func readConfig(path string) (cliConfig, error) {
	var cfg cliConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg.withDefaults(), nil
	case err != nil:
		return cliConfig{}, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	return writeConfig(path, cfg)
}

func writeConfig(path string, cfg cliConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
