package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carenav/carenav/engine/lifecycle"
)

// reply is the part of the /api/chat response the terminal renders.
type reply struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Specialist string `json:"specialist"`
	Degraded   bool   `json:"degraded"`
}

// apiClient talks to a running carenav API server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

// Ask sends one message. Degraded answers come back without an error so
// the service message can be shown; a rejected message returns the
// server's reason.
func (c *apiClient) Ask(ctx context.Context, id, message string) (reply, error) {
	var out reply
	err := c.do(ctx, http.MethodPost, "/api/chat", map[string]string{"id": id, "message": message}, &out,
		http.StatusOK, http.StatusServiceUnavailable)
	return out, err
}

// Rebuild asks the server to refresh its index and waits for the outcome.
func (c *apiClient) Rebuild(ctx context.Context) (lifecycle.RebuildReply, error) {
	var out lifecycle.RebuildReply
	err := c.do(ctx, http.MethodPost, "/api/index/rebuild", nil, &out,
		http.StatusOK, http.StatusConflict, http.StatusInternalServerError)
	return out, err
}

// Examples fetches the suggested prompts.
func (c *apiClient) Examples(ctx context.Context) ([]string, error) {
	var out struct {
		Examples []string `json:"examples"`
	}
	err := c.do(ctx, http.MethodGet, "/api/examples", nil, &out, http.StatusOK)
	return out.Examples, err
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			return nil
		}
	}
	var e struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return errors.New(e.Error)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
