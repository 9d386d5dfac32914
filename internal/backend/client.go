// Package backend talks to the REST service that owns tasks, notes and
// WhatsApp-derived messages.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/config"
)

var ErrUnavailable = errors.New("backend unavailable")

// StatusError is a non-2xx answer the backend produced itself.
type StatusError struct {
	Status      int
	ContentType string
	Body        []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded with status %d", e.Status)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg *config.BackendConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) ListTasks(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/deadlines", nil)
}

func (c *Client) CreateTask(ctx context.Context, task json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/deadlines", task)
}

// ToggleTaskComplete flips completion on the task with the given name.
func (c *Client) ToggleTaskComplete(ctx context.Context, name string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, "/deadlines/"+url.PathEscape(name), nil)
}

func (c *Client) DeleteTask(ctx context.Context, name string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/deadlines/"+url.PathEscape(name), nil)
}

func (c *Client) ListNotes(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/notes", nil)
}

func (c *Client) ListImportantMessages(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/important-messages", nil)
}

func (c *Client) ListSimpleMessages(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/simpler-messages", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Error("Backend request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Error("Backend returned server error")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
			if json.Valid(payload) {
				contentType = "application/json"
			}
		}
		return nil, &StatusError{Status: resp.StatusCode, ContentType: contentType, Body: payload}
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrUnavailable)
	}

	return json.RawMessage(payload), nil
}
