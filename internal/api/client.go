package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/logger"
	"github.com/sesmanagement/discussions/internal/models"
)

const (
	chatUsersPath = "/messages/chat-users"
	historyPath   = "/messages/history/"
	sendPath      = "/messages/send"

	maxBodyBytes = 4 << 20
)

var log = logger.New("api")

// Client talks to the discussion REST endpoints on behalf of one user
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client, e.g. to set a timeout or a test transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a REST client; every request carries the provider's bearer token
func NewClient(baseURL string, tokens auth.TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatUsers fetches the roster in server order
func (c *Client) ChatUsers(ctx context.Context) ([]models.Contact, error) {
	var body models.RosterResponse
	if status, err := c.do(ctx, http.MethodGet, chatUsersPath, nil, &body); err != nil {
		return nil, &FetchError{Op: "chat users", Status: status, Err: err}
	}
	if body.Users == nil {
		body.Users = []models.Contact{}
	}
	return body.Users, nil
}

// History fetches every message exchanged with contactID
func (c *Client) History(ctx context.Context, contactID string) ([]models.Message, error) {
	var body models.HistoryResponse
	path := historyPath + url.PathEscape(contactID)
	if status, err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, &FetchError{Op: "history " + contactID, Status: status, Err: err}
	}
	if body.Messages == nil {
		body.Messages = []models.Message{}
	}
	return body.Messages, nil
}

// SendMessage submits a message and returns the backend's canonical record
func (c *Client) SendMessage(ctx context.Context, req models.SendRequest) (*models.Message, error) {
	var body models.SendResponse
	status, err := c.do(ctx, http.MethodPost, sendPath, req, &body)
	if err != nil {
		return nil, &SendError{Status: status, Reason: body.Error, Err: err}
	}
	if !body.Success || body.Message == nil {
		reason := body.Error
		if reason == "" {
			reason = "backend did not accept the message"
		}
		return nil, &SendError{Status: status, Reason: reason}
	}
	return body.Message, nil
}

// do performs one JSON round trip; the returned status is 0 when no response arrived
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return 0, err
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The backend's error body uses the same "error" key on every route.
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		if se, ok := out.(*models.SendResponse); ok {
			se.Error = e.Error
		}
		if e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, e.Error)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
