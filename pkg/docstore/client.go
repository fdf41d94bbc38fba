// Package docstore implements tradelog.RemoteStore against an HTTP document
// API with WebSocket change feeds.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tradelog/pkg/tradelog"
)

// maxResponseSize limits document API responses to 4MB.
const maxResponseSize = 4 << 20

var (
	// ErrCircuitOpen is returned while the client is cooling down after
	// repeated failures.
	ErrCircuitOpen = errors.New("docstore: circuit open")
	// errNotFound marks a 404 response.
	errNotFound = errors.New("docstore: not found")
)

// StatusError is a non-2xx response from the document API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("docstore: http status %d", e.Code)
	}
	return fmt.Sprintf("docstore: http status %d: %s", e.Code, e.Body)
}

// HTTPDoer is an interface for making HTTP requests. It enables dependency
// injection for testing without network calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Token          string
	Logger         *slog.Logger
	HTTPClient     HTTPDoer
	Dialer         *websocket.Dialer
	Timeout        time.Duration
	FailThreshold  int
	FailWindow     time.Duration
	Cooldown       time.Duration
	ReconnectDelay time.Duration
}

// Client talks to the document API. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	token     string
	clientID  string
	logger    *slog.Logger
	client    HTTPDoer
	dialer    *websocket.Dialer
	reconnect time.Duration

	failThreshold int
	failWindow    time.Duration
	cooldown      time.Duration

	circuitMu     sync.Mutex
	failCount     int
	firstFailAt   time.Time
	cooldownUntil time.Time
}

var _ tradelog.RemoteStore = (*Client)(nil)

// New returns a client for the API rooted at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %q", opts.BaseURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultDuration(opts.Timeout, 10*time.Second)}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: defaultDuration(opts.Timeout, 10*time.Second)}
	}
	return &Client{
		base:          base,
		token:         opts.Token,
		clientID:      uuid.NewString(),
		logger:        logger,
		client:        client,
		dialer:        dialer,
		reconnect:     defaultDuration(opts.ReconnectDelay, 2*time.Second),
		failThreshold: defaultInt(opts.FailThreshold, 3),
		failWindow:    defaultDuration(opts.FailWindow, 60*time.Second),
		cooldown:      defaultDuration(opts.Cooldown, 30*time.Second),
	}, nil
}

// ClientID identifies this process to the backend.
func (c *Client) ClientID() string {
	return c.clientID
}

type idsPayload struct {
	IDs []string `json:"ids"`
}

type documentsPayload struct {
	Documents map[string]tradelog.Record `json:"documents"`
}

func (c *Client) GetDocument(ctx context.Context, uid, date string) (*tradelog.Record, error) {
	var rec tradelog.Record
	err := c.do(ctx, http.MethodGet, c.docPath(uid, date), nil, &rec)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) SetDocument(ctx context.Context, uid, date string, rec tradelog.Record) error {
	return c.do(ctx, http.MethodPut, c.docPath(uid, date), rec, nil)
}

func (c *Client) DeleteDocument(ctx context.Context, uid, date string) error {
	err := c.do(ctx, http.MethodDelete, c.docPath(uid, date), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (c *Client) ListDocuments(ctx context.Context, uid string) ([]string, error) {
	var out idsPayload
	if err := c.do(ctx, http.MethodGet, c.collectionPath(uid), nil, &out); err != nil {
		return nil, err
	}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	return out.IDs, nil
}

func (c *Client) GetDocuments(ctx context.Context, uid string, dates []string) (map[string]tradelog.Record, error) {
	if len(dates) > tradelog.MaxBatchKeys {
		return nil, fmt.Errorf("docstore: batch of %d exceeds %d keys", len(dates), tradelog.MaxBatchKeys)
	}
	if len(dates) == 0 {
		return map[string]tradelog.Record{}, nil
	}
	var out documentsPayload
	if err := c.do(ctx, http.MethodPost, c.collectionPath(uid)+":batchGet", idsPayload{IDs: dates}, &out); err != nil {
		return nil, err
	}
	if out.Documents == nil {
		out.Documents = map[string]tradelog.Record{}
	}
	return out.Documents, nil
}

func (c *Client) docPath(uid, date string) string {
	return c.collectionPath(uid) + "/" + url.PathEscape(date)
}

func (c *Client) collectionPath(uid string) string {
	return "/users/" + url.PathEscape(uid) + "/journals"
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("X-Client-ID", c.clientID)
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.available() {
		return ErrCircuitOpen
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header = c.headers()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure()
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.recordSuccess()
		return errNotFound
	case resp.StatusCode >= 500:
		c.recordFailure()
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.recordSuccess()
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	c.recordSuccess()

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) available() bool {
	c.circuitMu.Lock()
	defer c.circuitMu.Unlock()
	return time.Now().After(c.cooldownUntil)
}

func (c *Client) recordFailure() {
	c.circuitMu.Lock()
	defer c.circuitMu.Unlock()
	now := time.Now()
	if c.failCount == 0 || now.Sub(c.firstFailAt) > c.failWindow {
		c.failCount = 0
		c.firstFailAt = now
	}
	c.failCount++
	if c.failCount >= c.failThreshold {
		c.cooldownUntil = now.Add(c.cooldown)
		c.logger.Warn("docstore circuit opened", "failures", c.failCount, "cooldown", c.cooldown)
	}
}

func (c *Client) recordSuccess() {
	c.circuitMu.Lock()
	defer c.circuitMu.Unlock()
	c.failCount = 0
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
