// Package workspace is the client side of the document service: the
// document list a user navigates and the sync session behind an open
// editor. It talks to the service through Client.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/promptgist/promptgist/internal/document"
	"github.com/promptgist/promptgist/internal/document/service"
	"github.com/promptgist/promptgist/internal/realtime"
)

// Client is the part of the document API the workspace uses.
type Client interface {
	ListDocuments(ctx context.Context) ([]*document.Document, error)
	CreateDocument(ctx context.Context, in service.CreateInput) (*document.Document, error)
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	UpdateContent(ctx context.Context, id, content string, baseSeq int64) (*document.Document, error)
}

// HTTPClient calls the service's /api routes with a bearer token.
type HTTPClient struct {
	base  string
	token string
	hc    *http.Client
}

// NewHTTPClient returns a client for the service at base, e.g.
// "http://localhost:5001". hc may be nil.
func NewHTTPClient(base, token string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{base: strings.TrimRight(base, "/"), token: token, hc: hc}
}

// apiError is the service's error body; Current is set on stale writes.
type apiError struct {
	Error   string             `json:"error"`
	Current *document.Document `json:"current"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return statusError(resp.StatusCode, e)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError turns a response back into the document error it came from.
func statusError(code int, e apiError) error {
	msg := e.Error
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code == http.StatusConflict && e.Current != nil:
		return &document.StaleWriteError{Current: e.Current}
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", document.ErrConflict, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", document.ErrNotFound, msg)
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", document.ErrForbidden, msg)
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", document.ErrValidation, msg)
	default:
		return fmt.Errorf("document api: %d %s", code, msg)
	}
}

func docPath(id string) string { return "/documents/" + url.PathEscape(id) }

func (c *HTTPClient) ListDocuments(ctx context.Context) ([]*document.Document, error) {
	var out []*document.Document
	return out, c.do(ctx, http.MethodGet, "/documents", nil, &out)
}

func (c *HTTPClient) CreateDocument(ctx context.Context, in service.CreateInput) (*document.Document, error) {
	var out document.Document
	if err := c.do(ctx, http.MethodPost, "/documents", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var out document.Document
	if err := c.do(ctx, http.MethodGet, docPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, docPath(id), nil, nil)
}

func (c *HTTPClient) UpdateContent(ctx context.Context, id, content string, baseSeq int64) (*document.Document, error) {
	in := struct {
		Content string `json:"content"`
		BaseSeq int64  `json:"baseSeq"`
	}{content, baseSeq}
	var out document.Document
	if err := c.do(ctx, http.MethodPut, docPath(id)+"/content", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Live opens the document's change feed. The channel closes when ctx is
// done or the connection drops.
func (c *HTTPClient) Live(ctx context.Context, id string) (<-chan realtime.Event, error) {
	u, err := url.Parse(c.base + "/api" + docPath(id) + "/live")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("access_token", c.token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			var e apiError
			_ = json.NewDecoder(resp.Body).Decode(&e)
			resp.Body.Close()
			return nil, statusError(resp.StatusCode, e)
		}
		return nil, err
	}

	out := make(chan realtime.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var ev realtime.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
