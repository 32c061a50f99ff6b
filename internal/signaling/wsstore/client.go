// internal/signaling/wsstore/client.go
package wsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/sirupsen/logrus"
)

// Frame is the JSON body of every websocket message the relay pushes.
type Frame struct {
	Doc     *models.SessionDoc `json:"doc,omitempty"`
	Deleted bool               `json:"deleted,omitempty"`
}

// CreateResponse is returned by the relay when a session is created.
type CreateResponse struct {
	Token string `json:"token"`
}

// PatchRequest is the body of a PATCH call.
type PatchRequest struct {
	Ops []signaling.Op `json:"ops"`
}

// Client implements signaling.Store against a running relay.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *logrus.Logger

	mu     sync.Mutex
	tokens map[string]string // host tokens for sessions this client created
}

// New returns a client for the relay at baseURL (e.g. http://localhost:8080).
func New(baseURL string, logger *logrus.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid relay url scheme %q", u.Scheme)
	}
	return &Client{
		base:   u,
		http:   http.DefaultClient,
		logger: logger,
		tokens: make(map[string]string),
	}, nil
}

func (c *Client) gameURL(id string) string {
	return c.base.String() + "/games/" + url.PathEscape(id)
}

func (c *Client) Create(ctx context.Context, id string, doc *models.SessionDoc) error {
	raw, err := signaling.EncodeDoc(doc)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, c.gameURL(id), raw, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}
	var created CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("decode create response: %w", err)
	}
	c.mu.Lock()
	c.tokens[id] = created.Token
	c.mu.Unlock()
	return nil
}

func (c *Client) Get(ctx context.Context, id string) (*models.SessionDoc, error) {
	resp, err := c.do(ctx, http.MethodGet, c.gameURL(id), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return signaling.DecodeDoc(raw)
}

func (c *Client) Apply(ctx context.Context, id string, ops ...signaling.Op) error {
	body, err := json.Marshal(PatchRequest{Ops: ops})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPatch, c.gameURL(id), body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp)
}

// Delete only works for sessions this client created.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	token := c.tokens[id]
	c.mu.Unlock()
	resp, err := c.do(ctx, http.MethodDelete, c.gameURL(id), nil, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.tokens, id)
	c.mu.Unlock()
	return nil
}

// Subscribe opens a websocket to the relay. The relay sends the current value
// on connect, so the first frame satisfies the Store contract.
func (c *Client) Subscribe(ctx context.Context, id string) (<-chan signaling.Snapshot, error) {
	wsURL := *c.base
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/games/" + id + "/ws"

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, signaling.ErrNotFound
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	feed := signaling.NewFeed(ctx, nil)
	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var frame Frame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).WithField("game_id", id).Warn("relay subscription ended")
				}
				return
			}
			feed.Push(signaling.Snapshot{Doc: frame.Doc, Deleted: frame.Deleted})
			if frame.Deleted {
				return
			}
		}
	}()
	return feed.C(), nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, token string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay %s %s: %w", method, target, err)
	}
	return resp, nil
}

// statusError maps relay status codes back to the store sentinels.
func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return signaling.ErrNotFound
	case http.StatusConflict:
		return signaling.ErrExists
	case http.StatusUnprocessableEntity:
		return signaling.ErrBadPath
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
