package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/pinsync/pinsync/internal/schema"
)

// ErrDaemonUnavailable is returned when no daemon answers at the address.
var ErrDaemonUnavailable = errors.New("daemon not running")

// Client talks to a running daemon's control server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for addr ("host:port" or an http URL).
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one control message and returns the reply. An ERROR reply is
// returned as an error.
func (c *Client) Send(ctx context.Context, t MessageType) (*Message, error) {
	body, err := json.Marshal(Message{Type: t})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var reply Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply (HTTP %d): %w", resp.StatusCode, err)
	}
	if reply.Type == MessageError {
		var ed ErrorData
		_ = json.Unmarshal(reply.Data, &ed)
		return nil, fmt.Errorf("daemon: %s", ed.Error)
	}
	return &reply, nil
}

// Status asks for the current status.
func (c *Client) Status(ctx context.Context) (schema.SyncStatus, error) {
	var st schema.SyncStatus
	reply, err := c.Send(ctx, MessageGetSyncStatus)
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(reply.Data, &st)
	return st, err
}

// Trigger requests one pass without waiting for it.
func (c *Client) Trigger(ctx context.Context) error {
	_, err := c.Send(ctx, MessageTriggerSync)
	return err
}

// Enable turns sync on and returns the resulting settings.
func (c *Client) Enable(ctx context.Context) (schema.SyncSettings, error) {
	return c.settingsCall(ctx, MessageEnableSync)
}

// Disable turns sync off and returns the resulting settings.
func (c *Client) Disable(ctx context.Context) (schema.SyncSettings, error) {
	return c.settingsCall(ctx, MessageDisableSync)
}

func (c *Client) settingsCall(ctx context.Context, t MessageType) (schema.SyncSettings, error) {
	var st schema.SyncSettings
	reply, err := c.Send(ctx, t)
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(reply.Data, &st)
	return st, err
}

// Watch connects to /ws and calls fn with the current status and then with
// every status change, until ctx is done or the connection drops.
func (c *Client) Watch(ctx context.Context, fn func(schema.SyncStatus)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != MessageSyncStatusChanged && msg.Type != MessageSyncStatus {
			continue
		}
		var st schema.SyncStatus
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			continue
		}
		fn(st)
	}
}
