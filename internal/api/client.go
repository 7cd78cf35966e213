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

	"github.com/gorilla/websocket"

	"github.com/shazow/wifibridge/internal/bridge"
)

// Client calls a running bridge over its HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

// NewClient returns a client for the API listening on addr, either host:port
// or a full URL.
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		BaseURL: strings.TrimSuffix(addr, "/"),
		HTTP:    http.DefaultClient,
		Dialer:  websocket.DefaultDialer,
	}
}

// Call invokes method with params and decodes the reply into out. A reply
// with returnValue false is returned as a *bridge.Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	var body io.Reader = http.NoBody
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to call %s: %s", method, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}
	return decodeReply(raw, out)
}

func decodeReply(raw []byte, out any) error {
	var envelope struct {
		ReturnValue bool   `json:"returnValue"`
		ErrorCode   int    `json:"errorCode"`
		ErrorText   string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("malformed reply: %w", err)
	}
	if !envelope.ReturnValue {
		return &bridge.Error{Code: bridge.Code(envelope.ErrorCode), Text: envelope.ErrorText}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Subscribe streams status pushes to fn, starting with the current status,
// until ctx is done, the server closes the stream, or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(bridge.Status) error) error {
	u, err := url.Parse(c.BaseURL + "/api/v1/getstatus")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := c.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var st bridge.Status
		if err := decodeReply(raw, &st); err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
	}
}
