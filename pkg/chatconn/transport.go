package chatconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Channel is an established duplex chat channel.
type Channel interface {
	// ReadMessage blocks until the next data frame arrives or the channel fails.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a channel for a session.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Channel, error)
}

// DialerConfig holds websocket dialer configuration
type DialerConfig struct {
	// BaseURL is the ws:// or wss:// origin; http(s) is rewritten.
	BaseURL          string
	Path             string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// WebSocketDialer dials {BaseURL}{Path}/{sessionID} with gorilla/websocket.
type WebSocketDialer struct {
	base         *url.URL
	path         string
	writeTimeout time.Duration
	header       http.Header
	dialer       *websocket.Dialer
}

// NewWebSocketDialer creates a dialer for the chat endpoint
func NewWebSocketDialer(cfg DialerConfig) (*WebSocketDialer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", base.Scheme)
	}
	if cfg.Path == "" {
		cfg.Path = "/api/chat"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &WebSocketDialer{
		base:         base,
		path:         "/" + strings.Trim(cfg.Path, "/"),
		writeTimeout: cfg.WriteTimeout,
		header:       cfg.Header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

// Endpoint returns the channel URL for a session.
func (d *WebSocketDialer) Endpoint(sessionID string) string {
	u := *d.base
	prefix := strings.TrimRight(u.Path, "/") + d.path + "/"
	u.Path = prefix + sessionID
	u.RawPath = (&url.URL{Path: prefix}).EscapedPath() + url.PathEscape(sessionID)
	return u.String()
}

// Dial implements Dialer
func (d *WebSocketDialer) Dial(ctx context.Context, sessionID string) (Channel, error) {
	endpoint := d.Endpoint(sessionID)
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &wsChannel{conn: conn, writeTimeout: d.writeTimeout}, nil
}

type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsChannel) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsChannel) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
