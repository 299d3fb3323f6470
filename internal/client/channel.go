package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iliyamo/nurox-dashboard/internal/notify"
)

// DefaultPingInterval is how often the channel pings the server.
const DefaultPingInterval = 30 * time.Second

// NotificationChannel is the live notification connection of a session.
// At most one connection is open at a time.
type NotificationChannel struct {
	URL          string
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	// OnEvent receives every server message.  It runs on the read goroutine.
	OnEvent func(notify.Event)
	Log     zerolog.Logger

	mu   sync.Mutex
	wmu  sync.Mutex
	conn *websocket.Conn
}

// NotificationURL derives the websocket endpoint from the API root.
func NotificationURL(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api") + "/ws/notifications"
	u.RawQuery = ""
	return u.String(), nil
}

// NewNotificationChannel returns a channel for the API rooted at apiBase.
func NewNotificationChannel(apiBase string, log zerolog.Logger) (*NotificationChannel, error) {
	u, err := NotificationURL(apiBase)
	if err != nil {
		return nil, err
	}
	return &NotificationChannel{URL: u, Log: log}, nil
}

// Connect opens the channel with the given access token.  It is a no-op when
// a connection is already open.
func (n *NotificationChannel) Connect(ctx context.Context, access string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return nil
	}
	dialer := n.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	hdr := http.Header{"Authorization": {"Bearer " + access}}
	conn, resp, err := dialer.DialContext(ctx, n.URL, hdr)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &APIError{Status: resp.StatusCode, Message: "notification channel rejected token"}
		}
		return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
	n.conn = conn

	interval := n.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	done := make(chan struct{})
	go n.readLoop(conn, done)
	go n.pingLoop(conn, done, interval)
	return nil
}

// Connected reports whether a connection is open.
func (n *NotificationChannel) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}

// Disconnect closes the open connection, if any.
func (n *NotificationChannel) Disconnect() {
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()
	if conn == nil {
		return
	}
	n.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"), time.Now().Add(time.Second))
	n.wmu.Unlock()
	_ = conn.Close()
}

func (n *NotificationChannel) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		n.mu.Lock()
		if n.conn == conn {
			n.conn = nil
		}
		n.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		var ev notify.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				n.Log.Debug().Err(err).Msg("notification channel closed")
			}
			return
		}
		if n.OnEvent != nil {
			n.OnEvent(ev)
		}
	}
}

func (n *NotificationChannel) pingLoop(conn *websocket.Conn, done chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n.wmu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteJSON(notify.ClientMessage{Type: notify.TypePing})
			n.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
