package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/nurox-dashboard/internal/middleware"
	"github.com/iliyamo/nurox-dashboard/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 75 * time.Second // clients ping every 30s
	pingPeriod = 60 * time.Second
	maxMessage = 4096
)

// NotificationHandler upgrades authenticated requests to the notification
// websocket.
type NotificationHandler struct {
	Hub      *notify.Hub
	Log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewNotificationHandler accepts handshakes from the listed origins, or from
// any origin when the list is empty.
func NewNotificationHandler(hub *notify.Hub, origins []string, log zerolog.Logger) *NotificationHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &NotificationHandler{
		Hub: hub,
		Log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Connect runs behind JWTAuth.  It registers the connection under the
// caller's user id and starts the read and write pumps.
func (h *NotificationHandler) Connect(c echo.Context) error {
	cl, found := middleware.ClaimsFrom(c)
	if !found {
		return middleware.Fail(c, http.StatusUnauthorized, "Authorization token required", "token_missing", nil)
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.Log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := notify.NewClient(cl.UserID)
	h.Hub.Register(client)
	h.Hub.Reply(client, notify.Event{Type: notify.TypeConnected})

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

// readPump answers client pings and unregisters the client when the
// connection drops.
func (h *NotificationHandler) readPump(client *notify.Client, ws *websocket.Conn) {
	defer func() {
		h.Hub.Unregister(client)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg notify.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // ignore malformed messages
		}
		if msg.Type == notify.TypePing {
			h.Hub.Reply(client, notify.Event{Type: notify.TypePong})
		}
	}
}

// writePump drains the client's queue.  The hub closing the queue (logout
// or unregister) ends the connection with a normal close frame.
func (h *NotificationHandler) writePump(client *notify.Client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, open := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
