package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/chaosroom/internal/api/apierr"
	"github.com/mcoot/chaosroom/internal/services/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Send pings with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Largest client frame accepted
	maxMessageSize = 4096
)

// Message types sent to the client
const (
	TypeView   = "view"
	TypeResult = "result"
	TypeError  = "error"
)

// Inbound is a client command frame
type Inbound struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a server frame
type Outbound struct {
	Type  string           `json:"type"`
	ID    string           `json:"id,omitempty"`
	View  *session.View    `json:"view,omitempty"`
	Error *apierr.APIError `json:"error,omitempty"`
}

// Command is a mutation requested over the socket
type Command func(ctx context.Context) error

// Dispatcher turns an inbound frame into a labelled command
type Dispatcher func(msg Inbound) (label string, cmd Command, err error)

// NewUpgrader returns an upgrader accepting any origin. Sessions are
// authenticated by bearer token before the upgrade.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// conn serialises writes to a websocket
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Serve upgrades the request and runs the session over the socket: every view
// the watcher publishes is pushed, and inbound commands run through the
// watcher so the view shows them as pending until the store confirms. Serve
// returns when the client disconnects or the watcher stops.
func Serve(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, watcher *session.Watcher, dispatch Dispatcher, logger *slog.Logger) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go readLoop(ctx, cancel, c, watcher, dispatch, logger)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case v, ok := <-watcher.Views():
			if !ok {
				_ = c.writeClose(websocket.CloseNormalClosure, "session ended")
				return
			}
			view := v
			out := Outbound{Type: TypeView, View: &view}
			if v.Err != nil {
				_, apiErr := apierr.Describe(v.Err)
				out.Error = &apiErr
			}
			if err := c.writeJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *conn) writeClose(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// readLoop handles inbound commands and cancels the session when the client
// goes away
func readLoop(ctx context.Context, cancel context.CancelFunc, c *conn, watcher *session.Watcher, dispatch Dispatcher, logger *slog.Logger) {
	defer cancel()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.writeJSON(errorFrame("", apierr.NewInvalidRequestError("Invalid JSON frame")))
			continue
		}

		label, cmd, err := dispatch(msg)
		if err != nil {
			_ = c.writeJSON(errorFrame(msg.ID, err))
			continue
		}

		// Commands run one at a time per connection, in arrival order
		if err := watcher.Do(ctx, label, cmd); err != nil {
			_ = c.writeJSON(errorFrame(msg.ID, err))
			continue
		}
		_ = c.writeJSON(Outbound{Type: TypeResult, ID: msg.ID})
	}
}

func errorFrame(id string, err error) Outbound {
	_, apiErr := apierr.Describe(err)
	return Outbound{Type: TypeError, ID: id, Error: &apiErr}
}
