package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// WebSocket message types for the workflow event stream
const (
	// Client -> Server messages
	MsgTypePing     = "ping"
	MsgTypeSnapshot = "snapshot"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeEvent     = "workflow:event"
	MsgTypeState     = "workflow:snapshot"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSMessage is one frame on the workflow socket
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error frame
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams workflow events to dashboard clients
type WebSocketHandler struct {
	workflow WorkflowService
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients int
}

// NewWebSocketHandler creates a new workflow event socket handler
func NewWebSocketHandler(wf WorkflowService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		workflow: wf,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: logging.New("server"),
	}
}

// Clients returns the number of connected sockets
func (wsh *WebSocketHandler) Clients() int {
	wsh.mu.Lock()
	defer wsh.mu.Unlock()
	return wsh.clients
}

// HandleWebSocket upgrades the connection, sends the current snapshot and
// then every workflow event until the client goes away
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		wsh.logger.Warnf("[WebSocket] Upgrade failed: %v", err)
		return nil
	}
	defer ws.Close()

	events, unsubscribe := wsh.workflow.Subscribe(64)
	defer unsubscribe()

	wsh.track(1)
	defer wsh.track(-1)
	wsh.logger.Infof("[WebSocket] Client connected (%d total)", wsh.Clients())

	// gorilla allows one concurrent writer
	var writeMu sync.Mutex
	send := func(msg WSMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return ws.WriteJSON(msg)
	}

	if err := send(wsh.frame(MsgTypeConnected, wsh.workflow.Snapshot())); err != nil {
		return nil
	}

	done := make(chan struct{})
	go wsh.readLoop(ws, send, done)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			wsh.logger.Infof("[WebSocket] Client disconnected")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := send(wsh.frame(MsgTypeEvent, ev)); err != nil {
				wsh.logger.Debugf("[WebSocket] write failed: %v", err)
				return nil
			}
		case <-ticker.C:
			writeMu.Lock()
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := ws.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return nil
			}
		}
	}
}

// readLoop answers client frames and closes done when the socket ends
func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, send func(WSMessage) error, done chan<- struct{}) {
	defer close(done)

	ws.SetReadLimit(64 * 1024)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warnf("[WebSocket] Connection error: %v", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))

		var err error
		switch msg.Type {
		case MsgTypePing:
			err = send(WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()})
		case MsgTypeSnapshot:
			frame := wsh.frame(MsgTypeState, wsh.workflow.Snapshot())
			frame.ID = msg.ID
			err = send(frame)
		default:
			err = send(wsh.frame(MsgTypeError, WSErrorResponse{
				Message: "Unknown message type: " + msg.Type,
				Code:    "INVALID_TYPE",
			}))
		}
		if err != nil {
			return
		}
	}
}

func (wsh *WebSocketHandler) frame(kind string, payload interface{}) WSMessage {
	return WSMessage{
		Type:      kind,
		Payload:   mustJSON(payload),
		Timestamp: time.Now().UnixMilli(),
	}
}

func (wsh *WebSocketHandler) track(delta int) {
	wsh.mu.Lock()
	defer wsh.mu.Unlock()
	wsh.clients += delta
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
