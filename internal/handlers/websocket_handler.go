package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/ppttools/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 32 * 1024
	sendBuffer     = 64
)

// ClientMessage represents a message from a client
type ClientMessage struct {
	Type      string `json:"type"`
	Workspace string `json:"workspace,omitempty"`
}

// ServerMessage represents a message to a client
type ServerMessage struct {
	Type      string      `json:"type"`
	Workspace string      `json:"workspace,omitempty"`
	Content   interface{} `json:"content,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client represents a connected websocket client
type Client struct {
	id        string
	owner     string
	conn      *websocket.Conn
	send      chan ServerMessage
	hub       *WebSocketHub
	closed    bool // guarded by hub.mu
}

// HubStats counts websocket activity
type HubStats struct {
	ActiveConnections int   `json:"activeConnections"`
	TotalConnections  int64 `json:"totalConnections"`
	MessagesSent      int64 `json:"messagesSent"`
	MessagesDropped   int64 `json:"messagesDropped"`
	Workspaces        int   `json:"workspaces"`
}

// WorkspaceLookup reports whether owner may watch workspace id
type WorkspaceLookup func(id, owner string) bool

// WebSocketHub fans workspace events out to subscribed clients
type WebSocketHub struct {
	upgrader websocket.Upgrader
	canWatch WorkspaceLookup
	logger   *zap.Logger

	mu            sync.RWMutex
	clients       map[string]*Client
	subscriptions map[string]map[string]*Client // workspace -> client id -> client
	stats         HubStats
	isShutdown    bool
}

// NewWebSocketHub creates a hub. canWatch guards subscriptions; origins
// lists allowed Origin headers, "*" or empty allowing all.
func NewWebSocketHub(canWatch WorkspaceLookup, origins []string, logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WebSocketHub{
		canWatch:      canWatch,
		logger:        logger.Named("websocket"),
		clients:       make(map[string]*Client),
		subscriptions: make(map[string]map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(origins, h.logger),
	}
	return h
}

func originChecker(origins []string, logger *zap.Logger) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		logger.Warn("rejected websocket origin", zap.String("origin", origin))
		return false
	}
}

// Publish sends a message to every client watching workspace. Slow clients
// lose messages instead of blocking the publisher.
func (h *WebSocketHub) Publish(workspace, msgType string, content interface{}) {
	msg := ServerMessage{
		Type:      msgType,
		Workspace: workspace,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.subscriptions[workspace] {
		select {
		case c.send <- msg:
			h.stats.MessagesSent++
		default:
			h.stats.MessagesDropped++
		}
	}
}

// Subscribe starts delivering workspace events to client. Clients that are
// not registered, or already gone, cannot subscribe.
func (h *WebSocketHub) Subscribe(c *Client, workspace string) bool {
	if workspace == "" || (h.canWatch != nil && !h.canWatch(workspace, c.owner)) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] != c {
		return false
	}
	subs, ok := h.subscriptions[workspace]
	if !ok {
		subs = make(map[string]*Client)
		h.subscriptions[workspace] = subs
	}
	subs[c.id] = c
	return true
}

// Unsubscribe stops delivering workspace events to client
func (h *WebSocketHub) Unsubscribe(c *Client, workspace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c.id, workspace)
}

func (h *WebSocketHub) unsubscribeLocked(clientID, workspace string) {
	if subs, ok := h.subscriptions[workspace]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(h.subscriptions, workspace)
		}
	}
}

// Forget drops every subscription to workspace, used when it is deleted
func (h *WebSocketHub) Forget(workspace string) {
	h.mu.Lock()
	delete(h.subscriptions, workspace)
	h.mu.Unlock()
}

func (h *WebSocketHub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isShutdown {
		return false
	}
	h.clients[c.id] = c
	h.stats.TotalConnections++
	return true
}

// unregister drops c and closes its send channel, which ends writePump
func (h *WebSocketHub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
		for ws := range h.subscriptions {
			h.unsubscribeLocked(c.id, ws)
		}
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Stats returns current websocket statistics
func (h *WebSocketHub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.stats
	s.ActiveConnections = len(h.clients)
	s.Workspaces = len(h.subscriptions)
	return s
}

// Shutdown tells every client the server is going away and closes them
func (h *WebSocketHub) Shutdown() {
	h.mu.Lock()
	if h.isShutdown {
		h.mu.Unlock()
		return
	}
	h.isShutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	// WriteControl may run concurrently with writePump
	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage, goingAway, time.Now().Add(time.Second))
		h.unregister(c)
	}
}

// ServeWs upgrades the request and subscribes the client to the workspace
// named in ?workspace=
func (h *WebSocketHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	workspace := r.URL.Query().Get("workspace")
	if workspace != "" && h.canWatch != nil && !h.canWatch(workspace, owner) {
		sendJSONError(w, "Workspace not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:    newClientID(),
		owner: owner,
		conn:  conn,
		send:  make(chan ServerMessage, sendBuffer),
		hub:   h,
	}
	// queued before register so nothing else can close send yet
	c.send <- ServerMessage{
		Type:      "connected",
		Content:   map[string]interface{}{"clientId": c.id, "serverTime": time.Now().UnixMilli()},
		Timestamp: time.Now().UnixMilli(),
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	if workspace != "" && h.Subscribe(c, workspace) {
		c.reply(ServerMessage{Type: "subscribed", Workspace: workspace})
	}

	go c.writePump()
	go c.readPump()
}

// reply queues msg for c unless c is gone or its buffer is full
func (c *Client) reply(msg ServerMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump handles subscribe, unsubscribe and ping messages
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ServerMessage{Type: "error", Content: map[string]string{"error": "Invalid message format"}})
			continue
		}

		switch msg.Type {
		case "subscribe":
			if c.hub.Subscribe(c, msg.Workspace) {
				c.reply(ServerMessage{Type: "subscribed", Workspace: msg.Workspace})
			} else {
				c.reply(ServerMessage{Type: "error", Workspace: msg.Workspace, Content: map[string]string{"error": "Workspace not found"}})
			}
		case "unsubscribe":
			c.hub.Unsubscribe(c, msg.Workspace)
			c.reply(ServerMessage{Type: "unsubscribed", Workspace: msg.Workspace})
		case "ping":
			c.reply(ServerMessage{Type: "pong"})
		default:
			c.reply(ServerMessage{Type: "error", Content: map[string]string{"error": "Unknown message type"}})
		}
	}
}

// writePump pumps messages from the hub to the websocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
