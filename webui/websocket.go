package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"productstudio/logging"
	"productstudio/studio"
)

// ProgressSource returns the current progress of a user.
// *studio.ProgressTracker implements it.
type ProgressSource interface {
	Get(userID string) (studio.Progress, bool)
}

// ProgressHub pushes batch progress to the WebSocket clients of the user
// the batch belongs to. It implements studio.ProgressObserver.
//
// Thread Safety: all methods are safe for concurrent use. Client state is
// owned by the Start loop; other goroutines talk to it over channels.
type ProgressHub struct {
	clients   map[*websocket.Conn]*hubClient
	clientsMu sync.RWMutex

	outbox     chan userMessage
	register   chan *hubClient
	unregister chan *websocket.Conn
	done       chan struct{}

	source   ProgressSource
	upgrader websocket.Upgrader
	config   HubConfig
	logger   *logging.Logger
}

type hubClient struct {
	conn        *websocket.Conn
	userID      string
	connectedAt time.Time
	send        chan []byte
}

type userMessage struct {
	userID string
	msg    WSMessage
}

// HubConfig tunes the WebSocket connections.
type HubConfig struct {
	PingInterval         time.Duration
	PongWait             time.Duration
	WriteWait            time.Duration
	MaxMessageSize       int64
	OutboxSize           int
	ClientSendBufferSize int
}

// DefaultHubConfig returns the default connection settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		OutboxSize:           256,
		ClientSendBufferSize: 32,
	}
}

// NewProgressHub creates a hub. Call Start before accepting connections.
func NewProgressHub(source ProgressSource, config HubConfig, logger *logging.Logger) *ProgressHub {
	defaults := DefaultHubConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.OutboxSize <= 0 {
		config.OutboxSize = defaults.OutboxSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = defaults.ClientSendBufferSize
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &ProgressHub{
		clients:    make(map[*websocket.Conn]*hubClient),
		outbox:     make(chan userMessage, config.OutboxSize),
		register:   make(chan *hubClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		source:     source,
		config:     config,
		logger:     logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment behind the auth proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop until ctx is cancelled.
func (h *ProgressHub) Start(ctx context.Context) {
	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	h.logger.Debug("progress hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Debug("progress hub stopped")
			return
		case c := <-h.register:
			h.add(c)
		case conn := <-h.unregister:
			h.remove(conn)
		case m := <-h.outbox:
			h.deliver(m)
		case <-ping.C:
			h.pingAll()
		}
	}
}

// HandleConnection upgrades an identified request to a WebSocket and
// streams that user's progress. Mount it behind IdentityMiddleware.Require.
func (h *ProgressHub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "NoIdentity", "sign in to continue")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		return nil
	})

	client := &hubClient{
		conn:        conn,
		userID:      userID,
		connectedAt: time.Now(),
		send:        make(chan []byte, h.config.ClientSendBufferSize),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
		conn.WriteJSON(NewErrorMessage(string(studio.KindUnavailable), "the server is shutting down"))
		conn.Close()
		return
	}
	go h.readPump(conn)
}

// ProgressChanged implements studio.ProgressObserver. It never blocks; when
// the outbox is full the update is dropped.
func (h *ProgressHub) ProgressChanged(userID string, p studio.Progress) {
	select {
	case h.outbox <- userMessage{userID: userID, msg: NewProgressMessage(p)}:
	default:
		h.logger.Warn("progress outbox full, dropping update", logging.UserField(userID))
	}
}

// ClientCount returns the number of open connections.
func (h *ProgressHub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// UserClientCount returns the number of open connections for userID.
func (h *ProgressHub) UserClientCount(userID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.userID == userID {
			n++
		}
	}
	return n
}

func (h *ProgressHub) add(c *hubClient) {
	h.clientsMu.Lock()
	h.clients[c.conn] = c
	total := len(h.clients)
	h.clientsMu.Unlock()

	go h.writePump(c)

	var initial WSMessage
	if h.source != nil {
		p, ok := h.source.Get(c.userID)
		initial = NewInitialMessage(p, ok)
	} else {
		initial = NewInitialMessage(studio.Progress{}, false)
	}
	h.sendTo(c, initial)

	h.logger.Debug("client connected",
		logging.UserField(c.userID),
		zap.String("remote", c.conn.RemoteAddr().String()),
		zap.Int("total", total),
	)
}

func (h *ProgressHub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if c, ok := h.clients[conn]; ok {
		close(c.send)
		delete(h.clients, conn)
		conn.Close()
		h.logger.Debug("client disconnected",
			logging.UserField(c.userID),
			zap.Duration("connected_for", time.Since(c.connectedAt)),
		)
	}
}

func (h *ProgressHub) deliver(m userMessage) {
	h.clientsMu.RLock()
	var targets []*hubClient
	for _, c := range h.clients {
		if c.userID == m.userID {
			targets = append(targets, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		h.sendTo(c, m.msg)
	}
}

// sendTo queues msg for c, dropping the client if its buffer is full.
func (h *ProgressHub) sendTo(c *hubClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("client send buffer full, closing", logging.UserField(c.userID))
		go h.drop(c.conn)
	}
}

// drop asks the loop to remove conn, giving up once the loop has stopped.
func (h *ProgressHub) drop(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *ProgressHub) pingAll() {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for conn := range h.clients {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteWait)); err != nil {
			go h.drop(conn)
		}
	}
}

func (h *ProgressHub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for conn, c := range h.clients {
		close(c.send)
		conn.Close()
		delete(h.clients, conn)
	}
}

// readPump discards client messages and keeps the read deadline moving.
func (h *ProgressHub) readPump(conn *websocket.Conn) {
	defer h.drop(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

func (h *ProgressHub) writePump(c *hubClient) {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
