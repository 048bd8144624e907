package gateway

import (
	"net/http"
	"sync"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	"ringlink/internal/core/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsClient serializes writes; gorilla connections do not allow concurrent
// writers.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

// Gateway pushes call events and sound cues to connected clients over
// WebSocket and registers them for incoming-call delivery while connected.
// All call commands go through the HTTP API; the socket is push-only.
type Gateway struct {
	auth  services.AuthService
	calls ports.CallService

	connections map[domain.UserID]*wsClient
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	msgRate  rate.Limit
	msgBurst int

	logger *zap.SugaredLogger
}

// SetMessageRateLimit bounds inbound messages per connection. Clients are
// expected to send almost nothing; a connection exceeding the limit is
// dropped.
func (g *Gateway) SetMessageRateLimit(perSecond float64, burst int) {
	g.msgRate = rate.Limit(perSecond)
	g.msgBurst = burst
}

func NewGateway(auth services.AuthService, calls ports.CallService, pingInterval, pongTimeout time.Duration, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		auth:         auth,
		calls:        calls,
		connections:  make(map[domain.UserID]*wsClient),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}

	g.mu.Lock()
	existing, isReconnect := g.connections[userID]
	if isReconnect && existing != nil {
		existing.conn.Close()
		g.logger.Infow("closing old connection for reconnecting user", "user_id", userID)
	}
	g.connections[userID] = client
	g.mu.Unlock()

	g.calls.RegisterPeer(userID)
	g.logger.Infow("user connected", "user_id", userID, "reconnect", isReconnect)

	conn.SetReadDeadline(time.Now().Add(g.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(g.pongTimeout))
		return nil
	})

	var msgLimiter *rate.Limiter
	if g.msgRate > 0 {
		msgLimiter = rate.NewLimiter(g.msgRate, g.msgBurst)
	}

	readErr := make(chan error, 1)
	go func() {
		// Clients send nothing meaningful; the read loop exists to run the
		// pong handler and detect closure.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
			if msgLimiter != nil && !msgLimiter.Allow() {
				g.logger.Warnw("message rate limit exceeded, dropping connection", "user_id", userID)
				readErr <- websocket.ErrReadLimit
				return
			}
			conn.SetReadDeadline(time.Now().Add(g.pongTimeout))
		}
	}()

	pingTicker := time.NewTicker(g.pingInterval)
	defer pingTicker.Stop()

loop:
	for {
		select {
		case <-pingTicker.C:
			client.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			client.mu.Unlock()
			if err != nil {
				g.logger.Infow("ping failed", "user_id", userID, "error", err)
				break loop
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Infow("read failed", "user_id", userID, "error", err)
			}
			break loop
		}
	}

	g.mu.Lock()
	if g.connections[userID] == client {
		delete(g.connections, userID)
	}
	g.mu.Unlock()

	g.calls.UnregisterPeer(userID)
	g.logger.Infow("user disconnected", "user_id", userID)
}

func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	if g.auth != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return "", false
		}
		claims, err := g.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return "", false
		}
		return claims.UserID, true
	}

	userID := domain.UserID(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

// PushEvent implements the call manager's event sink. Events to
// disconnected users are dropped.
func (g *Gateway) PushEvent(userID domain.UserID, event ports.CallEvent) {
	g.mu.RLock()
	client := g.connections[userID]
	g.mu.RUnlock()
	if client == nil {
		return
	}

	msg := struct {
		Type  string          `json:"type"`
		Event ports.CallEvent `json:"event"`
	}{Type: "call_event", Event: event}

	if err := client.writeJSON(msg, g.writeTimeout); err != nil {
		g.logger.Debugw("failed to push event", "user_id", userID, "kind", event.Kind, "error", err)
	}
}

// Play implements ports.SoundPlayer by asking the client to loop a cue.
func (g *Gateway) Play(userID domain.UserID, cue string) {
	g.pushSound(userID, "sound_play", cue)
}

// Stop implements ports.SoundPlayer.
func (g *Gateway) Stop(userID domain.UserID) {
	g.pushSound(userID, "sound_stop", "")
}

func (g *Gateway) pushSound(userID domain.UserID, kind, cue string) {
	g.mu.RLock()
	client := g.connections[userID]
	g.mu.RUnlock()
	if client == nil {
		return
	}

	msg := struct {
		Type string `json:"type"`
		Cue  string `json:"cue,omitempty"`
	}{Type: kind, Cue: cue}

	if err := client.writeJSON(msg, g.writeTimeout); err != nil {
		g.logger.Debugw("failed to push sound cue", "user_id", userID, "error", err)
	}
}

func (g *Gateway) ConnectedUsers() []domain.UserID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	users := make([]domain.UserID, 0, len(g.connections))
	for userID := range g.connections {
		users = append(users, userID)
	}
	return users
}

func (g *Gateway) IsConnected(userID domain.UserID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, exists := g.connections[userID]
	return exists
}

var _ ports.SoundPlayer = (*Gateway)(nil)
