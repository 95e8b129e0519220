package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/salachat/internal/middleware"
	"github.com/lalith-99/salachat/internal/pubsub"
	"github.com/lalith-99/salachat/internal/repository"
	"go.uber.org/zap"
)

const (
	inboxSize      = 16
	releaseTimeout = 5 * time.Second
)

// Options tunes per-connection behaviour. Zero fields take the defaults.
type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (o *Options) norm() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait / 2
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
}

// Hub accepts WebSocket connections and owns the sessions built on them.
// It is the only place that knows about gin and the HTTP upgrade; sessions,
// the router and delivery only see a Transport.
type Hub struct {
	broker   pubsub.Broker
	rooms    repository.RoomRepository
	router   *Router
	delivery *Delivery
	logger   *zap.Logger
	opts     Options

	upgrader websocket.Upgrader

	// ctx outlives any single request; Shutdown cancels it to stop every
	// session at once.
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders sessions.Add against Shutdown: once closing is set no new
	// handshake is counted, so Wait never races an Add.
	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func NewHub(
	broker pubsub.Broker,
	rooms repository.RoomRepository,
	users repository.UserRepository,
	messages repository.MessageRepository,
	logger *zap.Logger,
	opts Options,
) *Hub {
	opts.norm()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		broker:   broker,
		rooms:    rooms,
		router:   NewRouter(users, messages, broker, logger),
		delivery: NewDelivery(messages, logger),
		logger:   logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth is a bearer token, never a cookie.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Accept classifies a connection before any upgrade. An empty roomParam
// means direct mode.
func (h *Hub) Accept(ctx context.Context, p Principal, roomParam string) (Binding, error) {
	if p.UserID == uuid.Nil {
		return Binding{}, ErrUnauthenticated
	}

	if roomParam == "" {
		return Binding{
			Principal: p,
			Mode:      ModeDirect,
			Group:     pubsub.UserGroup(p.UserID),
		}, nil
	}

	roomID, err := uuid.Parse(roomParam)
	if err != nil {
		return Binding{}, ErrRoomNotFound
	}
	room, err := h.rooms.GetByID(ctx, roomID)
	if err != nil {
		return Binding{}, fmt.Errorf("get room: %w", err)
	}
	if room == nil || !room.IsActive {
		return Binding{}, ErrRoomNotFound
	}

	return Binding{
		Principal: p,
		Mode:      ModeRoom,
		Group:     pubsub.RoomGroup(room.ID),
		RoomID:    room.ID,
	}, nil
}

// Open subscribes a new session for b on conn and returns it Active.
// On error nothing is subscribed and the caller still owns conn.
func (h *Hub) Open(ctx context.Context, b Binding, conn Transport) (*Session, error) {
	if b.Principal.UserID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	s := newSession(h, b, conn)
	if err := h.broker.Subscribe(ctx, b.Group, s); err != nil {
		s.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.Group, err)
	}
	s.setState(StateActive)
	return s, nil
}

// HandleRoom handles GET /ws/chat/room/:room_id
func (h *Hub) HandleRoom(c *gin.Context) {
	h.serve(c, c.Param("room_id"))
}

// HandleDirect handles GET /ws/chat/direct
func (h *Hub) HandleDirect(c *gin.Context) {
	h.serve(c, "")
}

func (h *Hub) serve(c *gin.Context, roomParam string) {
	if !h.track() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}
	defer h.sessions.Done()

	p := Principal{
		UserID:   middleware.GetUserID(c),
		Username: middleware.GetUsername(c),
	}

	b, err := h.Accept(c.Request.Context(), p, roomParam)
	switch {
	case errors.Is(err, ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	case errors.Is(err, ErrRoomNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	case err != nil:
		h.logger.Error("failed to accept connection", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to open connection"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	s, err := h.Open(h.ctx, b, conn)
	if err != nil {
		h.logger.Error("failed to open session", zap.Error(err))
		_ = conn.Close()
		return
	}

	s.logger.Info("session opened", zap.String("mode", string(b.Mode)))
	if err := s.Run(h.ctx); err != nil {
		s.logger.Info("session ended with error", zap.Error(err))
	}
}

// track counts a handshake as a session for Shutdown. It reports false once
// shutdown has started.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions.Add(1)
	return true
}

// Stats reports this node's registry for the health endpoint.
func (h *Hub) Stats() pubsub.Stats {
	return h.broker.Stats()
}

// Shutdown closes every session and waits for them to release their
// subscriptions, or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
