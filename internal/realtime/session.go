package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/salachat/internal/events"
	"github.com/lalith-99/salachat/internal/pubsub"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mode is fixed per connection: a session either follows one room or
// receives its user's direct messages, never both.
type Mode string

const (
	ModeRoom   Mode = "room"
	ModeDirect Mode = "direct"
)

// State is the session lifecycle: Connecting → Active → Closed.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrUnauthenticated = errors.New("realtime: connection has no authenticated principal")
	ErrRoomNotFound    = errors.New("realtime: room not found or inactive")
	ErrSlowConsumer    = errors.New("realtime: session outbox full")
	ErrSessionClosed   = errors.New("realtime: session closed")
)

// Principal is the identity the auth middleware vouched for.
type Principal struct {
	UserID   uuid.UUID
	Username string
}

// Binding is everything decided at accept time. It is always complete:
// a room binding has a room id and room group, a direct binding has the
// principal's personal group.
type Binding struct {
	Principal Principal
	Mode      Mode
	Group     pubsub.Group
	RoomID    uuid.UUID
}

// Transport is the subset of *websocket.Conn a session uses.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// outbound is one queued frame: a fan-out event or an error for this
// connection only.
type outbound struct {
	event events.Event
	err   *events.ErrorFrame
}

// Session is the server side of one WebSocket connection.
//
// Run starts four goroutines:
//
//	read   – reads frames into inbox; never waits on the store
//	route  – feeds inbox frames to the Router, one at a time
//	write  – drains outbox through Delivery, sends pings
//	closer – waits for Close or shutdown and closes the transport
//
// Every path out of Run unsubscribes from the broker.
type Session struct {
	id      string
	binding Binding
	conn    Transport
	hub     *Hub
	logger  *zap.Logger

	inbox  chan []byte
	outbox chan outbound

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(h *Hub, b Binding, conn Transport) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		binding: b,
		conn:    conn,
		hub:     h,
		logger: h.logger.With(
			zap.String("session_id", id),
			zap.String("user_id", b.Principal.UserID.String()),
			zap.String("group", string(b.Group)),
		),
		inbox:  make(chan []byte, inboxSize),
		outbox: make(chan outbound, h.opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Principal() Principal  { return s.binding.Principal }
func (s *Session) Mode() Mode            { return s.binding.Mode }
func (s *Session) Group() pubsub.Group   { return s.binding.Group }
func (s *Session) RoomID() uuid.UUID     { return s.binding.RoomID }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) setState(st State)     { s.state.Store(int32(st)) }

// Deliver queues a fan-out event. It is called under the broker's lock and
// never blocks: a full outbox closes the session instead.
func (s *Session) Deliver(ev events.Event) error {
	return s.enqueue(outbound{event: ev})
}

func (s *Session) sendError(msg string) {
	if err := s.enqueue(outbound{err: &events.ErrorFrame{Error: msg}}); err != nil {
		s.logger.Debug("error frame not queued", zap.Error(err))
	}
}

func (s *Session) enqueue(out outbound) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.outbox <- out:
		return nil
	default:
		s.logger.Warn("closing slow consumer", zap.Int("outbox", cap(s.outbox)))
		s.Close()
		return ErrSlowConsumer
	}
}

// Close moves the session to Closed and wakes every goroutine. It does not
// touch the broker, so it is safe to call from inside Deliver.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
	})
}

// Run drives the session until the transport closes, Close is called or
// ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer s.release()

	opts := s.hub.opts
	s.conn.SetReadLimit(opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	var g errgroup.Group
	g.Go(s.readPump)
	g.Go(func() error { return s.routeLoop(ctx) })
	g.Go(func() error { return s.writePump(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(opts.WriteWait))
		return s.conn.Close()
	})
	return g.Wait()
}

// release runs after every goroutine has exited. It gets its own context
// because the one passed to Run may already be cancelled.
func (s *Session) release() {
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.hub.broker.Unsubscribe(ctx, s.binding.Group, s); err != nil {
		s.logger.Error("unsubscribe failed", zap.Error(err))
	}
	s.logger.Info("session closed")
}

func (s *Session) readPump() error {
	defer s.Close()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() == StateClosed ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		select {
		case s.inbox <- data:
		case <-s.done:
			return nil
		}
	}
}

func (s *Session) routeLoop(ctx context.Context) error {
	for {
		select {
		case <-s.done:
			return nil
		case raw := <-s.inbox:
			s.route(ctx, raw)
		}
	}
}

// route contains a panic from one frame to that frame.
func (s *Session) route(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while routing frame", zap.Any("panic", r))
			s.sendError(errSendFailed)
		}
	}()
	s.hub.router.Route(ctx, s, raw)
}

func (s *Session) writePump(ctx context.Context) error {
	defer s.Close()

	ticker := time.NewTicker(s.hub.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return nil
		case out := <-s.outbox:
			if err := s.hub.delivery.Dispatch(ctx, s, out); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.hub.opts.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// writeJSON must only be called from the write goroutine.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
