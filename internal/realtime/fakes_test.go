package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/salachat/internal/models"
	"github.com/lalith-99/salachat/internal/pubsub"
	"go.uber.org/zap"
)

// fakeConn is an in-memory Transport. Tests push client frames into in and
// read server frames from out.
type fakeConn struct {
	in  chan []byte
	out chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	failWrites bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errors.New("broken pipe")
	}
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(int64)                        {}
func (f *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)         {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// dropNetwork simulates an abnormal close: reads fail with a non-close error.
func (f *fakeConn) dropNetwork() { _ = f.Close() }

func (f *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		data = b
	}
	f.in <- data
}

func (f *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-f.out:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("server sent invalid JSON %q: %v", data, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func (f *fakeConn) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(150 * time.Millisecond):
	}
}

// memStore implements the three repositories in memory.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	rooms    map[uuid.UUID]*models.Room
	messages []*models.Message
	nextID   int64

	failCreate   error
	markReadHits int
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[uuid.UUID]*models.User),
		rooms: make(map[uuid.UUID]*models.Room),
	}
}

func (m *memStore) addUser(name string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.New(), Username: name, DisplayName: name, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addRoom(name string, active bool) *models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &models.Room{ID: uuid.New(), Name: name, IsActive: active, CreatedAt: time.Now()}
	m.rooms[r.ID] = r
	return r
}

func (m *memStore) Create(_ context.Context, in models.NewMessage) (*models.Message, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.nextID++
	msg := &models.Message{
		ID:          m.nextID,
		AuthorID:    in.AuthorID,
		Content:     in.Content,
		RoomID:      in.RoomID,
		RecipientID: in.RecipientID,
		IsRead:      in.RecipientID == nil,
		CreatedAt:   time.Now(),
	}
	m.messages = append(m.messages, msg)
	cp := *msg
	return &cp, nil
}

func (m *memStore) MarkRead(_ context.Context, messageID int64, recipientID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markReadHits++
	for _, msg := range m.messages {
		if msg.ID == messageID && msg.RecipientID != nil && *msg.RecipientID == recipientID {
			flipped := !msg.IsRead
			msg.IsRead = true
			return flipped, nil
		}
	}
	return false, nil
}

func (m *memStore) ListByRoom(context.Context, uuid.UUID, int) ([]models.Message, error) {
	return nil, errors.New("not used")
}

func (m *memStore) ListDirect(context.Context, uuid.UUID, uuid.UUID, int) ([]models.Message, error) {
	return nil, errors.New("not used")
}

func (m *memStore) ListConversations(context.Context, uuid.UUID) ([]models.Conversation, error) {
	return nil, errors.New("not used")
}

func (m *memStore) message(id int64) models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return *msg
		}
	}
	return models.Message{}
}

func (m *memStore) setFailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = err
}

func (m *memStore) markReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markReadHits
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// roomStore and userStore adapt memStore to the interfaces whose method
// names collide with MessageRepository.
type roomStore struct{ *memStore }

func (r roomStore) Create(_ context.Context, name, _ string) (*models.Room, error) {
	return r.addRoom(name, true), nil
}

func (r roomStore) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *room
	return &cp, nil
}

func (r roomStore) ListActive(context.Context) ([]models.Room, error) {
	return nil, errors.New("not used")
}

type userStore struct{ *memStore }

func (u userStore) Create(_ context.Context, username, _, _ string) (*models.User, error) {
	return u.addUser(username), nil
}

func (u userStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (u userStore) GetByUsername(context.Context, string) (*models.User, error) {
	return nil, errors.New("not used")
}

func (u userStore) Search(context.Context, string, int) ([]models.User, error) {
	return nil, errors.New("not used")
}

type fixture struct {
	store  *memStore
	broker *pubsub.Local
	hub    *Hub
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := newMemStore()
	broker := pubsub.NewLocal(zap.NewNop())
	hub := NewHub(broker, roomStore{store}, userStore{store}, store, zap.NewNop(), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return &fixture{store: store, broker: broker, hub: hub}
}

// connect runs a full session on a fake transport the way serve does.
func (fx *fixture) connect(t *testing.T, u *models.User, roomParam string) (*Session, *fakeConn, <-chan struct{}) {
	t.Helper()
	p := Principal{UserID: u.ID, Username: u.Username}
	b, err := fx.hub.Accept(context.Background(), p, roomParam)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	conn := newFakeConn()
	s, err := fx.hub.Open(context.Background(), b, conn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return s, conn, fx.run(t, s, conn)
}

// run starts s and returns a channel closed once Run has returned.
func (fx *fixture) run(t *testing.T, s *Session, conn *fakeConn) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(fx.hub.ctx)
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		waitRun(t, done)
	})
	return done
}

func waitRun(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
