package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/salachat/internal/db"
	"github.com/lalith-99/salachat/internal/models"
	"go.uber.org/zap"
)

// testPool connects to DATABASE_URL and applies the schema. Tests that
// need Postgres are skipped when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.New(ctx, url, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(database.Close)
	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database.Pool()
}

// newUser creates a user whose name is unique across runs against the same
// database.
func newUser(t *testing.T, users *UserStore, prefix string) *models.User {
	t.Helper()
	name := prefix + "_" + uuid.NewString()[:8]
	u, err := users.Create(context.Background(), name, name, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestMarkRead(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)
	messages := NewMessageStore(pool)

	alice := newUser(t, users, "alice")
	bob := newUser(t, users, "bob")
	carol := newUser(t, users, "carol")

	msg, err := messages.Create(ctx, models.NewMessage{AuthorID: alice.ID, Content: "hi bob", RecipientID: &bob.ID})
	if err != nil {
		t.Fatal(err)
	}
	if msg.IsRead {
		t.Fatal("direct message stored read")
	}

	isRead := func() bool {
		t.Helper()
		history, err := messages.ListDirect(ctx, alice.ID, bob.ID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].ID != msg.ID {
			t.Fatalf("history = %+v", history)
		}
		return history[0].IsRead
	}

	for name, who := range map[string]uuid.UUID{"author": alice.ID, "stranger": carol.ID} {
		changed, err := messages.MarkRead(ctx, msg.ID, who)
		if err != nil || changed {
			t.Fatalf("MarkRead by %s = %v, %v", name, changed, err)
		}
	}
	if isRead() {
		t.Fatal("a non-recipient marked the message read")
	}

	changed, err := messages.MarkRead(ctx, msg.ID, bob.ID)
	if err != nil || !changed {
		t.Fatalf("first MarkRead by recipient = %v, %v", changed, err)
	}
	changed, err = messages.MarkRead(ctx, msg.ID, bob.ID)
	if err != nil || changed {
		t.Fatalf("second MarkRead by recipient = %v, %v", changed, err)
	}
	if !isRead() {
		t.Fatal("message still unread")
	}
}

func TestRoomMessageStoredRead(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	alice := newUser(t, NewUserStore(pool), "alice")
	messages := NewMessageStore(pool)

	room, err := NewRoomStore(pool).Create(ctx, "room_"+uuid.NewString()[:8], "")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := messages.Create(ctx, models.NewMessage{AuthorID: alice.ID, Content: "hello", RoomID: &room.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsRead {
		t.Fatal("room message stored unread")
	}

	history, err := messages.ListByRoom(ctx, room.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || !history[0].IsRead {
		t.Fatalf("history = %+v", history)
	}
}

func TestSearchUsers(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)

	// A run-unique prefix keeps rows from earlier runs out of the results.
	tag := "s" + uuid.NewString()[:6]
	for _, name := range []string{tag + "_Zed", tag + "_amy", tag + "_Bo"} {
		if _, err := users.Create(ctx, name, name, "hash"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := users.Create(ctx, tag+"%x", tag+"%x", "hash"); err != nil {
		t.Fatal(err)
	}

	got, err := users.Search(ctx, strings.ToUpper(tag)+"_", 10)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, u := range got {
		names = append(names, u.Username)
		if u.PasswordHash != "hash" {
			t.Fatalf("user %s scanned without hash", u.Username)
		}
	}
	want := []string{tag + "_amy", tag + "_Bo", tag + "_Zed"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("search = %v, want %v", names, want)
	}

	if got, err := users.Search(ctx, tag+"_", 2); err != nil || len(got) != 2 {
		t.Fatalf("limited search = %d users, %v", len(got), err)
	}
	// % in the query is literal.
	if got, err := users.Search(ctx, tag+"%", 10); err != nil || len(got) != 1 {
		t.Fatalf("wildcard search = %+v, %v", got, err)
	}
}

func TestListConversations(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)
	messages := NewMessageStore(pool)

	alice := newUser(t, users, "alice")
	bob := newUser(t, users, "bob")
	carol := newUser(t, users, "carol")

	send := func(from, to *models.User, content string) *models.Message {
		t.Helper()
		msg, err := messages.Create(ctx, models.NewMessage{AuthorID: from.ID, Content: content, RecipientID: &to.ID})
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}

	send(bob, alice, "one")
	read := send(bob, alice, "two")
	send(alice, bob, "three")
	latest := send(carol, alice, "from carol")
	if _, err := messages.MarkRead(ctx, read.ID, alice.ID); err != nil {
		t.Fatal(err)
	}

	got, err := messages.ListConversations(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("conversations = %+v", got)
	}

	if got[0].User.ID != carol.ID || got[0].LastMessage.ID != latest.ID || got[0].UnreadCount != 1 {
		t.Fatalf("first conversation = %+v", got[0])
	}
	if got[1].User.ID != bob.ID || got[1].LastMessage.Content != "three" || got[1].UnreadCount != 1 {
		t.Fatalf("second conversation = %+v", got[1])
	}
	if got[1].User.PasswordHash != "" {
		t.Fatal("conversation carries a password hash")
	}

	none, err := messages.ListConversations(ctx, newUser(t, users, "dave").ID)
	if err != nil || len(none) != 0 {
		t.Fatalf("empty inbox = %+v, %v", none, err)
	}
}
