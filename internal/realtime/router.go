package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/salachat/internal/events"
	"github.com/lalith-99/salachat/internal/models"
	"github.com/lalith-99/salachat/internal/pubsub"
	"github.com/lalith-99/salachat/internal/repository"
	"go.uber.org/zap"
)

// Error texts sent to the client. errSendFailed carries no detail; the
// cause is only logged.
const (
	errInvalidFormat     = "invalid message format"
	errSendFailed        = "failed to send message"
	errMissingRecipient  = "direct message requires user_to_id"
	errInvalidRecipient  = "invalid user_to_id"
	errUnknownRecipient  = "recipient not found"
	errRoomOnDirectConn  = "room messages require a room connection"
	errUnknownTypePrefix = "unknown message type"
)

// rejection is a client mistake. Its text goes back to the sender as is.
type rejection string

func (r rejection) Error() string { return string(r) }

// Router turns one inbound frame into a persisted message and the
// publishes that fan it out.
type Router struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	broker   pubsub.Broker
	logger   *zap.Logger
}

func NewRouter(users repository.UserRepository, messages repository.MessageRepository, broker pubsub.Broker, logger *zap.Logger) *Router {
	return &Router{users: users, messages: messages, broker: broker, logger: logger}
}

// Route never returns an error: every failure ends as an error frame to the
// sender (or a silent drop for empty text) and the session stays Active.
func (r *Router) Route(ctx context.Context, s *Session, raw []byte) {
	in, err := events.ParseInbound(raw)
	if err != nil {
		s.sendError(errInvalidFormat)
		return
	}

	kind, err := events.ParseKind(in.Type)
	if err != nil {
		s.sendError(fmt.Sprintf("%s %q", errUnknownTypePrefix, in.Type))
		return
	}

	text := strings.TrimSpace(in.Message)
	if text == "" {
		return
	}

	// A direct frame with no recipient on a room connection is treated as a
	// room message. On a direct connection there is no room to fall back
	// to, so the frame is rejected.
	if kind == events.KindDirect && in.UserToID == "" {
		if s.Mode() != ModeRoom {
			s.sendError(errMissingRecipient)
			return
		}
		kind = events.KindRoom
	}

	switch kind {
	case events.KindRoom:
		err = r.routeRoom(ctx, s, text)
	case events.KindDirect:
		err = r.routeDirect(ctx, s, text, in.UserToID)
	}
	if err == nil {
		return
	}

	var rej rejection
	if errors.As(err, &rej) {
		s.sendError(rej.Error())
		return
	}
	s.logger.Error("failed to route message", zap.String("kind", string(kind)), zap.Error(err))
	s.sendError(errSendFailed)
}

func (r *Router) routeRoom(ctx context.Context, s *Session, text string) error {
	if s.Mode() != ModeRoom {
		return rejection(errRoomOnDirectConn)
	}

	roomID := s.RoomID()
	msg, err := r.messages.Create(ctx, models.NewMessage{
		AuthorID: s.Principal().UserID,
		Content:  text,
		RoomID:   &roomID,
	})
	if err != nil {
		return fmt.Errorf("create room message: %w", err)
	}

	ev := events.NewRoomMessage(msg, s.Principal().Username, s.ID())
	if err := r.broker.Publish(ctx, s.Group(), ev); err != nil {
		return fmt.Errorf("publish room message: %w", err)
	}
	return nil
}

func (r *Router) routeDirect(ctx context.Context, s *Session, text, userToID string) error {
	recipientID, err := uuid.Parse(userToID)
	if err != nil {
		return rejection(errInvalidRecipient)
	}

	recipient, err := r.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if recipient == nil {
		return rejection(errUnknownRecipient)
	}

	sender := s.Principal()
	msg, err := r.messages.Create(ctx, models.NewMessage{
		AuthorID:    sender.UserID,
		Content:     text,
		RecipientID: &recipient.ID,
	})
	if err != nil {
		return fmt.Errorf("create direct message: %w", err)
	}

	// The recipient's copy carries the stored flag; an offline recipient
	// simply means an empty group and the message stays unread.
	toRecipient := events.NewDirectMessage(msg, sender.Username, s.ID())
	if err := r.broker.Publish(ctx, pubsub.UserGroup(recipient.ID), toRecipient); err != nil {
		return fmt.Errorf("publish to recipient: %w", err)
	}

	if recipient.ID == sender.UserID {
		return nil
	}

	mirror := *toRecipient
	mirror.IsRead = true
	if err := r.broker.Publish(ctx, pubsub.UserGroup(sender.UserID), &mirror); err != nil {
		return fmt.Errorf("publish sender mirror: %w", err)
	}
	return nil
}
