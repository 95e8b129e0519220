package realtime

import (
	"context"

	"github.com/lalith-99/salachat/internal/events"
	"github.com/lalith-99/salachat/internal/repository"
	"go.uber.org/zap"
)

// Delivery writes fan-out events to one session's socket. It runs on the
// session's write goroutine, so per-session frames go out in queue order.
type Delivery struct {
	messages repository.MessageRepository
	logger   *zap.Logger
}

func NewDelivery(messages repository.MessageRepository, logger *zap.Logger) *Delivery {
	return &Delivery{messages: messages, logger: logger}
}

// Dispatch writes one queued frame. A returned error is a transport
// failure and ends the session.
func (d *Delivery) Dispatch(ctx context.Context, s *Session, out outbound) error {
	if out.err != nil {
		return s.writeJSON(out.err)
	}

	switch ev := out.event.(type) {
	case *events.RoomMessage:
		return d.OnRoomEvent(ctx, s, ev)
	case *events.DirectMessage:
		return d.OnDirectEvent(ctx, s, ev)
	default:
		d.logger.Error("unknown event type dropped", zap.String("type", typeName(out.event)))
		return nil
	}
}

// OnRoomEvent sends a room message to every member except the session
// that sent it.
func (d *Delivery) OnRoomEvent(_ context.Context, s *Session, ev *events.RoomMessage) error {
	if ev.Origin == s.ID() {
		return nil
	}
	return s.writeJSON(ev.Frame())
}

// OnDirectEvent marks the message read when this session belongs to its
// recipient, then sends it with is_read true.
//
// The store scopes the update by recipient as well, so the sender's mirror
// copy can never flip someone else's message. A failed mark-read is logged
// and the frame is still sent.
func (d *Delivery) OnDirectEvent(ctx context.Context, s *Session, ev *events.DirectMessage) error {
	if recipient := s.Principal().UserID; ev.RecipientID == recipient {
		if _, err := d.messages.MarkRead(ctx, ev.MessageID, recipient); err != nil {
			s.logger.Warn("mark read failed", zap.Int64("message_id", ev.MessageID), zap.Error(err))
		}
	}
	return s.writeJSON(ev.Frame())
}

func typeName(ev events.Event) string {
	if ev == nil {
		return "<nil>"
	}
	return string(ev.Kind())
}
