// Package pubsub is the group registry: it maps group names to the live
// sessions subscribed to them and fans published events out to those
// sessions.
//
// Local keeps the registry in process memory. Redis and NATS wrap a Local
// and route every publish through the external bus, so a message published
// on one node reaches subscribers on all nodes.
package pubsub

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/salachat/internal/events"
)

// Group names a fan-out target: a room or one user's personal inbox.
type Group string

func RoomGroup(roomID uuid.UUID) Group {
	return Group("room:" + roomID.String())
}

func UserGroup(userID uuid.UUID) Group {
	return Group("user:" + userID.String())
}

// Subscriber is one live connection.
//
// Deliver is called while the registry holds its read lock, so it must not
// block: implementations queue the event and return. An error means the
// subscriber could not take the event; the subscriber is expected to tear
// itself down, and the broker moves on to the next member.
type Subscriber interface {
	ID() string
	Deliver(ev events.Event) error
}

// Broker is the contract the realtime layer depends on.
//
// Subscribe and Unsubscribe are idempotent. Publish to an empty group is a
// no-op, not an error. Once Unsubscribe returns, the subscriber receives
// nothing further from that group.
type Broker interface {
	Subscribe(ctx context.Context, group Group, sub Subscriber) error
	Unsubscribe(ctx context.Context, group Group, sub Subscriber) error
	Publish(ctx context.Context, group Group, ev events.Event) error
	Stats() Stats
	Name() string
	Close() error
}

// Stats describes this node's registry.
type Stats struct {
	Groups        int `json:"groups"`
	Subscriptions int `json:"subscriptions"`
}

var ErrClosed = errors.New("pubsub: broker closed")
