package pubsub

import (
	"context"
	"sync"

	"github.com/lalith-99/salachat/internal/events"
	"go.uber.org/zap"
)

// Local is an in-process group registry.
//
// Publish walks the member set under the read lock. Subscribers only queue
// in Deliver, so the lock is held briefly, and an Unsubscribe (write lock)
// can never interleave with an in-flight walk of the same set.
type Local struct {
	mu     sync.RWMutex
	groups map[Group]map[string]Subscriber
	closed bool
	logger *zap.Logger
}

func NewLocal(logger *zap.Logger) *Local {
	return &Local{
		groups: make(map[Group]map[string]Subscriber),
		logger: logger,
	}
}

func (l *Local) Name() string { return "memory" }

func (l *Local) Subscribe(_ context.Context, group Group, sub Subscriber) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	members, ok := l.groups[group]
	if !ok {
		members = make(map[string]Subscriber)
		l.groups[group] = members
	}
	members[sub.ID()] = sub
	return nil
}

func (l *Local) Unsubscribe(_ context.Context, group Group, sub Subscriber) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	members, ok := l.groups[group]
	if !ok {
		return nil
	}
	delete(members, sub.ID())

	// Groups only exist while someone is in them.
	if len(members) == 0 {
		delete(l.groups, group)
	}
	return nil
}

func (l *Local) Publish(_ context.Context, group Group, ev events.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}

	for id, sub := range l.groups[group] {
		if err := sub.Deliver(ev); err != nil {
			l.logger.Warn("fan-out delivery failed",
				zap.String("group", string(group)),
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Members returns how many subscribers a group has on this node.
func (l *Local) Members(group Group) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.groups[group])
}

func (l *Local) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{Groups: len(l.groups)}
	for _, members := range l.groups {
		st.Subscriptions += len(members)
	}
	return st
}

// Close drops every membership. Sessions still running find out through
// their own transport, not through the registry.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.groups = make(map[Group]map[string]Subscriber)
	return nil
}
