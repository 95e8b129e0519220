package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lalith-99/salachat/internal/events"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS is the same design as Redis over core NATS subjects
// "<prefix>.group.<group>". Core NATS calls a subscription's handler
// serially, which keeps per-group order on each node.
type NATS struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	local  *Local
	prefix string
	logger *zap.Logger

	closeOnce sync.Once
}

// NewNATS subscribes to every group subject. The caller keeps ownership of nc.
func NewNATS(nc *nats.Conn, prefix string, logger *zap.Logger) (*NATS, error) {
	n := &NATS{
		nc:     nc,
		local:  NewLocal(logger),
		prefix: prefix + ".group.",
		logger: logger,
	}

	sub, err := nc.Subscribe(n.prefix+">", n.handle)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s>: %w", n.prefix, err)
	}
	// Flush round-trips to the server so the subscription is live on return.
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	n.sub = sub

	logger.Info("nats broker subscribed", zap.String("subject", n.prefix+">"))
	return n, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) handle(m *nats.Msg) {
	group, ok := strings.CutPrefix(m.Subject, n.prefix)
	if !ok {
		return
	}
	ev, err := events.Decode(m.Data)
	if err != nil {
		n.logger.Warn("dropping undecodable nats event",
			zap.String("subject", m.Subject),
			zap.Error(err),
		)
		return
	}
	_ = n.local.Publish(context.Background(), Group(group), ev)
}

func (n *NATS) Subscribe(ctx context.Context, group Group, sub Subscriber) error {
	return n.local.Subscribe(ctx, group, sub)
}

func (n *NATS) Unsubscribe(ctx context.Context, group Group, sub Subscriber) error {
	return n.local.Unsubscribe(ctx, group, sub)
}

func (n *NATS) Publish(ctx context.Context, group Group, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.prefix+string(group), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", group, err)
	}
	return nil
}

func (n *NATS) Stats() Stats { return n.local.Stats() }

func (n *NATS) Close() error {
	var err error
	n.closeOnce.Do(func() {
		if n.sub != nil {
			err = n.sub.Unsubscribe()
		}
		_ = n.local.Close()
	})
	return err
}
