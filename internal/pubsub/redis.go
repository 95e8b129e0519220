package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lalith-99/salachat/internal/events"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis fans out across nodes with Redis PUBLISH/PSUBSCRIBE.
//
// Every node pattern-subscribes to "<prefix>:group:*" once. Publish never
// touches local members directly: the event comes back through the
// subscription like it does on every other node, so each node keeps a
// single ordered delivery path per group.
type Redis struct {
	rdb    *redis.Client
	ps     *redis.PubSub
	local  *Local
	prefix string
	logger *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedis subscribes to the group pattern and starts the receive loop.
// The caller keeps ownership of rdb.
func NewRedis(ctx context.Context, rdb *redis.Client, prefix string, logger *zap.Logger) (*Redis, error) {
	r := &Redis{
		rdb:    rdb,
		local:  NewLocal(logger),
		prefix: prefix + ":group:",
		logger: logger,
	}

	r.ps = rdb.PSubscribe(ctx, r.prefix+"*")
	// Receive blocks until Redis confirms the subscription, so nothing
	// published after NewRedis returns can be missed.
	if _, err := r.ps.Receive(ctx); err != nil {
		_ = r.ps.Close()
		return nil, fmt.Errorf("psubscribe %s*: %w", r.prefix, err)
	}

	r.wg.Add(1)
	go r.receive()

	logger.Info("redis broker subscribed", zap.String("pattern", r.prefix+"*"))
	return r, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) receive() {
	defer r.wg.Done()
	for msg := range r.ps.Channel(redis.WithChannelSize(1024)) {
		r.handle(msg)
	}
}

func (r *Redis) handle(msg *redis.Message) {
	group, ok := strings.CutPrefix(msg.Channel, r.prefix)
	if !ok {
		return
	}
	ev, err := events.Decode([]byte(msg.Payload))
	if err != nil {
		r.logger.Warn("dropping undecodable redis event",
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
		return
	}
	_ = r.local.Publish(context.Background(), Group(group), ev)
}

func (r *Redis) Subscribe(ctx context.Context, group Group, sub Subscriber) error {
	return r.local.Subscribe(ctx, group, sub)
}

func (r *Redis) Unsubscribe(ctx context.Context, group Group, sub Subscriber) error {
	return r.local.Unsubscribe(ctx, group, sub)
}

func (r *Redis) Publish(ctx context.Context, group Group, ev events.Event) error {
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.prefix+string(group), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", group, err)
	}
	return nil
}

func (r *Redis) Stats() Stats { return r.local.Stats() }

func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.ps.Close()
		r.wg.Wait()
		_ = r.local.Close()
	})
	return err
}
