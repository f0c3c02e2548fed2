package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/session"
)

// Redis carries Invalidations between the instances of the portal over Pub/Sub.
type Redis struct {
	client *redis.Client
	prefix string
	logger core.Logger
}

var _ session.Notifier = (*Redis)(nil)

func NewRedis(client *redis.Client, prefix string, logger core.Logger) *Redis {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

func (r *Redis) channel(browser string) string {
	return r.prefix + ":invalidate:" + browser
}

func (r *Redis) Publish(ctx context.Context, ev session.Invalidation) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshalling invalidation")
	}
	return errors.Wrap(r.client.Publish(ctx, r.channel(ev.Browser), data).Err(), "redis publish")
}

// Subscribe returns once the subscription is confirmed by the server.
func (r *Redis) Subscribe(ctx context.Context, browser string) (session.Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(browser))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	sub := &redisSub{
		pubsub: pubsub,
		ch:     make(chan session.Invalidation, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.forward(ctx, r.logger)
	return sub, nil
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan session.Invalidation
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) forward(ctx context.Context, logger core.Logger) {
	defer close(s.ch)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev session.Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("broadcast: dropping undecodable invalidation", errors.Wrap(err, msg.Channel))
				continue
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}

func (s *redisSub) C() <-chan session.Invalidation { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
