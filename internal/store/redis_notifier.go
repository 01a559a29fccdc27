package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const changedMessage = "changed"

// RedisNotifier fans change signals out over Redis pub/sub so that API and
// bot processes sharing one database see each other's writes.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, prefix string, logger *zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix, logger: logger}
}

func (n *RedisNotifier) channel(partitionKey string) string {
	return n.prefix + partitionKey
}

func (n *RedisNotifier) Notify(ctx context.Context, partitionKey string) error {
	if err := n.client.Publish(ctx, n.channel(partitionKey), changedMessage).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, partitionKey string) (Listener, error) {
	ps := n.client.Subscribe(ctx, n.channel(partitionKey))
	// ждём подтверждения подписки, иначе первые уведомления могут потеряться
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &redisListener{
		ps:      ps,
		signals: make(chan struct{}, 1),
		errs:    make(chan error, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.loop(loopCtx, n.logger)
	return l, nil
}

type redisListener struct {
	ps      *redis.PubSub
	signals chan struct{}
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (l *redisListener) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(l.done)
	for {
		msg, err := l.ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			logger.Warn().Err(err).Msg("Redis change channel failed")
			l.errs <- err
			return
		}
		if msg.Payload == changedMessage {
			signal(l.signals)
		}
	}
}

func (l *redisListener) C() <-chan struct{} { return l.signals }

func (l *redisListener) Err() <-chan error { return l.errs }

func (l *redisListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.ps.Close()
		<-l.done
	})
	return err
}
