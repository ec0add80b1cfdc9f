package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/matst80/zebra-signal/internal/obs"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueue   = 1024
	publishTimeout = 2 * time.Second
)

// RedisOptions configures the Redis sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Queue    int // buffered events before new ones are dropped
}

// RedisSink publishes events as JSON on a Redis pub/sub channel from a
// single background worker.
type RedisSink struct {
	client  *redis.Client
	channel string
	queue   chan Event

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink connects to Redis and starts the publishing worker.
func NewRedisSink(ctx context.Context, opt RedisOptions) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opt.Addr, Password: opt.Password, DB: opt.DB})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisSink(rdb, opt), nil
}

func newRedisSink(rdb *redis.Client, opt RedisOptions) *RedisSink {
	q := opt.Queue
	if q <= 0 {
		q = defaultQueue
	}
	ch := opt.Channel
	if ch == "" {
		ch = "zebra:events"
	}
	s := &RedisSink{client: rdb, channel: ch, queue: make(chan Event, q),
		done: make(chan struct{}), stopped: make(chan struct{})}
	go s.run()
	return s
}

// Publish enqueues ev. When the queue is full the event is dropped.
func (s *RedisSink) Publish(ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- ev:
	default:
		obs.ErrorsTotal.WithLabelValues("events_dropped").Inc()
	}
}

func (s *RedisSink) run() {
	defer close(s.stopped)
	for {
		select {
		case ev := <-s.queue:
			s.publish(ev)
		case <-s.done:
			for {
				select {
				case ev := <-s.queue:
					s.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *RedisSink) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		obs.Error("events.marshal", obs.Fields{"err": err.Error(), "kind": string(ev.Kind)})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		obs.Error("events.publish", obs.Fields{"err": err.Error(), "kind": string(ev.Kind)})
		obs.ErrorsTotal.WithLabelValues("events_publish").Inc()
	}
}

// Close stops accepting events, flushes what is queued and closes the
// client. Events published concurrently with Close may be dropped.
func (s *RedisSink) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		select {
		case <-s.stopped:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
