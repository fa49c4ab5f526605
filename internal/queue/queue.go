package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the redis list audit events are pushed to.
const DefaultKey = "rollcall:events"

// Message is one audit event: a type such as attendance.recorded and a JSON body.
type Message struct {
	Type string
	Body []byte
}

// Queue carries audit events from the api to whichever process consumes them.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory buffers events inside the api process. Publish blocks once the buffer is
// full until a consumer catches up or ctx ends.
type InMemory struct {
	ch chan Message
}

// NewInMemory buffers up to size events.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume hands buffered events to the returned channel until ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				if !deliver(ctx, out, msg) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue shares events between the api and the worker through a redis list:
// LPUSH on publish, BRPOP on consume, so events come out oldest first.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
	retry  time.Duration
}

// NewRedisQueue uses the list at key, DefaultKey when empty.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second, retry: 250 * time.Millisecond}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, encode(msg)).Err()
}

// Pending counts events published but not yet consumed.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consume pops events until ctx ends. Connection errors are retried after a pause.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				select {
				case <-time.After(q.retry):
				case <-ctx.Done():
				}
				continue
			case len(res) != 2:
				continue
			}
			if !deliver(ctx, out, decode(res[1])) {
				return
			}
		}
	}()
	return out, nil
}

func deliver(ctx context.Context, out chan<- Message, msg Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// encode writes Type|Body. The body may itself contain '|'.
func encode(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func decode(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
