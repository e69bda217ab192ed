package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var NilError = goredis.Nil

type Options = goredis.UniversalOptions

// StreamMessage is one entry read from a redis stream.
type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}

// Adapter is the slice of redis this service uses: key/value operations for
// the idempotency guard and stream operations for the dispatch queue.
type Adapter interface {
	Set(key string, value []byte, ttl time.Duration) error
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Get(key string) ([]byte, error)
	Del(key string) error
	Exist(key string) (int64, error)

	XAdd(key string, values map[string]interface{}) (string, error)
	XReadGroup(group, consumer, key, id string, count int64) ([]StreamMessage, error)
	XAck(key, group string, ids ...string) error
	XGroupCreateMkStream(key, group, start string) error
	XLen(key string) (int64, error)
	XTrimApprox(key string, maxLen int64) error
	XPending(key, group string) (*goredis.XPending, error)
	XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error)
	XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)

	Client() goredis.UniversalClient
}

type adapter struct {
	prefix string
	conn   goredis.UniversalClient
}

// NewAdapter connects and pings. Each caller owns its adapter; there is no
// process-wide instance registry.
func NewAdapter(keysPrefix string, opts *goredis.UniversalOptions) (Adapter, error) {
	c := goredis.NewUniversalClient(opts)
	if cmd := c.Ping(context.Background()); cmd.Err() != nil {
		return nil, cmd.Err()
	}
	return &adapter{conn: c, prefix: keysPrefix}, nil
}

// NewAdapterWithClient wraps an existing client, used by tests backed by
// miniredis.
func NewAdapterWithClient(keysPrefix string, c goredis.UniversalClient) Adapter {
	return &adapter{conn: c, prefix: keysPrefix}
}

func (r *adapter) Set(key string, value []byte, ttl time.Duration) error {
	return r.conn.Set(context.Background(), r.prefix+key, value, ttl).Err()
}

func (r *adapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	cmd := r.conn.SetNX(context.Background(), r.prefix+key, value, ttl)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	return cmd.Val(), nil
}

func (r *adapter) Get(key string) ([]byte, error) {
	st := r.conn.Get(context.Background(), r.prefix+key)
	if err := st.Err(); err != nil {
		return nil, err
	}
	return st.Bytes()
}

func (r *adapter) Del(key string) error {
	return r.conn.Del(context.Background(), r.prefix+key).Err()
}

func (r *adapter) Exist(key string) (int64, error) {
	return r.conn.Exists(context.Background(), r.prefix+key).Result()
}

func (r *adapter) Client() goredis.UniversalClient {
	return r.conn
}

func (r *adapter) XAdd(key string, values map[string]interface{}) (string, error) {
	cmd := r.conn.XAdd(context.Background(), &goredis.XAddArgs{
		Stream: r.prefix + key,
		ID:     "*",
		Values: values,
	})
	if cmd.Err() != nil {
		return "", cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *adapter) XReadGroup(group, consumer, key, id string, count int64) ([]StreamMessage, error) {
	streams := r.conn.XReadGroup(context.Background(), &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.prefix + key, id},
		Count:    count,
		Block:    0,
	})
	if streams.Err() != nil {
		return nil, streams.Err()
	}

	var messages []StreamMessage
	for _, stream := range streams.Val() {
		for _, msg := range stream.Messages {
			messages = append(messages, StreamMessage{ID: msg.ID, Values: msg.Values})
		}
	}
	return messages, nil
}

func (r *adapter) XAck(key, group string, ids ...string) error {
	return r.conn.XAck(context.Background(), r.prefix+key, group, ids...).Err()
}

func (r *adapter) XGroupCreateMkStream(key, group, start string) error {
	return r.conn.XGroupCreateMkStream(context.Background(), r.prefix+key, group, start).Err()
}

func (r *adapter) XLen(key string) (int64, error) {
	cmd := r.conn.XLen(context.Background(), r.prefix+key)
	if cmd.Err() != nil {
		return 0, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *adapter) XTrimApprox(key string, maxLen int64) error {
	return r.conn.XTrimMaxLenApprox(context.Background(), r.prefix+key, maxLen, 0).Err()
}

func (r *adapter) XPending(key, group string) (*goredis.XPending, error) {
	cmd := r.conn.XPending(context.Background(), r.prefix+key, group)
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *adapter) XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	cmd := r.conn.XPendingExt(context.Background(), &goredis.XPendingExtArgs{
		Stream: r.prefix + key,
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	})
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *adapter) XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	cmd := r.conn.XClaim(context.Background(), &goredis.XClaimArgs{
		Stream:   r.prefix + key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	})
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}

	var messages []StreamMessage
	for _, msg := range cmd.Val() {
		messages = append(messages, StreamMessage{ID: msg.ID, Values: msg.Values})
	}
	return messages, nil
}
