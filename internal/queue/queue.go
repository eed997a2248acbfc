// Package queue carries scan events from the API to the stats worker. The
// feed is advisory: losing an event costs a warm cache entry, never a
// ledger row.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanEvent is published after every successful ledger mutation from a scan.
type ScanEvent struct {
	RecordID  string    `json:"record_id"`
	StudentID string    `json:"student_id"`
	ClassName string    `json:"class_name"`
	Day       string    `json:"day"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, evt ScanEvent) error
	Consume(ctx context.Context) (<-chan ScanEvent, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan ScanEvent
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan ScanEvent, size)}
}

// Publish enqueues an event.
func (q *InMemory) Publish(ctx context.Context, evt ScanEvent) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan ScanEvent, error) {
	out := make(chan ScanEvent)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-q.ch:
				out <- evt
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "absensi:scans"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues an event as JSON.
func (q *RedisQueue) Publish(ctx context.Context, evt ScanEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// Consume streams events using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan ScanEvent, error) {
	out := make(chan ScanEvent)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var evt ScanEvent
				if err := json.Unmarshal([]byte(res[1]), &evt); err == nil {
					out <- evt
				}
			}
		}
	}()
	return out, nil
}
