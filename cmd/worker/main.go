package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/config"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/queue"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/store"
)

// Worker consumes scan events and keeps per-day Redis counters warm so the
// dashboard does not hammer Postgres for live tallies.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "absensi:scans")
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for scan events...")
	for evt := range events {
		dayKey := "absensi:count:" + evt.Day
		classKey := dayKey + ":" + evt.ClassName

		pipe := redisClient.Client.Pipeline()
		pipe.Incr(ctx, dayKey)
		pipe.Incr(ctx, classKey)
		pipe.Expire(ctx, dayKey, 48*time.Hour)
		pipe.Expire(ctx, classKey, 48*time.Hour)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("counter update failed for record %s: %v", evt.RecordID, err)
			continue
		}

		log.Printf("record %s counted for %s (%s)", evt.RecordID, evt.ClassName, evt.Day)
	}

	log.Println("worker stopped")
}
