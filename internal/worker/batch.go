package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second

	// MaxAttempts bounds the single-row writes a payload gets before it is
	// parked on the dead-letter list.
	MaxAttempts = 5
)

// DeadLetterQueue names the list that holds payloads of queue which kept
// failing.
func DeadLetterQueue(queue string) string {
	return queue + ":dead"
}

// retryable is a queue payload that counts its failed writes.
type retryable[T any] interface {
	attempts() int
	retried() T
}

// queueStore is the subset of *redis.Client the workers use.
type queueStore interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// execer is the subset of *pgxpool.Pool the workers use.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// batcher drains one Redis list into PostgreSQL. Items are collected until
// size is reached or timeout passes since the last flush; a flush tries one
// bulk statement and falls back to per-row writes, requeueing rows that
// still fail. A row that fails MaxAttempts times goes to the dead-letter list
// instead. The remaining batch is flushed on shutdown.
type batcher[T retryable[T]] struct {
	queue   string
	rdb     queueStore
	log     zerolog.Logger
	size    int
	timeout time.Duration
	poll    time.Duration

	bulk   func(ctx context.Context, batch []T) error
	single func(ctx context.Context, item T) error
}

func newBatcher[T retryable[T]](queue string, rdb queueStore, log zerolog.Logger,
	bulk func(context.Context, []T) error, single func(context.Context, T) error) *batcher[T] {
	return &batcher[T]{
		queue:   queue,
		rdb:     rdb,
		log:     log,
		size:    BatchSize,
		timeout: BatchTimeout,
		poll:    PollTimeout,
		bulk:    bulk,
		single:  single,
	}
}

func (b *batcher[T]) run(ctx context.Context) {
	batch := make([]T, 0, b.size)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= b.size || time.Since(lastFlush) >= b.timeout) {

			b.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			b.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			b.flushSafe(context.Background(), batch)
			return

		default:
			item, err := b.rdb.BLPop(ctx, b.poll, b.queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					b.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p T
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				b.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, p)
		}
	}
}

func (b *batcher[T]) flushSafe(ctx context.Context, batch []T) {
	if len(batch) == 0 {
		return
	}

	err := b.bulk(ctx, batch)
	if err == nil {
		b.log.Debug().Int("rows", len(batch)).Msg("Batch flushed")
		return
	}

	b.log.Warn().Err(err).Int("rows", len(batch)).Msg("Bulk write failed, using fallback")
	for _, p := range batch {
		if err := b.single(ctx, p); err != nil {
			b.requeue(ctx, p.retried(), err)
		}
	}
}

func (b *batcher[T]) requeue(ctx context.Context, p T, cause error) {
	target := b.queue
	if p.attempts() >= MaxAttempts {
		target = DeadLetterQueue(b.queue)
		b.log.Error().Err(cause).Int("attempts", p.attempts()).Str("queue", target).Msg("Single write failed, moving to dead-letter list")
	} else {
		b.log.Error().Err(cause).Int("attempts", p.attempts()).Msg("Single write failed, requeueing")
	}

	raw, _ := json.Marshal(p)
	if err := b.rdb.RPush(ctx, target, raw).Err(); err != nil {
		b.log.Error().Err(err).Msg("Requeue failed, row dropped")
	}
}
