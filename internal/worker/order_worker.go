package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/config"
)

// OrderWorker consumes persist_question_order_queue and upserts question_orders.
type OrderWorker struct {
	db execer
	b  *batcher[OrderPayload]
}

func NewOrderWorker(db execer, rdb queueStore, log zerolog.Logger) *OrderWorker {
	w := &OrderWorker{db: db}
	w.b = newBatcher(config.WorkerKey.PersistQuestionOrderQueue, rdb,
		log.With().Str("component", "order_worker").Logger(),
		w.bulkUpsert, w.upsertSingle)
	return w
}

func (w *OrderWorker) Start(ctx context.Context) {
	w.b.log.Info().Msg("OrderWorker started")
	w.b.run(ctx)
	w.b.log.Info().Msg("OrderWorker stopped")
}

type orderKey struct {
	userID  string
	kind    string
	variant int
}

// dedupeOrders keeps the last payload per (user, kind, variant). A single
// INSERT ... ON CONFLICT cannot touch the same row twice.
func dedupeOrders(batch []OrderPayload) []OrderPayload {
	last := make(map[orderKey]int, len(batch))
	for i, p := range batch {
		last[orderKey{p.UserID, p.Kind, p.Variant}] = i
	}
	out := make([]OrderPayload, 0, len(last))
	for i, p := range batch {
		if last[orderKey{p.UserID, p.Kind, p.Variant}] == i {
			out = append(out, p)
		}
	}
	return out
}

// seedColumn stores the unsigned seed in a BIGINT by reinterpreting its bits.
func seedColumn(seed uint64) int64 {
	return int64(seed)
}

func (w *OrderWorker) bulkUpsert(ctx context.Context, batch []OrderPayload) error {
	rows := dedupeOrders(batch)
	n := len(rows)

	users := make([]string, 0, n)
	kinds := make([]string, 0, n)
	variants := make([]int32, 0, n)
	seeds := make([]int64, 0, n)
	orders := make([][]byte, 0, n)

	for _, p := range rows {
		ob, err := json.Marshal(p.QuestionIDs)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		users = append(users, p.UserID)
		kinds = append(kinds, p.Kind)
		variants = append(variants, int32(p.Variant))
		seeds = append(seeds, seedColumn(p.Seed))
		orders = append(orders, ob)
	}

	query := `
		INSERT INTO question_orders (user_id, kind, variant, seed, question_ids, updated_at)
		SELECT u.user_id, u.kind, u.variant, u.seed, u.question_ids, NOW()
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::int[],
			$4::bigint[],
			$5::jsonb[]
		) AS u (user_id, kind, variant, seed, question_ids)
		ON CONFLICT (user_id, kind, variant) DO UPDATE
		SET seed = EXCLUDED.seed,
		    question_ids = EXCLUDED.question_ids,
		    updated_at = NOW()
	`

	_, err := w.db.Exec(ctx, query, users, kinds, variants, seeds, orders)
	return err
}

func (w *OrderWorker) upsertSingle(ctx context.Context, p OrderPayload) error {
	ob, err := json.Marshal(p.QuestionIDs)
	if err != nil {
		return err
	}

	_, err = w.db.Exec(ctx,
		`INSERT INTO question_orders (user_id, kind, variant, seed, question_ids, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (user_id, kind, variant) DO UPDATE
		 SET seed = EXCLUDED.seed, question_ids = EXCLUDED.question_ids, updated_at = NOW()`,
		p.UserID, p.Kind, p.Variant, seedColumn(p.Seed), ob,
	)
	return err
}
