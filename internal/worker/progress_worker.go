package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/config"
)

// ProgressWorker consumes persist_progress_queue and appends answers to user_progress.
type ProgressWorker struct {
	db execer
	b  *batcher[ProgressPayload]
}

// NewProgressWorker creates a new ProgressWorker. Pass a *pgxpool.Pool and a *redis.Client.
func NewProgressWorker(db execer, rdb queueStore, log zerolog.Logger) *ProgressWorker {
	w := &ProgressWorker{db: db}
	w.b = newBatcher(config.WorkerKey.PersistProgressQueue, rdb,
		log.With().Str("component", "progress_worker").Logger(),
		w.bulkInsert, w.insertSingle)
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.b.log.Info().Msg("ProgressWorker started")
	w.b.run(ctx)
	w.b.log.Info().Msg("ProgressWorker stopped")
}

type progressColumns struct {
	userIDs     []string
	questionIDs []string
	types       []string
	answers     []string
	correct     []*bool
	spent       []int32
	answeredAt  []time.Time
}

func toProgressColumns(batch []ProgressPayload) progressColumns {
	n := len(batch)
	cols := progressColumns{
		userIDs:     make([]string, 0, n),
		questionIDs: make([]string, 0, n),
		types:       make([]string, 0, n),
		answers:     make([]string, 0, n),
		correct:     make([]*bool, 0, n),
		spent:       make([]int32, 0, n),
		answeredAt:  make([]time.Time, 0, n),
	}
	for _, p := range batch {
		cols.userIDs = append(cols.userIDs, p.UserID)
		cols.questionIDs = append(cols.questionIDs, p.QuestionID)
		cols.types = append(cols.types, p.QuestionType)
		cols.answers = append(cols.answers, p.Answer)
		cols.correct = append(cols.correct, p.IsCorrect)
		cols.spent = append(cols.spent, int32(p.TimeSpentSeconds))
		cols.answeredAt = append(cols.answeredAt, answeredAtOrNow(p.AnsweredAt))
	}
	return cols
}

func answeredAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (w *ProgressWorker) bulkInsert(ctx context.Context, batch []ProgressPayload) error {
	cols := toProgressColumns(batch)

	query := `
		INSERT INTO user_progress
			(user_id, question_id, question_type, answer, is_correct, time_spent_seconds, created_at)
		SELECT * FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::bool[],
			$6::int[],
			$7::timestamptz[]
		)
	`

	_, err := w.db.Exec(ctx, query,
		cols.userIDs, cols.questionIDs, cols.types, cols.answers, cols.correct, cols.spent, cols.answeredAt)
	return err
}

func (w *ProgressWorker) insertSingle(ctx context.Context, p ProgressPayload) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO user_progress
			(user_id, question_id, question_type, answer, is_correct, time_spent_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.UserID, p.QuestionID, p.QuestionType, p.Answer, p.IsCorrect, p.TimeSpentSeconds, answeredAtOrNow(p.AnsweredAt),
	)
	return err
}
