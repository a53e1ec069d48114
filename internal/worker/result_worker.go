package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/config"
)

// ResultWorker consumes persist_results_queue and keeps a historical copy of
// each finished session in mock_test_results. Rows are keyed by
// (session_id, finished_at) so requeued payloads are not duplicated.
type ResultWorker struct {
	db execer
	b  *batcher[ResultPayload]
}

func NewResultWorker(db execer, rdb queueStore, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{db: db}
	w.b = newBatcher(config.WorkerKey.PersistResultsQueue, rdb,
		log.With().Str("component", "result_worker").Logger(),
		w.bulkInsert, w.insertSingle)
	return w
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.b.log.Info().Msg("ResultWorker started")
	w.b.run(ctx)
	w.b.log.Info().Msg("ResultWorker stopped")
}

func byQuestionJSON(p ResultPayload) []byte {
	if len(p.ByQuestion) == 0 {
		return []byte("[]")
	}
	return p.ByQuestion
}

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []ResultPayload) error {
	n := len(batch)
	sessions := make([]string, 0, n)
	users := make([]*string, 0, n)
	kinds := make([]string, 0, n)
	graded := make([]bool, 0, n)
	totals := make([]int32, 0, n)
	answered := make([]int32, 0, n)
	correct := make([]*int32, 0, n)
	reasons := make([]string, 0, n)
	finished := make([]time.Time, 0, n)
	details := make([][]byte, 0, n)

	for _, p := range batch {
		sessions = append(sessions, p.SessionID)
		users = append(users, p.UserID)
		kinds = append(kinds, p.Kind)
		graded = append(graded, p.Graded)
		totals = append(totals, int32(p.Total))
		answered = append(answered, int32(p.Answered))
		if p.Correct != nil {
			c := int32(*p.Correct)
			correct = append(correct, &c)
		} else {
			correct = append(correct, nil)
		}
		reasons = append(reasons, p.FinishReason)
		finished = append(finished, p.FinishedAt)
		details = append(details, byQuestionJSON(p))
	}

	query := `
		INSERT INTO mock_test_results
			(session_id, user_id, kind, graded, total, answered, correct, finish_reason, finished_at, by_question)
		SELECT u.session_id::uuid, u.user_id, u.kind, u.graded, u.total, u.answered,
			u.correct, u.finish_reason, u.finished_at, u.by_question
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::text[],
			$4::bool[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::text[],
			$9::timestamptz[],
			$10::jsonb[]
		) AS u (session_id, user_id, kind, graded, total, answered, correct, finish_reason, finished_at, by_question)
		ON CONFLICT (session_id, finished_at) DO NOTHING
	`

	_, err := w.db.Exec(ctx, query,
		sessions, users, kinds, graded, totals, answered, correct, reasons, finished, details)
	return err
}

func (w *ResultWorker) insertSingle(ctx context.Context, p ResultPayload) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO mock_test_results
			(session_id, user_id, kind, graded, total, answered, correct, finish_reason, finished_at, by_question)
		 VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id, finished_at) DO NOTHING`,
		p.SessionID, p.UserID, p.Kind, p.Graded, p.Total, p.Answered, p.Correct,
		p.FinishReason, p.FinishedAt, byQuestionJSON(p),
	)
	return err
}
