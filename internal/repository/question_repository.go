package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/mocktest-backend/internal/model"
)

// ErrUnknownKind is returned for a test kind with no backing table.
var ErrUnknownKind = errors.New("unknown test kind")

// Bank order is insertion order; id breaks ties for rows created in the
// same transaction.
const (
	listAptitudeSQL = `SELECT id::text, question, options, correct_answer, COALESCE(explanation, ''),
		COALESCE(category, ''), COALESCE(level, 1)
		FROM aptitude_questions
		ORDER BY created_at, id`

	listTechnicalSQL = `SELECT id::text, title, COALESCE(description, ''), COALESCE(category, ''), COALESCE(level, 1)
		FROM technical_questions
		ORDER BY created_at, id`

	listGDSQL = `SELECT id::text, title, COALESCE(description, ''), COALESCE(category, ''), COALESCE(level, 1)
		FROM gd_topics
		ORDER BY created_at, id`
)

// QuestionRepository reads the question bank tables.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByKind returns every question of kind in bank order.
func (r *QuestionRepository) ListByKind(ctx context.Context, kind model.TestKind) ([]model.Question, error) {
	switch kind {
	case model.TestKindAptitude:
		return r.listChoice(ctx)
	case model.TestKindTechnical:
		return r.listOpen(ctx, kind, listTechnicalSQL)
	case model.TestKindGD:
		return r.listOpen(ctx, kind, listGDSQL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func (r *QuestionRepository) listChoice(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx, listAptitudeSQL)
	if err != nil {
		return nil, fmt.Errorf("query aptitude questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q := model.Question{Kind: model.TestKindAptitude, Choice: &model.ChoiceBody{}}
		if err := rows.Scan(&q.ID, &q.Choice.Prompt, &q.Choice.Options, &q.Choice.Correct,
			&q.Choice.Explanation, &q.Category, &q.Level); err != nil {
			return nil, fmt.Errorf("scan aptitude question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *QuestionRepository) listOpen(ctx context.Context, kind model.TestKind, query string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s questions: %w", kind, err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q := model.Question{Kind: kind, Open: &model.OpenBody{}}
		if err := rows.Scan(&q.ID, &q.Open.Title, &q.Open.Description, &q.Category, &q.Level); err != nil {
			return nil, fmt.Errorf("scan %s question: %w", kind, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a question into its kind's table and sets q.ID.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return createQuestion(ctx, r.pool, q)
}

// CreateTx is Create inside an existing transaction.
func (r *QuestionRepository) CreateTx(ctx context.Context, tx pgx.Tx, q *model.Question) error {
	return createQuestion(ctx, tx, q)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createQuestion(ctx context.Context, db queryRower, q *model.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}

	var row pgx.Row
	switch q.Kind {
	case model.TestKindAptitude:
		row = db.QueryRow(ctx,
			`INSERT INTO aptitude_questions (question, options, correct_answer, explanation, category, level)
			 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
			 RETURNING id::text`,
			q.Choice.Prompt, q.Choice.Options, q.Choice.Correct, q.Choice.Explanation, q.Category, q.Level,
		)
	case model.TestKindTechnical:
		row = db.QueryRow(ctx,
			`INSERT INTO technical_questions (title, description, category, level)
			 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
			 RETURNING id::text`,
			q.Open.Title, q.Open.Description, q.Category, q.Level,
		)
	case model.TestKindGD:
		row = db.QueryRow(ctx,
			`INSERT INTO gd_topics (title, description, category, level)
			 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
			 RETURNING id::text`,
			q.Open.Title, q.Open.Description, q.Category, q.Level,
		)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, q.Kind)
	}
	return row.Scan(&q.ID)
}
