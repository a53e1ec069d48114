package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/config"
	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/session"
)

// BudgetsFromConfig builds the per-kind time budgets from configuration.
func BudgetsFromConfig(cfg *config.Config) session.Budgets {
	return session.Budgets{
		model.TestKindAptitude:  cfg.AptitudeDurationSeconds,
		model.TestKindTechnical: cfg.TechnicalDurationSeconds,
		model.TestKindGD:        cfg.GDDurationSeconds,
	}
}

// SessionService opens and closes live mock test sessions.
type SessionService struct {
	registry       *session.Registry
	budgets        session.Budgets
	defaultVariant int
	log            zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(registry *session.Registry, budgets session.Budgets, defaultVariant int, log zerolog.Logger) *SessionService {
	if defaultVariant <= 0 {
		defaultVariant = 1
	}
	return &SessionService{
		registry:       registry,
		budgets:        budgets,
		defaultVariant: defaultVariant,
		log:            log.With().Str("component", "session_service").Logger(),
	}
}

// Catalog lists the selectable tests with their durations.
func (s *SessionService) Catalog() []model.TestCatalogEntry {
	out := make([]model.TestCatalogEntry, 0, len(model.AllTestKinds))
	for _, kind := range model.AllTestKinds {
		out = append(out, model.TestCatalogEntry{
			Kind:            kind,
			Title:           kind.Title(),
			Graded:          kind.Graded(),
			DurationSeconds: s.budgets.For(kind),
		})
	}
	return out
}

// Open creates a session for userID ("" for anonymous). When kind is set the
// test is started immediately; if that fails the session is closed again.
func (s *SessionService) Open(ctx context.Context, userID string, kind model.TestKind, variant int) (*session.Runner, error) {
	runner := s.registry.Open(userID)
	s.log.Info().Str("session_id", runner.ID()).Bool("anonymous", userID == "").Msg("Session opened")

	if kind == "" {
		return runner, nil
	}
	if err := s.Start(ctx, runner, kind, variant); err != nil {
		_ = s.registry.Close(runner.ID())
		return nil, err
	}
	return runner, nil
}

// Start selects a test in an existing session. A zero variant uses the
// configured default.
func (s *SessionService) Start(ctx context.Context, runner *session.Runner, kind model.TestKind, variant int) error {
	if variant <= 0 {
		variant = s.defaultVariant
	}
	if err := runner.Start(ctx, kind, variant); err != nil {
		return fmt.Errorf("start %s test: %w", kind, err)
	}
	return nil
}

// Close tears down a session and its countdown.
func (s *SessionService) Close(id string) error {
	if err := s.registry.Close(id); err != nil {
		return err
	}
	s.log.Info().Str("session_id", id).Msg("Session closed")
	return nil
}
