package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/mocktest-backend/internal/model"
)

const (
	waitFor = 2 * time.Second
	pollInt = 5 * time.Millisecond
)

type fakeBank struct {
	mu        sync.Mutex
	questions map[model.TestKind][]model.Question
	err       error
	gate      chan struct{}
	calls     int
}

func (b *fakeBank) ListQuestions(ctx context.Context, kind model.TestKind) ([]model.Question, error) {
	b.mu.Lock()
	b.calls++
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return append([]model.Question(nil), b.questions[kind]...), nil
}

type recordingSink struct {
	mu          sync.Mutex
	fail        error
	progress    []model.AnswerRecord
	orders      []model.QuestionOrder
	results     []model.ResultSummary
	resultUsers []string
}

func (s *recordingSink) RecordProgress(_ context.Context, _ string, rec model.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, rec)
	return s.fail
}

func (s *recordingSink) RecordOrder(_ context.Context, order model.QuestionOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, order)
	return s.fail
}

func (s *recordingSink) RecordResult(_ context.Context, _, userID string, summary model.ResultSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, summary)
	s.resultUsers = append(s.resultUsers, userID)
	return s.fail
}

func (s *recordingSink) counts() (progress, orders, results int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.progress), len(s.orders), len(s.results)
}

type runnerFixture struct {
	runner *Runner
	clock  fakeClock
	bank   *fakeBank
	sink   *recordingSink
}

func newRunnerFixture(t *testing.T, userID string, budgets Budgets) *runnerFixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	bank := &fakeBank{questions: map[model.TestKind][]model.Question{
		model.TestKindAptitude:  choiceQuestions(4),
		model.TestKindTechnical: openQuestions(model.TestKindTechnical, 3),
		model.TestKindGD:        openQuestions(model.TestKindGD, 2),
	}}
	sink := &recordingSink{}

	r := NewRunner(RunnerConfig{
		ID:          "session-1",
		UserID:      userID,
		Clock:       clock,
		Budgets:     budgets,
		Bank:        bank,
		Progress:    sink,
		Orders:      sink,
		Results:     sink,
		SinkTimeout: time.Second,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(r.Close)

	return &runnerFixture{runner: r, clock: clock, bank: bank, sink: sink}
}

// snapshot is safe to call from Eventually conditions; a closed runner
// yields the zero snapshot.
func (f *runnerFixture) snapshot(_ *testing.T) model.SessionSnapshot {
	s, _ := f.runner.Snapshot(context.Background())
	return s
}

// tick advances the fake clock one second and waits until the loop has
// consumed the tick.
func (f *runnerFixture) tick(t *testing.T, wantRemaining int) {
	t.Helper()
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return f.snapshot(t).RemainingSeconds == wantRemaining
	}, waitFor, pollInt)
}

func TestRunner_StartLoadsAndRecordsOrder(t *testing.T) {
	f := newRunnerFixture(t, "u1", nil)
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))

	snap := f.snapshot(t)
	assert.Equal(t, "session-1", snap.SessionID)
	assert.Equal(t, model.SessionPhaseRunning, snap.Phase)
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 1200, snap.RemainingSeconds)
	assert.True(t, snap.Shuffled)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "q3", snap.Current.ID)

	require.Eventually(t, func() bool {
		_, orders, _ := f.sink.counts()
		return orders == 1
	}, waitFor, pollInt)

	f.sink.mu.Lock()
	order := f.sink.orders[0]
	f.sink.mu.Unlock()
	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, model.TestKindAptitude, order.Kind)
	assert.Equal(t, 1, order.Variant)
	assert.Equal(t, uint64(16572028513261967572), order.Seed)
	assert.Equal(t, []string{"q3", "q2", "q1", "q4"}, order.QuestionIDs)
}

func TestRunner_TimeoutFinalizesOnce(t *testing.T) {
	f := newRunnerFixture(t, "u1", Budgets{model.TestKindAptitude: 2})
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))

	f.tick(t, 1)
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return f.snapshot(t).Phase == model.SessionPhaseFinished
	}, waitFor, pollInt)

	assert.ErrorIs(t, f.runner.FinishEarly(ctx), ErrInvalidPhase)
	_, err := f.runner.SubmitChoice(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidPhase)

	// The timer is gone, so further time changes nothing.
	f.clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool {
		_, _, results := f.sink.counts()
		return results == 1
	}, waitFor, pollInt)
	time.Sleep(20 * time.Millisecond)
	_, _, results := f.sink.counts()
	assert.Equal(t, 1, results)

	summary, err := f.runner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.FinishReasonTimeout, summary.FinishReason)
	assert.Equal(t, 4, summary.Total)
}

func TestRunner_PauseStopsCountdown(t *testing.T) {
	f := newRunnerFixture(t, "u1", Budgets{model.TestKindAptitude: 60})
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))
	f.tick(t, 59)

	require.NoError(t, f.runner.Pause(ctx))
	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Second)
	}
	snap := f.snapshot(t)
	assert.Equal(t, model.SessionPhasePaused, snap.Phase)
	assert.Equal(t, 59, snap.RemainingSeconds)

	require.NoError(t, f.runner.Resume(ctx))
	f.tick(t, 58)
}

func TestRunner_PauseMidSecondDoesNotRefundTime(t *testing.T) {
	f := newRunnerFixture(t, "u1", Budgets{model.TestKindAptitude: 3})
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))

	for i := 0; i < 10; i++ {
		f.clock.Advance(900 * time.Millisecond)
		if err := f.runner.Pause(ctx); err != nil {
			require.ErrorIs(t, err, ErrInvalidPhase)
			break
		}
		require.NoError(t, f.runner.Resume(ctx))
	}

	require.Eventually(t, func() bool {
		return f.snapshot(t).Phase == model.SessionPhaseFinished
	}, waitFor, pollInt)

	summary, err := f.runner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.FinishReasonTimeout, summary.FinishReason)
}

func TestRunner_ResumeFiresRemainderOfSecond(t *testing.T) {
	f := newRunnerFixture(t, "u1", Budgets{model.TestKindAptitude: 60})
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))
	f.clock.Advance(700 * time.Millisecond)
	require.NoError(t, f.runner.Pause(ctx))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.runner.Resume(ctx))

	f.clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool {
		return f.snapshot(t).RemainingSeconds == 59
	}, waitFor, pollInt)
}

func TestRunner_ResetDuringLoadDiscardsFetch(t *testing.T) {
	f := newRunnerFixture(t, "u1", nil)
	gate := make(chan struct{})
	f.bank.gate = gate
	ctx := context.Background()

	started := make(chan error, 1)
	go func() { started <- f.runner.Start(ctx, model.TestKindAptitude, 1) }()

	require.Eventually(t, func() bool {
		return f.snapshot(t).Phase == model.SessionPhaseLoading
	}, waitFor, pollInt)

	require.NoError(t, f.runner.Reset(ctx))
	select {
	case err := <-started:
		assert.ErrorIs(t, err, ErrLoadCancelled)
	case <-time.After(waitFor):
		t.Fatal("Start did not return after reset")
	}

	close(gate)
	time.Sleep(20 * time.Millisecond)

	snap := f.snapshot(t)
	assert.Equal(t, model.SessionPhaseIdle, snap.Phase)
	assert.Zero(t, snap.Total)
	_, orders, _ := f.sink.counts()
	assert.Zero(t, orders)
}

func TestRunner_LoadFailureReturnsToIdle(t *testing.T) {
	f := newRunnerFixture(t, "u1", nil)
	f.bank.questions[model.TestKindGD] = nil
	ctx := context.Background()

	err := f.runner.Start(ctx, model.TestKindGD, 1)
	assert.ErrorIs(t, err, ErrEmptyBank)
	assert.ErrorIs(t, err, ErrLoadFailed)

	snap := f.snapshot(t)
	assert.Equal(t, model.SessionPhaseIdle, snap.Phase)
	assert.NotEmpty(t, snap.LoadError)

	f.bank.mu.Lock()
	f.bank.err = errors.New("db down")
	f.bank.mu.Unlock()
	err = f.runner.Start(ctx, model.TestKindAptitude, 1)
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestRunner_SinkFailureDoesNotAlterLog(t *testing.T) {
	f := newRunnerFixture(t, "u1", nil)
	f.sink.fail = errors.New("redis down")
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))
	_, err := f.runner.SubmitChoice(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.runner.Advance(ctx))

	require.Eventually(t, func() bool {
		progress, _, _ := f.sink.counts()
		return progress == 1
	}, waitFor, pollInt)

	answers, err := f.runner.Answers(ctx)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
	assert.Equal(t, 1, f.snapshot(t).Position)
}

func TestRunner_AnonymousSkipsProgressButRecordsResult(t *testing.T) {
	f := newRunnerFixture(t, "", nil)
	ctx := context.Background()

	require.NoError(t, f.runner.Start(ctx, model.TestKindTechnical, 1))
	_, err := f.runner.SubmitText(ctx, "answer")
	require.NoError(t, err)
	require.NoError(t, f.runner.FinishEarly(ctx))

	require.Eventually(t, func() bool {
		_, _, results := f.sink.counts()
		return results == 1
	}, waitFor, pollInt)

	progress, orders, _ := f.sink.counts()
	assert.Zero(t, progress)
	assert.Zero(t, orders)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	assert.Equal(t, "", f.sink.resultUsers[0])
	assert.Equal(t, 1, f.sink.results[0].Answered)
	assert.Equal(t, model.FinishReasonManual, f.sink.results[0].FinishReason)
}

func TestRunner_SubscribeReceivesEvents(t *testing.T) {
	f := newRunnerFixture(t, "u1", nil)
	ctx := context.Background()

	events, unsubscribe, err := f.runner.Subscribe(ctx)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))
	_, err = f.runner.SubmitChoice(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, f.runner.FinishEarly(ctx))

	var types []EventType
	var finished *Event
	timeout := time.After(waitFor)
	for finished == nil {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			if ev.Type == EventFinished {
				finished = &ev
			}
		case <-timeout:
			t.Fatalf("no finished event, got %v", types)
		}
	}

	assert.Contains(t, types, EventPhase)
	assert.Contains(t, types, EventAnswer)
	require.NotNil(t, finished.Summary)
	assert.Equal(t, model.SessionPhaseFinished, finished.Snapshot.Phase)
	assert.Equal(t, 1, finished.Summary.Answered)
}

func TestRunner_CloseIsIdempotent(t *testing.T) {
	f := newRunnerFixture(t, "u1", nil)
	ctx := context.Background()

	events, _, err := f.runner.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, f.runner.Start(ctx, model.TestKindAptitude, 1))

	f.runner.Close()
	f.runner.Close()

	_, err = f.runner.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, f.runner.Advance(ctx), ErrSessionClosed)

	for range events {
	}
}
