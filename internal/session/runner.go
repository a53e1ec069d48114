package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/stemsi/mocktest-backend/internal/model"
)

var (
	ErrLoadCancelled = errors.New("load cancelled by reset")
	ErrSessionClosed = errors.New("session closed")
)

const defaultSinkTimeout = 5 * time.Second

// RunnerConfig wires a runner to its collaborators. Progress, Orders and
// Results are optional.
type RunnerConfig struct {
	ID          string
	UserID      string
	Clock       clockwork.Clock
	Budgets     Budgets
	Bank        QuestionBank
	Progress    ProgressSink
	Orders      OrderRecorder
	Results     ResultRecorder
	SinkTimeout time.Duration
	Logger      zerolog.Logger
}

type command struct {
	fn   func() error
	done chan error
}

type loadResult struct {
	ticket    Ticket
	questions []model.Question
	err       error
}

// Runner owns one Machine and is the only goroutine that touches it.
// Commands, load completions and countdown ticks are applied one at a time.
type Runner struct {
	id          string
	userID      string
	clock       clockwork.Clock
	machine     *Machine
	bank        QuestionBank
	progress    ProgressSink
	orders      OrderRecorder
	results     ResultRecorder
	sinkTimeout time.Duration
	log         zerolog.Logger

	cmds  chan command
	loads chan loadResult

	// owned by the loop goroutine
	timer       clockwork.Timer
	waiters     map[uint64]chan error
	subs        map[int]chan Event
	nextSub     int
	lastPhase   model.SessionPhase
	reportedGen uint64

	lastActive atomic.Int64
	running    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// NewRunner creates the runner and starts its loop.
func NewRunner(cfg RunnerConfig) *Runner {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := cfg.SinkTimeout
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		id:          cfg.ID,
		userID:      cfg.UserID,
		clock:       clock,
		machine:     NewMachine(cfg.UserID, clock, cfg.Budgets),
		bank:        cfg.Bank,
		progress:    cfg.Progress,
		orders:      cfg.Orders,
		results:     cfg.Results,
		sinkTimeout: timeout,
		log:         cfg.Logger.With().Str("component", "session_runner").Str("session_id", cfg.ID).Logger(),
		cmds:        make(chan command),
		loads:       make(chan loadResult),
		waiters:     make(map[uint64]chan error),
		subs:        make(map[int]chan Event),
		lastPhase:   model.SessionPhaseIdle,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	r.touch()

	go r.loop()
	return r
}

func (r *Runner) ID() string     { return r.id }
func (r *Runner) UserID() string { return r.userID }

// Done is closed once the loop has stopped.
func (r *Runner) Done() <-chan struct{} { return r.done }

// IdleSince reports when the runner last received a call or countdown tick.
func (r *Runner) IdleSince() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

func (r *Runner) touch() {
	r.lastActive.Store(r.clock.Now().UnixNano())
}

func (r *Runner) loop() {
	defer close(r.done)

	for {
		var tick <-chan time.Time
		if r.timer != nil {
			tick = r.timer.Chan()
		}

		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case c := <-r.cmds:
			err := c.fn()
			r.settle()
			c.done <- err

		case res := <-r.loads:
			waiter, err := r.applyLoad(res)
			r.settle()
			if waiter != nil {
				waiter <- err
			}

		case <-tick:
			r.timer = nil
			r.touch()
			if r.machine.Tick() {
				r.log.Debug().Msg("Session expired")
			}
			r.publish(EventTick, nil)
			r.settle()
		}
	}
}

// settle runs after every event: it keeps a countdown timer armed exactly
// while RUNNING and reports a finalization once per generation. A fresh timer
// is armed for each second so a fire left over from before a pause is never
// read.
func (r *Runner) settle() {
	phase := r.machine.Phase()

	running := phase == model.SessionPhaseRunning
	r.running.Store(running)
	switch {
	case running && r.timer == nil:
		r.timer = r.clock.NewTimer(r.machine.NextTickIn())
	case !running && r.timer != nil:
		r.timer.Stop()
		r.timer = nil
	}

	if phase == model.SessionPhaseFinished && r.reportedGen != r.machine.Generation() {
		r.reportedGen = r.machine.Generation()
		summary, err := r.machine.Summary()
		if err == nil {
			r.publish(EventFinished, func(ev *Event) { ev.Summary = &summary })
			r.recordResult(summary)
		}
	}

	if phase != r.lastPhase {
		r.lastPhase = phase
		if phase != model.SessionPhaseFinished {
			r.publish(EventPhase, nil)
		}
	}
}

func (r *Runner) shutdown() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.running.Store(false)
	for gen, w := range r.waiters {
		w <- ErrSessionClosed
		delete(r.waiters, gen)
	}
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	r.log.Debug().Msg("Session closed")
}

func (r *Runner) applyLoad(res loadResult) (chan error, error) {
	waiter := r.waiters[res.ticket.Generation]
	delete(r.waiters, res.ticket.Generation)

	err := r.machine.Loaded(res.ticket, res.questions, res.err)
	switch {
	case errors.Is(err, ErrStaleLoad):
		r.log.Debug().Uint64("generation", res.ticket.Generation).Msg("Discarded stale load")
		return waiter, ErrLoadCancelled
	case err != nil:
		r.log.Warn().Err(err).Str("kind", string(res.ticket.Kind)).Msg("Question load failed")
		return waiter, err
	}

	if ids, seed, shuffled := r.machine.Order(); shuffled {
		r.recordOrder(model.QuestionOrder{
			UserID:      r.userID,
			Kind:        res.ticket.Kind,
			Variant:     res.ticket.Variant,
			Seed:        uint64(seed),
			QuestionIDs: ids,
		})
	}
	return waiter, nil
}

func (r *Runner) fetch(t Ticket) {
	var (
		qs  []model.Question
		err error
	)
	if r.bank == nil {
		err = errors.New("no question bank configured")
	} else {
		qs, err = r.bank.ListQuestions(r.ctx, t.Kind)
	}

	select {
	case r.loads <- loadResult{ticket: t, questions: qs, err: err}:
	case <-r.ctx.Done():
	}
}

func (r *Runner) snapshot() model.SessionSnapshot {
	s := r.machine.Snapshot()
	s.SessionID = r.id
	return s
}

func (r *Runner) publish(t EventType, mutate func(*Event)) {
	if len(r.subs) == 0 {
		return
	}
	ev := Event{Type: t, Snapshot: r.snapshot()}
	if mutate != nil {
		mutate(&ev)
	}
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Runner) dispatch(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.sinkTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.log.Warn().Err(err).Str("sink", what).Msg("Side effect failed")
		}
	}()
}

func (r *Runner) recordProgress(rec model.AnswerRecord) {
	if r.progress == nil || r.userID == "" {
		return
	}
	userID := r.userID
	r.dispatch("progress", func(ctx context.Context) error {
		return r.progress.RecordProgress(ctx, userID, rec)
	})
}

func (r *Runner) recordOrder(order model.QuestionOrder) {
	if r.orders == nil || r.userID == "" {
		return
	}
	r.dispatch("order", func(ctx context.Context) error {
		return r.orders.RecordOrder(ctx, order)
	})
}

func (r *Runner) recordResult(summary model.ResultSummary) {
	if r.results == nil {
		return
	}
	sessionID, userID := r.id, r.userID
	r.dispatch("result", func(ctx context.Context) error {
		return r.results.RecordResult(ctx, sessionID, userID, summary)
	})
}

// do runs fn on the loop and waits for its result.
func (r *Runner) do(ctx context.Context, fn func() error) error {
	r.touch()
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrSessionClosed
	}
	return <-c.done
}

// Start selects a test and blocks until its questions are loaded, the load
// fails, or a reset orphans it.
func (r *Runner) Start(ctx context.Context, kind model.TestKind, variant int) error {
	wait := make(chan error, 1)
	err := r.do(ctx, func() error {
		t, err := r.machine.Start(kind, variant)
		if err != nil {
			return err
		}
		r.waiters[t.Generation] = wait
		go r.fetch(t)
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrSessionClosed
	}
}

func (r *Runner) SubmitChoice(ctx context.Context, optionIndex int) (model.AnswerRecord, error) {
	var rec model.AnswerRecord
	err := r.do(ctx, func() error {
		var err error
		rec, err = r.machine.SubmitChoice(optionIndex)
		if err != nil {
			return err
		}
		r.afterAnswer(rec)
		return nil
	})
	return rec, err
}

func (r *Runner) SubmitText(ctx context.Context, text string) (model.AnswerRecord, error) {
	var rec model.AnswerRecord
	err := r.do(ctx, func() error {
		var err error
		rec, err = r.machine.SubmitText(text)
		if err != nil {
			return err
		}
		r.afterAnswer(rec)
		return nil
	})
	return rec, err
}

func (r *Runner) afterAnswer(rec model.AnswerRecord) {
	r.publish(EventAnswer, func(ev *Event) { ev.Answer = &rec })
	r.recordProgress(rec)
}

func (r *Runner) Advance(ctx context.Context) error {
	return r.do(ctx, func() error {
		if err := r.machine.Advance(); err != nil {
			return err
		}
		r.publish(EventPhase, nil)
		return nil
	})
}

func (r *Runner) Pause(ctx context.Context) error {
	return r.do(ctx, r.machine.Pause)
}

func (r *Runner) Resume(ctx context.Context) error {
	return r.do(ctx, r.machine.Resume)
}

func (r *Runner) FinishEarly(ctx context.Context) error {
	return r.do(ctx, r.machine.FinishEarly)
}

// Reset returns the session to IDLE. A pending Start returns ErrLoadCancelled.
func (r *Runner) Reset(ctx context.Context) error {
	return r.do(ctx, func() error {
		if err := r.machine.Reset(); err != nil {
			return err
		}
		for gen, w := range r.waiters {
			w <- ErrLoadCancelled
			delete(r.waiters, gen)
		}
		return nil
	})
}

func (r *Runner) Snapshot(ctx context.Context) (model.SessionSnapshot, error) {
	var s model.SessionSnapshot
	err := r.do(ctx, func() error {
		s = r.snapshot()
		return nil
	})
	return s, err
}

func (r *Runner) Summary(ctx context.Context) (model.ResultSummary, error) {
	var s model.ResultSummary
	err := r.do(ctx, func() error {
		var err error
		s, err = r.machine.Summary()
		return err
	})
	return s, err
}

func (r *Runner) Answers(ctx context.Context) ([]model.AnswerRecord, error) {
	var out []model.AnswerRecord
	err := r.do(ctx, func() error {
		out = r.machine.Answers()
		return nil
	})
	return out, err
}

// Subscribe registers an event channel. The returned func unregisters it; the
// channel is closed on unsubscribe or when the runner closes.
func (r *Runner) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	var id int
	err := r.do(ctx, func() error {
		id = r.nextSub
		r.nextSub++
		r.subs[id] = ch
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = r.do(context.Background(), func() error {
				if c, ok := r.subs[id]; ok {
					close(c)
					delete(r.subs, id)
				}
				return nil
			})
		})
	}
	return ch, unsubscribe, nil
}

// Close stops the loop and the countdown. It is safe to call more than once.
func (r *Runner) Close() {
	r.closeOnce.Do(r.cancel)
	<-r.done
}
