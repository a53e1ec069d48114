// Package session implements the timed mock test lifecycle: a synchronous
// state machine, the per-session event loop that owns it, and the registry
// of live sessions.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/shuffle"
)

// Rejections. Callers treat these as no-ops: the machine state is unchanged.
var (
	ErrInvalidPhase      = errors.New("action not allowed in current phase")
	ErrInvalidKind       = errors.New("unknown test kind")
	ErrAlreadyAnswered   = errors.New("question already answered")
	ErrNoCurrentQuestion = errors.New("no current question")
	ErrInvalidOption     = errors.New("option index out of range")
	ErrWrongKind         = errors.New("answer type does not match test kind")
	ErrStaleLoad         = errors.New("load result no longer applies")
)

// Load failures. All of them wrap ErrLoadFailed and send the machine back to IDLE.
var (
	ErrLoadFailed = errors.New("question bank unavailable")
	ErrEmptyBank  = errors.New("question bank returned no questions")
	ErrMixedBank  = errors.New("question bank returned invalid or mixed questions")
)

// Budgets maps each test kind to its time budget in seconds.
type Budgets map[model.TestKind]int

// DefaultBudgets returns 20, 30 and 10 minutes for aptitude, technical and GD.
func DefaultBudgets() Budgets {
	return Budgets{
		model.TestKindAptitude:  20 * 60,
		model.TestKindTechnical: 30 * 60,
		model.TestKindGD:        10 * 60,
	}
}

// For returns the budget for kind, falling back to the default table.
func (b Budgets) For(kind model.TestKind) int {
	if s, ok := b[kind]; ok && s > 0 {
		return s
	}
	return DefaultBudgets()[kind]
}

// Ticket identifies one in-flight load. A completion is applied only if its
// generation is still current.
type Ticket struct {
	Generation uint64
	Kind       model.TestKind
	Variant    int
}

// Machine is the session state machine. It is not safe for concurrent use;
// Runner serializes access to it.
type Machine struct {
	userID  string
	clock   clockwork.Clock
	budgets Budgets

	phase      model.SessionPhase
	generation uint64

	kind      model.TestKind
	variant   int
	seed      shuffle.Seed
	shuffled  bool
	questions []model.Question
	position  int
	budget    int
	remaining int

	marker   time.Time
	pausedAt time.Time

	// tickedAt is where the current countdown second started; carried is
	// the running time already spent in it before the last pause.
	tickedAt time.Time
	carried  time.Duration

	log      []model.AnswerRecord
	answered map[int]int // position -> index into log

	lastLoadError error
	finishReason  model.FinishReason
	finishedAt    time.Time
}

// NewMachine creates an IDLE machine. An empty userID means anonymous.
func NewMachine(userID string, clock clockwork.Clock, budgets Budgets) *Machine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	return &Machine{
		userID:  userID,
		clock:   clock,
		budgets: budgets,
		phase:   model.SessionPhaseIdle,
	}
}

func (m *Machine) Phase() model.SessionPhase { return m.phase }
func (m *Machine) Generation() uint64        { return m.generation }
func (m *Machine) UserID() string            { return m.userID }
func (m *Machine) Kind() model.TestKind      { return m.kind }
func (m *Machine) Variant() int              { return m.variant }
func (m *Machine) Remaining() int            { return m.remaining }
func (m *Machine) Position() int             { return m.position }
func (m *Machine) LastLoadError() error      { return m.lastLoadError }

// Start moves IDLE to LOADING and returns the ticket the fetch must present.
func (m *Machine) Start(kind model.TestKind, variant int) (Ticket, error) {
	if m.phase != model.SessionPhaseIdle {
		return Ticket{}, ErrInvalidPhase
	}
	if !kind.Valid() {
		return Ticket{}, ErrInvalidKind
	}
	if variant <= 0 {
		variant = 1
	}

	m.generation++
	m.phase = model.SessionPhaseLoading
	m.kind = kind
	m.variant = variant
	m.lastLoadError = nil

	return Ticket{Generation: m.generation, Kind: kind, Variant: variant}, nil
}

// Loaded applies a fetch completion. Stale tickets are rejected with
// ErrStaleLoad and change nothing.
func (m *Machine) Loaded(t Ticket, questions []model.Question, fetchErr error) error {
	if m.phase != model.SessionPhaseLoading || t.Generation != m.generation {
		return ErrStaleLoad
	}

	if fetchErr != nil {
		return m.failLoad(fmt.Errorf("%w: %w", ErrLoadFailed, fetchErr))
	}
	if len(questions) == 0 {
		return m.failLoad(fmt.Errorf("%w: %w", ErrLoadFailed, ErrEmptyBank))
	}
	for i := range questions {
		q := &questions[i]
		if q.Kind != t.Kind {
			return m.failLoad(fmt.Errorf("%w: %w: question %s has kind %s", ErrLoadFailed, ErrMixedBank, q.ID, q.Kind))
		}
		if err := q.Validate(); err != nil {
			return m.failLoad(fmt.Errorf("%w: %w: %w", ErrLoadFailed, ErrMixedBank, err))
		}
	}

	if m.userID != "" {
		m.seed = shuffle.Derive(m.userID, string(t.Kind), t.Variant)
		m.questions = shuffle.Shuffle(questions, m.seed)
		m.shuffled = true
	} else {
		m.seed = 0
		m.questions = append([]model.Question(nil), questions...)
		m.shuffled = false
	}

	m.budget = m.budgets.For(t.Kind)
	m.remaining = m.budget
	m.position = 0
	m.log = nil
	m.answered = make(map[int]int)
	m.marker = m.clock.Now()
	m.tickedAt = m.marker
	m.carried = 0
	m.phase = model.SessionPhaseRunning
	return nil
}

func (m *Machine) failLoad(err error) error {
	m.clear()
	m.lastLoadError = err
	return err
}

func (m *Machine) current() *model.Question {
	if m.position < 0 || m.position >= len(m.questions) {
		return nil
	}
	return &m.questions[m.position]
}

func (m *Machine) elapsedSeconds() int {
	d := m.clock.Since(m.marker)
	if d < 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}

// SubmitChoice records the selected option for the current multiple-choice
// question. It does not advance.
func (m *Machine) SubmitChoice(optionIndex int) (model.AnswerRecord, error) {
	if m.phase != model.SessionPhaseRunning {
		return model.AnswerRecord{}, ErrInvalidPhase
	}
	if !m.kind.Graded() {
		return model.AnswerRecord{}, ErrWrongKind
	}
	q := m.current()
	if q == nil {
		return model.AnswerRecord{}, ErrNoCurrentQuestion
	}
	if _, ok := m.answered[m.position]; ok {
		return model.AnswerRecord{}, ErrAlreadyAnswered
	}
	if optionIndex < 0 || optionIndex >= len(q.Choice.Options) {
		return model.AnswerRecord{}, ErrInvalidOption
	}

	correct := optionIndex == q.Choice.Correct
	rec := model.AnswerRecord{
		QuestionID:       q.ID,
		QuestionType:     m.kind,
		Answer:           model.ChoiceAnswer(optionIndex),
		IsCorrect:        &correct,
		TimeSpentSeconds: m.elapsedSeconds(),
		AnsweredAt:       m.clock.Now(),
	}
	m.answered[m.position] = len(m.log)
	m.log = append(m.log, rec)
	return rec, nil
}

// SubmitText records a free-text answer for the current open-response
// question and advances to the next one.
func (m *Machine) SubmitText(text string) (model.AnswerRecord, error) {
	if m.phase != model.SessionPhaseRunning {
		return model.AnswerRecord{}, ErrInvalidPhase
	}
	if m.kind.Graded() {
		return model.AnswerRecord{}, ErrWrongKind
	}
	q := m.current()
	if q == nil {
		return model.AnswerRecord{}, ErrNoCurrentQuestion
	}
	if _, ok := m.answered[m.position]; ok {
		return model.AnswerRecord{}, ErrAlreadyAnswered
	}

	rec := model.AnswerRecord{
		QuestionID:       q.ID,
		QuestionType:     m.kind,
		Answer:           model.TextAnswer(text),
		TimeSpentSeconds: m.elapsedSeconds(),
		AnsweredAt:       m.clock.Now(),
	}
	m.answered[m.position] = len(m.log)
	m.log = append(m.log, rec)
	m.next()
	return rec, nil
}

// Advance moves to the next question. Running past the last question leaves
// the session RUNNING with no current question.
func (m *Machine) Advance() error {
	if m.phase != model.SessionPhaseRunning {
		return ErrInvalidPhase
	}
	if m.current() == nil {
		return ErrNoCurrentQuestion
	}
	m.next()
	return nil
}

func (m *Machine) next() {
	m.position++
	m.marker = m.clock.Now()
}

// Pause charges the partly elapsed second so a pause/resume cycle neither
// gains nor loses time. Ticks already due are applied first, which may
// finish the session instead.
func (m *Machine) Pause() error {
	m.chargeOverdue()
	if m.phase != model.SessionPhaseRunning {
		return ErrInvalidPhase
	}
	if part := m.clock.Since(m.tickedAt); part > 0 {
		m.carried += part
	}
	m.phase = model.SessionPhasePaused
	m.pausedAt = m.clock.Now()
	return nil
}

// Resume returns to RUNNING. The per-question marker is shifted by the
// paused interval so time spent paused is not charged to the question.
func (m *Machine) Resume() error {
	if m.phase != model.SessionPhasePaused {
		return ErrInvalidPhase
	}
	if paused := m.clock.Since(m.pausedAt); paused > 0 {
		m.marker = m.marker.Add(paused)
	}
	m.pausedAt = time.Time{}
	m.tickedAt = m.clock.Now()
	m.phase = model.SessionPhaseRunning
	return nil
}

// NextTickIn reports how long until the current countdown second is used up.
// It is zero when a tick is already due and meaningless outside RUNNING.
func (m *Machine) NextTickIn() time.Duration {
	d := time.Second - m.carried - m.clock.Since(m.tickedAt)
	if d < 0 {
		return 0
	}
	return d
}

func (m *Machine) chargeOverdue() {
	for m.phase == model.SessionPhaseRunning && m.NextTickIn() == 0 {
		m.Tick()
	}
}

// Tick consumes one second of budget. It reports true exactly once, on the
// tick that expires the session. The next second is counted from the
// instant this one was due, so a late tick does not stretch the countdown.
func (m *Machine) Tick() bool {
	if m.phase != model.SessionPhaseRunning {
		return false
	}
	m.tickedAt = m.tickedAt.Add(time.Second - m.carried)
	m.carried = 0
	m.remaining--
	if m.remaining > 0 {
		return false
	}
	m.remaining = 0
	m.finalize(model.FinishReasonTimeout)
	return true
}

// FinishEarly ends a RUNNING or PAUSED session.
func (m *Machine) FinishEarly() error {
	if m.phase != model.SessionPhaseRunning && m.phase != model.SessionPhasePaused {
		return ErrInvalidPhase
	}
	m.finalize(model.FinishReasonManual)
	return nil
}

func (m *Machine) finalize(reason model.FinishReason) {
	m.phase = model.SessionPhaseFinished
	m.finishReason = reason
	m.finishedAt = m.clock.Now()
	m.pausedAt = time.Time{}
}

// Reset returns to IDLE from any other phase. An in-flight load is orphaned
// because the generation moves on.
func (m *Machine) Reset() error {
	if m.phase == model.SessionPhaseIdle {
		return ErrInvalidPhase
	}
	m.clear()
	return nil
}

func (m *Machine) clear() {
	m.generation++
	m.phase = model.SessionPhaseIdle
	m.kind = ""
	m.variant = 0
	m.seed = 0
	m.shuffled = false
	m.questions = nil
	m.position = 0
	m.budget = 0
	m.remaining = 0
	m.marker = time.Time{}
	m.pausedAt = time.Time{}
	m.tickedAt = time.Time{}
	m.carried = 0
	m.log = nil
	m.answered = nil
	m.lastLoadError = nil
	m.finishReason = ""
	m.finishedAt = time.Time{}
}

// Summary is available only once FINISHED. It is recomputed from the log.
func (m *Machine) Summary() (model.ResultSummary, error) {
	if m.phase != model.SessionPhaseFinished {
		return model.ResultSummary{}, ErrInvalidPhase
	}
	s := Summarize(m.kind, len(m.questions), m.log)
	s.FinishReason = m.finishReason
	finishedAt := m.finishedAt
	s.FinishedAt = &finishedAt
	return s, nil
}

// Answers returns a copy of the answer log.
func (m *Machine) Answers() []model.AnswerRecord {
	return append([]model.AnswerRecord(nil), m.log...)
}

// Order returns the question ids in presentation order along with the seed.
func (m *Machine) Order() (ids []string, seed shuffle.Seed, shuffled bool) {
	ids = make([]string, len(m.questions))
	for i := range m.questions {
		ids[i] = m.questions[i].ID
	}
	return ids, m.seed, m.shuffled
}

// Snapshot returns the client view of the machine. SessionID is left empty.
func (m *Machine) Snapshot() model.SessionSnapshot {
	s := model.SessionSnapshot{
		Phase:            m.phase,
		Kind:             m.kind,
		Variant:          m.variant,
		Shuffled:         m.shuffled,
		Position:         m.position,
		Total:            len(m.questions),
		RemainingSeconds: m.remaining,
		BudgetSeconds:    m.budget,
		AnsweredCount:    len(m.log),
	}
	if m.lastLoadError != nil {
		s.LoadError = m.lastLoadError.Error()
	}
	if q := m.current(); q != nil {
		pub := q.Public()
		s.Current = &pub
		if idx, ok := m.answered[m.position]; ok {
			s.CurrentAnswered = true
			if opt := m.log[idx].Answer.OptionIndex; opt != nil {
				v := *opt
				s.SelectedOption = &v
			}
		}
	}
	return s
}
