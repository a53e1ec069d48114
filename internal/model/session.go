package model

// SessionPhase enumerates mock test session states.
type SessionPhase string

const (
	SessionPhaseIdle     SessionPhase = "IDLE"
	SessionPhaseLoading  SessionPhase = "LOADING"
	SessionPhaseRunning  SessionPhase = "RUNNING"
	SessionPhasePaused   SessionPhase = "PAUSED"
	SessionPhaseFinished SessionPhase = "FINISHED"
)

// SessionSnapshot is the read-only view of a live session sent to clients.
type SessionSnapshot struct {
	SessionID        string          `json:"session_id"`
	Phase            SessionPhase    `json:"phase"`
	Kind             TestKind        `json:"kind,omitempty"`
	Variant          int             `json:"variant,omitempty"`
	Shuffled         bool            `json:"shuffled"`
	Position         int             `json:"position"`
	Total            int             `json:"total"`
	RemainingSeconds int             `json:"remaining_seconds"`
	BudgetSeconds    int             `json:"budget_seconds"`
	Current          *PublicQuestion `json:"current,omitempty"`
	CurrentAnswered  bool            `json:"current_answered"`
	SelectedOption   *int            `json:"selected_option,omitempty"`
	AnsweredCount    int             `json:"answered_count"`
	LoadError        string          `json:"load_error,omitempty"`
}

// StartTestRequest is the payload for starting a test in a session.
type StartTestRequest struct {
	Kind    TestKind `json:"kind" binding:"required,oneof=aptitude technical gd"`
	Variant int      `json:"variant" binding:"omitempty,min=1,max=1000"`
}

// OpenSessionRequest optionally starts a test right after the session is opened.
type OpenSessionRequest struct {
	Kind    TestKind `json:"kind" binding:"omitempty,oneof=aptitude technical gd"`
	Variant int      `json:"variant" binding:"omitempty,min=1,max=1000"`
}

// SubmitChoiceRequest selects an option on the current multiple-choice question.
type SubmitChoiceRequest struct {
	OptionIndex *int `json:"option_index" binding:"required,min=0"`
}

// SubmitTextRequest answers the current open-response question.
type SubmitTextRequest struct {
	Text string `json:"text" binding:"max=20000"`
}
