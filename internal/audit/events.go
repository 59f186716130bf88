package audit

// Phase is the auditor's position in its run lifecycle.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseValidating Phase = "validating"
	PhaseProcessing Phase = "processing"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further events follow.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Event is one progress message. Exactly one terminal event ends a run: PhaseComplete
// carries Result, PhaseFailed carries Err.
type Event struct {
	RunID   string  `json:"run_id"`
	Phase   Phase   `json:"phase"`
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Message string  `json:"message"`
	Result  *Result `json:"-"`
	Err     error   `json:"-"`
}

// ProgressFunc receives events synchronously on the auditing goroutine.
type ProgressFunc func(Event)
