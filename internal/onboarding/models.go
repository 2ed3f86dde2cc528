package onboarding

// WorkflowStatus is the server-authoritative state of a tenant's onboarding
// workflow. The client never sets this; it only reads it from the backend.
type WorkflowStatus string

const (
	StatusNotStarted WorkflowStatus = "NOT_STARTED"
	StatusDraft      WorkflowStatus = "DRAFT"
	StatusInProgress WorkflowStatus = "IN_PROGRESS"
	StatusPaused     WorkflowStatus = "PAUSED"
	StatusCompleted  WorkflowStatus = "COMPLETED"
	StatusFailed     WorkflowStatus = "FAILED"
)

// StepStatus is the state of an individual provisioning step, tracked
// independently of the overall workflow status.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepFailed     StepStatus = "FAILED"
	StepSkipped    StepStatus = "SKIPPED"
)

// Step represents one unit of backend provisioning work.
type Step struct {
	Code   string     `json:"code"`
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Module string     `json:"module,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Status is the onboarding status snapshot owned by the backend. Step order
// in Steps is execution order.
type Status struct {
	Status         WorkflowStatus `json:"status"`
	WorkspaceType  string         `json:"workspace_type,omitempty"`
	Template       string         `json:"template,omitempty"`
	Engine         string         `json:"engine,omitempty"`
	Progress       float64        `json:"progress"`
	CurrentStep    string         `json:"current_step,omitempty"`
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps int            `json:"completed_steps"`
	Steps          []Step         `json:"steps"`
	Error          string         `json:"error,omitempty"`
}

// Selection holds the workspace type and template chosen in the wizard before
// the first successful start call. It is transient and never persisted; once
// the backend has a record, the status payload is the source of truth.
type Selection struct {
	WorkspaceType string `json:"workspace_type,omitempty"`
	Template      string `json:"template,omitempty"`
}

// NewNotStartedStatus returns the status synthesized when the backend has no
// onboarding record for the tenant yet. Absence of a record is the initial
// state, not an error.
func NewNotStartedStatus() *Status {
	return &Status{
		Status:         StatusNotStarted,
		Progress:       0,
		TotalSteps:     0,
		CompletedSteps: 0,
		Steps:          []Step{},
	}
}

// Normalize repairs backend contract violations that must not crash the
// wizard: completed_steps is clamped to total_steps, progress is clamped to
// [0, 100], and a missing status defaults to NOT_STARTED.
func (s *Status) Normalize() {
	if s.Status == "" {
		s.Status = StatusNotStarted
	}
	if s.CompletedSteps > s.TotalSteps {
		s.CompletedSteps = s.TotalSteps
	}
	if s.CompletedSteps < 0 {
		s.CompletedSteps = 0
	}
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Progress > 100 {
		s.Progress = 100
	}
	if s.Steps == nil {
		s.Steps = []Step{}
	}
}

// StepByCode returns the step with the given code, or nil.
func (s *Status) StepByCode(code string) *Step {
	for i := range s.Steps {
		if s.Steps[i].Code == code {
			return &s.Steps[i]
		}
	}
	return nil
}

// IsTerminal reports whether the workflow can make no further progress.
func (s *Status) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
