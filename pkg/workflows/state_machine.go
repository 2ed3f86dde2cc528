package workflows

// Action is a named onboarding transition requested by the wizard.
type Action string

const (
	ActionStart    Action = "start"
	ActionBegin    Action = "begin"
	ActionNextStep Action = "next-step"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionSkipStep Action = "skip-step"
)

// StateMachine enforces which onboarding actions are permitted in which
// workflow status. Field-level preconditions (a chosen workspace type for
// start, a selected template for begin) are checked by the caller; this table
// only encodes the status dimension.
type StateMachine struct {
	allowedActions map[string][]Action
}

// NewStateMachine creates a state machine with the onboarding action table
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedActions: map[string][]Action{
			"NOT_STARTED": {ActionStart},
			"DRAFT":       {ActionStart, ActionBegin}, // start again re-submits the selection
			"IN_PROGRESS": {ActionNextStep, ActionPause, ActionSkipStep},
			"PAUSED":      {ActionResume, ActionSkipStep},
			"COMPLETED":   {},
			"FAILED":      {ActionSkipStep}, // failed steps may be skipped to proceed
		},
	}
}

// CanPerform checks if an action is allowed in the given workflow status
func (sm *StateMachine) CanPerform(status string, action Action) bool {
	allowed, exists := sm.allowedActions[status]
	if !exists {
		return false
	}
	for _, allowedAction := range allowed {
		if allowedAction == action {
			return true
		}
	}
	return false
}

// AllowedActions returns the actions permitted in the given workflow status
func (sm *StateMachine) AllowedActions(status string) []Action {
	allowed, exists := sm.allowedActions[status]
	if !exists {
		return []Action{}
	}
	return allowed
}
