package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/TheNyokabi/MoranIP-sub003/pkg/workflows"
)

var (
	// ErrBusy is returned when an action is requested while another request
	// for the same tenant is still in flight.
	ErrBusy = errors.New("another onboarding action is in progress")

	// ErrActionNotAllowed is returned when an action is rejected before any
	// request is sent, because the current status does not permit it.
	ErrActionNotAllowed = errors.New("action not allowed in current state")
)

// Session drives the onboarding wizard for one tenant. It holds a read-only
// snapshot of the backend status, the transient not-yet-submitted selection,
// and a busy flag that prevents double-submission. The backend is the sole
// owner of onboarding state; every successful action is followed by a status
// reload and phase re-derivation.
type Session struct {
	client   Client
	sm       *workflows.StateMachine
	logger   *zap.Logger
	tenantID string

	onComplete func()

	mu        sync.Mutex
	status    *Status
	phase     Phase
	selection Selection
	busy      bool
	lastError string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithCompletionCallback sets the callback fired when a next-step response
// reports completion. It fires once per such response, not once per status
// poll, so the caller can react immediately even if the next polled status
// still lags behind.
func WithCompletionCallback(fn func()) SessionOption {
	return func(s *Session) {
		s.onComplete = fn
	}
}

// NewSession creates a wizard session for the given tenant.
func NewSession(client Client, logger *zap.Logger, tenantID string, opts ...SessionOption) *Session {
	s := &Session{
		client:   client,
		sm:       workflows.NewStateMachine(),
		logger:   logger,
		tenantID: tenantID,
		status:   NewNotStartedStatus(),
		phase:    PhaseWorkspaceSelection,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State is a rendering snapshot of the session.
type State struct {
	Phase          Phase              `json:"phase"`
	Status         *Status            `json:"status"`
	Selection      Selection          `json:"selection"`
	AllowedActions []workflows.Action `json:"allowed_actions"`
	Busy           bool               `json:"busy"`
	Error          string             `json:"error,omitempty"`
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusCopy := *s.status
	return State{
		Phase:          s.phase,
		Status:         &statusCopy,
		Selection:      s.selection,
		AllowedActions: s.allowedActionsLocked(),
		Busy:           s.busy,
		Error:          s.lastError,
	}
}

// CurrentStatus returns the workflow status of the last snapshot.
func (s *Session) CurrentStatus() WorkflowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Status
}

// Refresh reloads the status from the backend and re-derives the phase. On
// failure the previous snapshot and phase are kept and the error message is
// recorded for display; the phase never regresses because of a failed fetch.
func (s *Session) Refresh(ctx context.Context) error {
	status, err := s.client.Status(ctx, s.tenantID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Failed to refresh onboarding status",
			zap.String("tenant_id", s.tenantID),
			zap.Error(err))
		s.lastError = err.Error()
		return err
	}

	s.applyStatusLocked(status)
	return nil
}

// Select records the wizard's local workspace type and template choice. The
// selection is transient; it only reaches the backend through Start.
func (s *Session) Select(workspaceType, template string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if workspaceType != "" {
		s.selection.WorkspaceType = workspaceType
	}
	if template != "" {
		s.selection.Template = template
	}
}

// DismissError clears the displayed error message.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// Start submits the local selection and creates the onboarding draft.
func (s *Session) Start(ctx context.Context) error {
	selection, err := s.beginAction(workflows.ActionStart)
	if err != nil {
		return err
	}

	return s.finishAction(ctx, "start", func() error {
		return s.client.Start(ctx, s.tenantID, StartRequest{
			WorkspaceType: selection.WorkspaceType,
			TemplateCode:  selection.Template,
		})
	})
}

// Begin transitions the draft into execution, activating the first step.
func (s *Session) Begin(ctx context.Context) error {
	if _, err := s.beginAction(workflows.ActionBegin); err != nil {
		return err
	}

	return s.finishAction(ctx, "begin", func() error {
		return s.client.Begin(ctx, s.tenantID)
	})
}

// NextStep executes the next pending provisioning step. When the response
// reports completion, the completion callback fires before the status reload
// so the caller reacts immediately instead of waiting for the next poll.
func (s *Session) NextStep(ctx context.Context) error {
	if _, err := s.beginAction(workflows.ActionNextStep); err != nil {
		return err
	}

	return s.finishAction(ctx, "next-step", func() error {
		result, err := s.client.NextStep(ctx, s.tenantID)
		if err != nil {
			return err
		}
		if result.Completed && s.onComplete != nil {
			s.onComplete()
		}
		return nil
	})
}

// Pause suspends a running workflow.
func (s *Session) Pause(ctx context.Context) error {
	if _, err := s.beginAction(workflows.ActionPause); err != nil {
		return err
	}

	return s.finishAction(ctx, "pause", func() error {
		return s.client.Pause(ctx, s.tenantID)
	})
}

// Resume continues a paused workflow from its saved current step.
func (s *Session) Resume(ctx context.Context) error {
	if _, err := s.beginAction(workflows.ActionResume); err != nil {
		return err
	}

	return s.finishAction(ctx, "resume", func() error {
		return s.client.Resume(ctx, s.tenantID)
	})
}

// SkipStep marks a pending or failed step as skipped.
func (s *Session) SkipStep(ctx context.Context, stepCode string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	step := s.status.StepByCode(stepCode)
	if step == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: unknown step %q", ErrActionNotAllowed, stepCode)
	}
	if step.Status != StepPending && step.Status != StepFailed {
		s.mu.Unlock()
		return fmt.Errorf("%w: step %q is %s", ErrActionNotAllowed, stepCode, step.Status)
	}
	s.busy = true
	s.mu.Unlock()

	return s.finishAction(ctx, "skip-step", func() error {
		return s.client.SkipStep(ctx, s.tenantID, stepCode)
	})
}

// beginAction validates the action against the current snapshot and acquires
// the busy flag. Invalid actions are rejected here, before any request is
// sent; the returned selection is the one captured under the lock.
func (s *Session) beginAction(action workflows.Action) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return Selection{}, ErrBusy
	}
	if err := s.validateActionLocked(action); err != nil {
		return Selection{}, err
	}

	s.busy = true
	return s.selection, nil
}

// finishAction runs the request, then reloads status on success. On failure
// the snapshot, phase and selection are all preserved and only the error
// message changes. The busy flag is cleared in every path.
func (s *Session) finishAction(ctx context.Context, name string, fn func() error) error {
	err := fn()

	if err != nil {
		s.logger.Warn("Onboarding action rejected",
			zap.String("tenant_id", s.tenantID),
			zap.String("action", name),
			zap.Error(err))

		s.mu.Lock()
		s.lastError = err.Error()
		s.busy = false
		s.mu.Unlock()
		return err
	}

	status, refreshErr := s.client.Status(ctx, s.tenantID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if refreshErr != nil {
		// The action itself succeeded; keep the stale snapshot and let the
		// next poll or a manual refresh catch up.
		s.logger.Warn("Status reload after action failed",
			zap.String("tenant_id", s.tenantID),
			zap.String("action", name),
			zap.Error(refreshErr))
		s.lastError = refreshErr.Error()
		return nil
	}

	s.applyStatusLocked(status)
	s.logger.Info("Onboarding action applied",
		zap.String("tenant_id", s.tenantID),
		zap.String("action", name),
		zap.String("status", string(status.Status)),
		zap.Float64("progress", status.Progress))

	return nil
}

func (s *Session) applyStatusLocked(status *Status) {
	s.status = status
	s.phase = DerivePhase(status)
	s.selection = RestoreSelection(status, s.selection)
	s.lastError = ""
}

func (s *Session) validateActionLocked(action workflows.Action) error {
	if !s.sm.CanPerform(string(s.status.Status), action) {
		return fmt.Errorf("%w: %s while %s", ErrActionNotAllowed, action, s.status.Status)
	}

	switch action {
	case workflows.ActionStart:
		if s.selection.WorkspaceType == "" {
			return fmt.Errorf("%w: start requires a workspace type", ErrActionNotAllowed)
		}
	case workflows.ActionBegin:
		if s.selection.WorkspaceType == "" || s.selection.Template == "" {
			return fmt.Errorf("%w: begin requires a workspace type and template", ErrActionNotAllowed)
		}
	}

	return nil
}

// allowedActionsLocked narrows the status-level action table with the
// field-level preconditions so controls can be disabled eagerly.
func (s *Session) allowedActionsLocked() []workflows.Action {
	allowed := []workflows.Action{}
	for _, action := range s.sm.AllowedActions(string(s.status.Status)) {
		switch action {
		case workflows.ActionStart:
			if s.selection.WorkspaceType == "" {
				continue
			}
		case workflows.ActionBegin:
			if s.selection.WorkspaceType == "" || s.selection.Template == "" {
				continue
			}
		case workflows.ActionSkipStep:
			if !s.hasSkippableStepLocked() {
				continue
			}
		}
		allowed = append(allowed, action)
	}
	return allowed
}

func (s *Session) hasSkippableStepLocked() bool {
	for _, step := range s.status.Steps {
		if step.Status == StepPending || step.Status == StepFailed {
			return true
		}
	}
	return false
}
