package onboarding

// Phase is the wizard screen derived from the backend status. No phase is
// stored anywhere; it is recomputed on every status load so the wizard
// recovers correctly after a page refresh at any stage.
type Phase string

const (
	PhaseWorkspaceSelection    Phase = "workspace-selection"
	PhaseTemplateSelection     Phase = "template-selection"
	PhaseSettingsConfiguration Phase = "settings-configuration"
	PhaseProgressTracking      Phase = "progress-tracking"
)

// DerivePhase maps a status snapshot to a wizard phase. The mapping is a pure
// function evaluated in priority order:
//
//  1. NOT_STARTED -> workspace-selection
//  2. DRAFT without workspace_type -> workspace-selection
//  3. DRAFT with workspace_type, without template -> template-selection
//  4. DRAFT with both -> settings-configuration
//  5. PAUSED, IN_PROGRESS, COMPLETED, FAILED -> progress-tracking
func DerivePhase(status *Status) Phase {
	if status == nil || status.Status == StatusNotStarted {
		return PhaseWorkspaceSelection
	}

	if status.Status == StatusDraft {
		if status.WorkspaceType == "" {
			return PhaseWorkspaceSelection
		}
		if status.Template == "" {
			return PhaseTemplateSelection
		}
		return PhaseSettingsConfiguration
	}

	return PhaseProgressTracking
}

// RestoreSelection rebuilds the local wizard selection from a status payload
// so a reload does not lose the chosen workspace type or template. Fields the
// backend does not report keep their current local value.
func RestoreSelection(status *Status, current Selection) Selection {
	restored := current
	if status == nil {
		return restored
	}
	if status.WorkspaceType != "" {
		restored.WorkspaceType = status.WorkspaceType
	}
	if status.Template != "" {
		restored.Template = status.Template
	}
	return restored
}
