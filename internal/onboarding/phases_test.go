package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePhaseNotStarted(t *testing.T) {
	status := NewNotStartedStatus()

	assert.Equal(t, PhaseWorkspaceSelection, DerivePhase(status))

	selection := RestoreSelection(status, Selection{})
	assert.Empty(t, selection.WorkspaceType)
	assert.Empty(t, selection.Template)
}

func TestDerivePhaseNilStatus(t *testing.T) {
	assert.Equal(t, PhaseWorkspaceSelection, DerivePhase(nil))
}

func TestDerivePhaseDraft(t *testing.T) {
	cases := []struct {
		name          string
		workspaceType string
		template      string
		expected      Phase
	}{
		{"no selection", "", "", PhaseWorkspaceSelection},
		{"workspace only", "ENTERPRISE", "", PhaseTemplateSelection},
		{"workspace and template", "ENTERPRISE", "manufacturing", PhaseSettingsConfiguration},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := &Status{
				Status:        StatusDraft,
				WorkspaceType: tc.workspaceType,
				Template:      tc.template,
			}
			assert.Equal(t, tc.expected, DerivePhase(status))
		})
	}
}

func TestDerivePhaseDraftExampleScenario(t *testing.T) {
	status := &Status{
		Status:        StatusDraft,
		WorkspaceType: "ENTERPRISE",
		Progress:      0,
		Steps:         []Step{},
	}

	assert.Equal(t, PhaseTemplateSelection, DerivePhase(status))
}

func TestDerivePhaseProgressTracking(t *testing.T) {
	for _, ws := range []WorkflowStatus{StatusPaused, StatusInProgress, StatusCompleted, StatusFailed} {
		status := &Status{Status: ws}
		assert.Equal(t, PhaseProgressTracking, DerivePhase(status), "status %s", ws)
	}
}

func TestDerivePhaseIsPure(t *testing.T) {
	status := &Status{Status: StatusInProgress, WorkspaceType: "SME", Template: "retail"}

	first := DerivePhase(status)
	second := DerivePhase(status)

	assert.Equal(t, first, second)
}

func TestRestoreSelectionRoundTrip(t *testing.T) {
	status := &Status{
		Status:        StatusPaused,
		WorkspaceType: "ENTERPRISE",
		Template:      "manufacturing",
	}

	// A reload after losing local state must reproduce the same selections.
	selection := RestoreSelection(status, Selection{})
	assert.Equal(t, "ENTERPRISE", selection.WorkspaceType)
	assert.Equal(t, "manufacturing", selection.Template)

	again := RestoreSelection(status, selection)
	assert.Equal(t, selection, again)
}

func TestRestoreSelectionKeepsLocalValues(t *testing.T) {
	status := &Status{Status: StatusDraft, WorkspaceType: "SME"}

	selection := RestoreSelection(status, Selection{Template: "retail"})
	assert.Equal(t, "SME", selection.WorkspaceType)
	assert.Equal(t, "retail", selection.Template)
}

func TestNormalizeClampsCompletedSteps(t *testing.T) {
	status := &Status{
		Status:         StatusInProgress,
		TotalSteps:     3,
		CompletedSteps: 7,
		Progress:       120,
	}

	status.Normalize()

	assert.Equal(t, 3, status.CompletedSteps)
	assert.LessOrEqual(t, status.CompletedSteps, status.TotalSteps)
	assert.Equal(t, float64(100), status.Progress)
}

func TestNormalizeDefaults(t *testing.T) {
	status := &Status{}

	status.Normalize()

	assert.Equal(t, StatusNotStarted, status.Status)
	assert.NotNil(t, status.Steps)
}
