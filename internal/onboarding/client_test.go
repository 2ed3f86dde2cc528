package onboarding

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusNotFoundIsInitialState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	status, err := client.Status(context.Background(), "tenant-1")

	// A missing onboarding record is the initial state, never an error.
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, status.Status)
	assert.Equal(t, float64(0), status.Progress)
	assert.Equal(t, 0, status.TotalSteps)
	assert.Equal(t, 0, status.CompletedSteps)
	assert.Empty(t, status.Steps)
}

func TestStatusAcceptsEnvelopeShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onboarding/tenants/tenant-1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"status": "DRAFT", "workspace_type": "ENTERPRISE", "progress": 0, "total_steps": 0, "completed_steps": 0, "steps": []}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	status, err := client.Status(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, StatusDraft, status.Status)
	assert.Equal(t, "ENTERPRISE", status.WorkspaceType)
}

func TestStatusAcceptsBareShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "IN_PROGRESS", "progress": 40, "current_step": "provision-crm", "total_steps": 5, "completed_steps": 2, "steps": [{"code": "provision-crm", "name": "Provision CRM", "status": "IN_PROGRESS", "module": "crm"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	status, err := client.Status(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status.Status)
	assert.Equal(t, "provision-crm", status.CurrentStep)
	require.Len(t, status.Steps, 1)
	assert.Equal(t, StepInProgress, status.Steps[0].Status)
}

func TestStatusClampsBackendContractViolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "IN_PROGRESS", "progress": 50, "total_steps": 3, "completed_steps": 9, "steps": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	status, err := client.Status(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, 3, status.CompletedSteps)
}

func TestStatusServerErrorIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "database unavailable"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.Status(context.Background(), "tenant-1")

	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "database unavailable", apiErr.Message)
}

func TestClientForwardsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status": "NOT_STARTED", "steps": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithToken("session-token"))

	_, err := client.Status(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, "Bearer session-token", gotAuth)
}

func TestClientTokenSourceRotation(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status": "NOT_STARTED", "steps": []}`))
	}))
	defer server.Close()

	token := "first"
	client := NewClient(server.URL, WithTokenSource(func() string { return token }))

	_, err := client.Status(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", gotAuth)

	token = "second"
	_, err = client.Status(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", gotAuth)
}

func TestStartSendsSelection(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/onboarding/tenants/tenant-1/start", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.Start(context.Background(), "tenant-1", StartRequest{
		WorkspaceType: "ENTERPRISE",
		TemplateCode:  "manufacturing",
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"workspace_type": "ENTERPRISE", "template_code": "manufacturing"}`, gotBody)
}

func TestNextStepCompletionFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onboarding/tenants/tenant-1/next-step", r.URL.Path)
		w.Write([]byte(`{"data": {"completed": true, "message": "all steps finished"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	result, err := client.NextStep(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.True(t, result.Completed)
}

func TestSkipStepPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.SkipStep(context.Background(), "tenant-1", "provision-crm")

	require.NoError(t, err)
	assert.Equal(t, "/onboarding/tenants/tenant-1/steps/provision-crm/skip", gotPath)
}

func TestActionRejectionIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "onboarding is not in progress"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.Pause(context.Background(), "tenant-1")

	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "onboarding is not in progress", apiErr.Message)
}
