package onboarding

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager hands out one wizard session per tenant and runs a progress
// poller alongside each. The upstream bearer token is captured per request
// from the caller's auth context and forwarded through a token source, so
// sessions survive token refreshes.
type SessionManager struct {
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	pollInterval time.Duration
	onUpdate     func(tenantID string, state State)

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	session *Session
	poller  *Poller
	cancel  context.CancelFunc

	tokenMu sync.RWMutex
	token   string
}

// NewSessionManager creates a session manager for the given upstream API.
// onUpdate is invoked with fresh snapshots from each session's poller; it may
// be nil.
func NewSessionManager(baseURL string, logger *zap.Logger, pollInterval time.Duration, onUpdate func(string, State)) *SessionManager {
	return &SessionManager{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		pollInterval: pollInterval,
		onUpdate:     onUpdate,
		entries:      make(map[string]*sessionEntry),
	}
}

// Get returns the tenant's session, creating it on first use. The token is
// refreshed on every call so the session always forwards the caller's current
// credential upstream.
func (m *SessionManager) Get(tenantID, token string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[tenantID]; ok {
		entry.setToken(token)
		return entry.session
	}

	entry := &sessionEntry{token: token}

	client := NewClient(m.baseURL,
		WithHTTPClient(m.httpClient),
		WithTokenSource(entry.currentToken),
	)

	entry.session = NewSession(client, m.logger, tenantID)

	ctx, cancel := context.WithCancel(context.Background())
	entry.cancel = cancel
	entry.poller = NewPoller(entry.session, m.logger, m.pollInterval, func(state State) {
		if m.onUpdate != nil {
			m.onUpdate(tenantID, state)
		}
	})
	go entry.poller.Run(ctx)

	m.entries[tenantID] = entry
	m.logger.Info("Created onboarding session", zap.String("tenant_id", tenantID))

	return entry.session
}

// Shutdown stops all pollers.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tenantID, entry := range m.entries {
		entry.poller.Stop()
		entry.cancel()
		delete(m.entries, tenantID)
	}
}

func (e *sessionEntry) setToken(token string) {
	e.tokenMu.Lock()
	defer e.tokenMu.Unlock()
	e.token = token
}

func (e *sessionEntry) currentToken() string {
	e.tokenMu.RLock()
	defer e.tokenMu.RUnlock()
	return e.token
}
