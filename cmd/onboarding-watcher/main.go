package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TheNyokabi/MoranIP-sub003/internal/onboarding"
)

// Watcher polls the onboarding status of a fleet of tenants and logs stalls
// and failures for the operations team. It holds no state of its own; every
// run reads fresh status from the backend.
type Watcher struct {
	client   onboarding.Client
	logger   *zap.Logger
	config   WatcherConfig
	cron     *cron.Cron
	mu       sync.Mutex
	lastSeen map[string]snapshot
}

type snapshot struct {
	status    onboarding.WorkflowStatus
	progress  float64
	observed  time.Time
	lastMoved time.Time
}

// WatcherConfig configuration for the onboarding watcher
type WatcherConfig struct {
	Tenants       []string
	Schedule      string
	StallAfter    time.Duration
	RequestTimeout time.Duration
}

// DefaultWatcherConfig returns default configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Schedule:      "@every 30s",
		StallAfter:    10 * time.Minute,
		RequestTimeout: 15 * time.Second,
	}
}

// NewWatcher creates a new onboarding watcher
func NewWatcher(client onboarding.Client, logger *zap.Logger, config WatcherConfig) *Watcher {
	return &Watcher{
		client:   client,
		logger:   logger,
		config:   config,
		cron:     cron.New(),
		lastSeen: make(map[string]snapshot),
	}
}

// Start schedules the fleet sweep and blocks until the context is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Starting onboarding watcher",
		zap.String("schedule", w.config.Schedule),
		zap.Int("tenants", len(w.config.Tenants)))

	if _, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.sweep(ctx)
	}); err != nil {
		return err
	}

	// Sweep once immediately so operators see state at startup
	w.sweep(ctx)

	w.cron.Start()
	<-ctx.Done()

	stopCtx := w.cron.Stop()
	<-stopCtx.Done()

	return nil
}

func (w *Watcher) sweep(ctx context.Context) {
	for _, tenantID := range w.config.Tenants {
		w.checkTenant(ctx, tenantID)
	}
}

func (w *Watcher) checkTenant(ctx context.Context, tenantID string) {
	reqCtx, cancel := context.WithTimeout(ctx, w.config.RequestTimeout)
	defer cancel()

	status, err := w.client.Status(reqCtx, tenantID)
	if err != nil {
		w.logger.Warn("Failed to fetch onboarding status",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return
	}

	now := time.Now()

	w.mu.Lock()
	prev, seen := w.lastSeen[tenantID]
	current := snapshot{
		status:    status.Status,
		progress:  status.Progress,
		observed:  now,
		lastMoved: now,
	}
	if seen && prev.status == status.Status && prev.progress == status.Progress {
		current.lastMoved = prev.lastMoved
	}
	w.lastSeen[tenantID] = current
	w.mu.Unlock()

	fields := []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.String("status", string(status.Status)),
		zap.Float64("progress", status.Progress),
		zap.Int("completed_steps", status.CompletedSteps),
		zap.Int("total_steps", status.TotalSteps),
	}

	switch {
	case status.Status == onboarding.StatusFailed:
		w.logger.Error("Tenant onboarding failed", append(fields, zap.String("error", status.Error))...)
	case status.Status == onboarding.StatusInProgress && now.Sub(current.lastMoved) > w.config.StallAfter:
		w.logger.Warn("Tenant onboarding appears stalled",
			append(fields, zap.Duration("no_progress_for", now.Sub(current.lastMoved)))...)
	default:
		w.logger.Info("Tenant onboarding status", fields...)
	}

	for _, step := range status.Steps {
		if step.Status == onboarding.StepFailed {
			w.logger.Warn("Onboarding step failed",
				zap.String("tenant_id", tenantID),
				zap.String("step", step.Code),
				zap.String("module", step.Module),
				zap.String("error", step.Error))
		}
	}
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	baseURL := os.Getenv("ONBOARDING_API_URL")
	if baseURL == "" {
		logger.Fatal("ONBOARDING_API_URL is required")
	}

	config := DefaultWatcherConfig()
	if tenants := os.Getenv("WATCH_TENANTS"); tenants != "" {
		for _, t := range strings.Split(tenants, ",") {
			if t = strings.TrimSpace(t); t != "" {
				config.Tenants = append(config.Tenants, t)
			}
		}
	}
	if schedule := os.Getenv("WATCH_SCHEDULE"); schedule != "" {
		config.Schedule = schedule
	}
	if len(config.Tenants) == 0 {
		logger.Fatal("WATCH_TENANTS is required")
	}

	client := onboarding.NewClient(baseURL,
		onboarding.WithToken(os.Getenv("ONBOARDING_API_TOKEN")))

	watcher := NewWatcher(client, logger, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down watcher...")
		cancel()
	}()

	if err := watcher.Start(ctx); err != nil {
		logger.Fatal("Watcher failed", zap.Error(err))
	}
}
