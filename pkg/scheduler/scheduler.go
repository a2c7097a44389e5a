package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/robfig/cron/v3"
)

// Triggerer starts runs. *engine.Engine satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, req engine.TriggerRequest) (*models.WorkflowRun, error)
}

type Scheduler struct {
	cron      *cron.Cron
	triggerer Triggerer
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(logger *slog.Logger, triggerer Triggerer) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLogger := slogAdapter{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger),
				cron.Recover(cronLogger),
			),
		),
		triggerer: triggerer,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]cron.EntryID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add registers schedule. Disabled schedules are skipped.
func (s *Scheduler) Add(schedule Schedule) error {
	err := schedule.Validate()
	if err != nil {
		return err
	}

	if schedule.Disabled {
		s.logger.Info("schedule disabled", "schedule_id", schedule.ID)

		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[schedule.ID]; exists {
		return fmt.Errorf("%w: schedule %s is already registered", ErrInvalidSchedule, schedule.ID)
	}

	id, err := s.cron.AddFunc(schedule.Cron, func() { s.Fire(schedule) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %s: %w", schedule.ID, err)
	}

	s.entries[schedule.ID] = id
	s.logger.Info("schedule registered", "schedule_id", schedule.ID, "cron", schedule.Cron, "template_id", schedule.TemplateID)

	return nil
}

// Remove unregisters a schedule; unknown ids are ignored.
func (s *Scheduler) Remove(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(id)
		delete(s.entries, scheduleID)
	}
}

// Next returns the next activation time of a registered schedule.
func (s *Scheduler) Next(scheduleID string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[scheduleID]
	s.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}

	return s.cron.Entry(id).Next, true
}

// Fire triggers one run of schedule immediately.
func (s *Scheduler) Fire(schedule Schedule) {
	input := maps.Clone(schedule.Input)
	if input == nil {
		input = make(map[string]any, 2)
	}

	input["schedule_id"] = schedule.ID
	input["scheduled_at"] = s.now().UTC().Format(time.RFC3339)

	run, err := s.triggerer.Trigger(s.ctx, engine.TriggerRequest{
		TemplateID: schedule.TemplateID,
		ProjectID:  schedule.ProjectID,
		StoryID:    schedule.StoryID,
		Input:      input,
	})
	if err != nil {
		s.logger.ErrorContext(s.ctx, "scheduled trigger failed",
			"schedule_id", schedule.ID, "template_id", schedule.TemplateID, "error", err)

		return
	}

	s.logger.InfoContext(s.ctx, "scheduled run triggered", "schedule_id", schedule.ID, "run_id", run.ID)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight triggers.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
