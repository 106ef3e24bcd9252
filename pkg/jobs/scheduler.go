package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a periodic single-pass batch process.
type Task struct {
	Name string
	// Spec is a cron expression; descriptors such as "@every 5m" are accepted.
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler fires registered tasks on their cron spec. Each task owns a
// single-worker queue, so a pass never overlaps a previous pass of the same
// task and a tick that arrives while one is pending is dropped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	queues  map[string]*Queue
	started bool
}

// NewScheduler builds a scheduler evaluating specs in loc.
func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		logger: logger,
		queues: make(map[string]*Queue),
	}
}

// Register adds a task. It must be called before Start.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil {
		return errors.New("task requires a name and a run func")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("register %s: scheduler already started", task.Name)
	}
	if _, exists := s.queues[task.Name]; exists {
		return fmt.Errorf("task %s already registered", task.Name)
	}

	run := task.Run
	queue := NewQueue(task.Name, func(ctx context.Context, job Job) error {
		start := time.Now()
		err := run(ctx)
		s.logger.Sugar().Infow("task pass finished", "task", job.Type, "duration", time.Since(start), "error", err)
		return err
	}, QueueConfig{Workers: 1, BufferSize: 1, MaxRetries: -1, Logger: s.logger})

	if _, err := s.cron.AddFunc(task.Spec, func() { s.fire(queue) }); err != nil {
		return fmt.Errorf("schedule %s with %q: %w", task.Name, task.Spec, err)
	}
	s.queues[task.Name] = queue
	return nil
}

// Start launches the task queues and the cron clock.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	for _, q := range s.queues {
		q.Start(ctx)
	}
	s.cron.Start()
	s.started = true
	s.logger.Sugar().Infow("scheduler started", "tasks", len(s.queues))
}

// Stop halts the clock, then waits for running passes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	for _, q := range s.queues {
		q.Stop()
	}
	s.logger.Sugar().Infow("scheduler stopped")
}

// Trigger runs the named task out of schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	queue, ok := s.queues[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	return queue.TryEnqueue(Job{ID: uuid.NewString(), Type: name})
}

func (s *Scheduler) fire(queue *Queue) {
	err := queue.TryEnqueue(Job{ID: uuid.NewString(), Type: queue.Name()})
	if errors.Is(err, ErrQueueFull) {
		s.logger.Sugar().Debugw("task pass already pending, tick skipped", "task", queue.Name())
		return
	}
	if err != nil {
		s.logger.Sugar().Warnw("failed to enqueue task pass", "task", queue.Name(), "error", err)
	}
}
