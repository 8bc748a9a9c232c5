// Package scheduler runs the engine's periodic tasks. Each task has its own
// ticker and never overlaps itself; tasks run independently of each other.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
)

var (
	ErrUnknownTask    = errors.New("unknown task")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run; zero means the interval.
	Timeout    time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// TaskStatus is the last observed state of one task.
type TaskStatus struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	Running     bool          `json:"running"`
	Runs        int           `json:"runs"`
	Failures    int           `json:"failures"`
	LastRun     time.Time     `json:"last_run"`
	LastSuccess time.Time     `json:"last_success"`
	LastError   string        `json:"last_error,omitempty"`
	Duration    time.Duration `json:"last_duration"`
}

type task struct {
	Task
	trigger chan struct{}

	mu     sync.Mutex
	status TaskStatus
}

type Scheduler struct {
	clock    clock.Clock
	metrics  *metrics.Metrics
	onResult func(ctx context.Context, task string, err error)

	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithResultHook is called after every run with the task's result.
func WithResultHook(fn func(ctx context.Context, task string, err error)) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clock.New(),
		metrics:  metrics.Get(),
		onResult: func(context.Context, string, error) {},
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. Tasks must be added before Start.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a run function")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", t.Name)
	}
	if t.Timeout <= 0 {
		t.Timeout = t.Interval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if _, exists := s.tasks[t.Name]; exists {
		return fmt.Errorf("task %s already registered", t.Name)
	}
	s.tasks[t.Name] = &task{
		Task:    t,
		trigger: make(chan struct{}, 1),
		status:  TaskStatus{Name: t.Name, Interval: t.Interval},
	}
	s.order = append(s.order, t.Name)
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)

	for _, name := range s.order {
		t := s.tasks[name]
		// The ticker exists before Start returns, so no tick is missed.
		ticker := s.clock.Ticker(t.Interval)
		s.group.Go(func() error {
			defer ticker.Stop()
			s.loop(ctx, t, ticker)
			return nil
		})
	}

	logger.WithComponent("scheduler").Infof("Scheduler started with %d tasks", len(s.order))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *task, ticker *clock.Ticker) {
	if t.RunOnStart {
		s.run(ctx, t)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, t)
		case <-t.trigger:
			s.run(ctx, t)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	if ctx.Err() != nil {
		return
	}

	start := s.clock.Now()
	t.mu.Lock()
	t.status.Running = true
	t.mu.Unlock()

	runCtx, cancel := s.clock.WithTimeout(ctx, t.Timeout)
	err := t.Run(runCtx)
	cancel()

	elapsed := s.clock.Since(start)
	t.mu.Lock()
	t.status.Running = false
	t.status.Runs++
	t.status.LastRun = start
	t.status.Duration = elapsed
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
	} else {
		t.status.LastSuccess = start
		t.status.LastError = ""
	}
	t.mu.Unlock()

	s.metrics.ObserveTask(t.Name, elapsed, err)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"task":     t.Name,
			"duration": elapsed.String(),
		}).Warn("Scheduled task failed")
	}
	s.onResult(ctx, t.Name, err)
}

// Trigger requests an out-of-band run. A run already pending absorbs the
// request; a run in progress is followed by one more.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	select {
	case t.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Stop cancels every task and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel, group := s.cancel, s.group
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	_ = group.Wait()
	logger.WithComponent("scheduler").Info("Scheduler stopped")
}

func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		out = append(out, t.status)
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
