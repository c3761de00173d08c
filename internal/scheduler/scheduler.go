// Package scheduler fires one-shot leave alerts from a ticker loop.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/reminder"
)

const (
	DefaultTick = 30 * time.Second
	// A task fires on the first tick within this long after its time.
	fireWindow = 2 * time.Minute
)

// ErrStopped is returned by Arm once the scheduler has stopped.
var ErrStopped = errors.New("scheduler stopped")

// Sender delivers a fired reminder.
type Sender interface {
	SendLeaveReminder(r reminder.Reminder) error
}

// Guard confirms, just before sending, that an alert still belongs to the
// active reminder. Another process may have cancelled or replaced it.
type Guard interface {
	IsActive(ctx context.Context, notificationID string) bool
}

type Task struct {
	Reminder reminder.Reminder
	Time     time.Time
	Executed bool
}

// Scheduler holds armed alerts and fires each one once.
type Scheduler struct {
	sender Sender
	guard  Guard
	logger *logrus.Logger
	tick   time.Duration
	now    func() time.Time

	mu         sync.Mutex
	tasks      []Task
	currentDay int
	stopped    bool
	stopCh     chan struct{}
	fired      chan string
	wg         sync.WaitGroup
}

type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(sender Sender, tick time.Duration, logger *logrus.Logger, opts ...Option) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	s := &Scheduler{
		sender: sender,
		logger: logger,
		tick:   tick,
		now:    time.Now,
		stopCh: make(chan struct{}),
		fired:  make(chan string, 8),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ reminder.Alerter = (*Scheduler)(nil)

// SetGuard installs the check run before each alert is sent. It must be
// called before Start.
func (s *Scheduler) SetGuard(g Guard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard = g
}

// Arm adds a one-shot task for r, replacing a task with the same id.
func (s *Scheduler) Arm(_ context.Context, r reminder.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	s.removeLocked(r.NotificationID)
	s.tasks = append(s.tasks, Task{Reminder: r, Time: r.NotifyAt})

	s.logger.WithFields(logrus.Fields{
		"id":             r.NotificationID,
		"scheduled_time": r.NotifyAt.Format("15:04"),
		"total_tasks":    len(s.tasks),
	}).Info("alert armed")
	return nil
}

// Disarm removes the task with the given id. Unknown ids are ignored.
func (s *Scheduler) Disarm(_ context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removeLocked(notificationID) {
		s.logger.WithField("id", notificationID).Info("alert disarmed")
	}
	return nil
}

func (s *Scheduler) removeLocked(id string) bool {
	for i := range s.tasks {
		if s.tasks[i].Reminder.NotificationID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the tasks that have not fired yet.
func (s *Scheduler) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, t := range s.tasks {
		if !t.Executed {
			out = append(out, t)
		}
	}
	return out
}

// Fired delivers the id of every alert after it has been sent.
func (s *Scheduler) Fired() <-chan string {
	return s.fired
}

func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.mu.Lock()
	s.currentDay = s.now().Day()
	s.mu.Unlock()
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped: context cancelled")
			return
		case <-s.stopCh:
			s.logger.Info("scheduler stopped: stop signal received")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every task whose time falls in the window before now and drops
// tasks whose window has passed. Alerts are sent after the lock is released
// so Arm and Disarm never wait on the push service.
func (s *Scheduler) Tick(ctx context.Context) {
	due, guard := s.collectDue(s.now())

	for _, task := range due {
		if guard != nil && !guard.IsActive(ctx, task.Reminder.NotificationID) {
			s.logger.WithField("id", task.Reminder.NotificationID).Info("alert no longer active, not sending")
			continue
		}
		s.executeTask(task)
	}
}

// collectDue marks the tasks in their fire window as executed and returns
// copies of them.
func (s *Scheduler) collectDue(now time.Time) ([]Task, Guard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Day() != s.currentDay {
		s.currentDay = now.Day()
		s.pruneExecutedLocked()
	}

	var due []Task
	kept := s.tasks[:0]
	for i := range s.tasks {
		task := s.tasks[i]
		switch {
		case task.Executed:
		case s.isWithinWindow(task.Time, now, fireWindow):
			task.Executed = true
			due = append(due, task)
		case now.Sub(task.Time) >= fireWindow:
			s.logger.WithFields(logrus.Fields{
				"id":             task.Reminder.NotificationID,
				"scheduled_time": task.Time.Format("15:04"),
			}).Warn("alert window missed, dropping task")
			continue
		}
		kept = append(kept, task)
	}
	s.tasks = kept
	return due, s.guard
}

func (s *Scheduler) isWithinWindow(taskTime, now time.Time, window time.Duration) bool {
	diff := now.Sub(taskTime)
	return diff >= 0 && diff < window
}

func (s *Scheduler) pruneExecutedLocked() {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.Executed {
			kept = append(kept, t)
		}
	}
	s.logger.WithField("removed", len(s.tasks)-len(kept)).Info("day changed, pruning fired alerts")
	s.tasks = kept
}

func (s *Scheduler) executeTask(task Task) {
	s.logger.WithFields(logrus.Fields{
		"id":             task.Reminder.NotificationID,
		"scheduled_time": task.Time.Format("15:04"),
	}).Debug("executing task")

	if err := s.sender.SendLeaveReminder(task.Reminder); err != nil {
		s.logger.WithFields(logrus.Fields{
			"id":    task.Reminder.NotificationID,
			"error": err,
		}).Error("task execution failed")
	}

	select {
	case s.fired <- task.Reminder.NotificationID:
	default:
	}
}
