// Package reminder keeps the single "time to leave" reminder. Scheduling a
// new reminder replaces the previous one, and a reminder whose train has left
// is cleared the next time it is read.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
	"github.com/aviv1ron1/the-commuter-il/internal/store"
)

// LeadTime is how long before the leave time the alert fires.
const LeadTime = 15 * time.Minute

// Reminder is the stored active reminder.
type Reminder struct {
	TrainNumber      string    `json:"train_number"`
	DepartureStation string    `json:"departure_station"`
	DepartureTime    time.Time `json:"departure_time"`
	LeaveTime        time.Time `json:"leave_time"`
	NotificationID   string    `json:"notification_id"`
	NotifyAt         time.Time `json:"notify_at"`
}

// Alerter arms and disarms the one-shot alert behind a reminder.
type Alerter interface {
	Arm(ctx context.Context, r Reminder) error
	// Disarm must not fail for an unknown id.
	Disarm(ctx context.Context, notificationID string) error
}

// Coordinator owns the active reminder slot.
type Coordinator struct {
	store   store.Store
	alerter Alerter
	logger  *logrus.Logger
	now     func() time.Time
	newID   func() string

	mu sync.Mutex
}

type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator replaces the random notification id generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

func NewCoordinator(st store.Store, alerter Alerter, logger *logrus.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   st,
		alerter: alerter,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule replaces any active reminder with one for option. It returns nil
// and no error when the alert time has already passed.
func (c *Coordinator) Schedule(ctx context.Context, option planner.JourneyOption) (*Reminder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cancelLocked(ctx); err != nil {
		return nil, fmt.Errorf("cancelling previous reminder: %w", err)
	}

	notifyAt := option.LeaveTime.Add(-LeadTime)
	now := c.now()
	if !notifyAt.After(now) {
		c.logger.WithFields(logrus.Fields{
			"train":      option.TrainNumber,
			"leave_time": option.LeaveTime.Format("15:04"),
			"notify_at":  notifyAt.Format("15:04"),
		}).Info("too late to schedule a reminder")
		return nil, nil
	}

	r := Reminder{
		TrainNumber:      option.TrainNumber,
		DepartureStation: option.DepartureStation,
		DepartureTime:    option.TrainDeparture,
		LeaveTime:        option.LeaveTime,
		NotificationID:   c.newID(),
		NotifyAt:         notifyAt,
	}

	if err := c.alerter.Arm(ctx, r); err != nil {
		return nil, fmt.Errorf("arming alert: %w", err)
	}
	if err := c.save(ctx, r); err != nil {
		if derr := c.alerter.Disarm(ctx, r.NotificationID); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, err
	}

	if places.StationIndex(r.DepartureStation) >= 0 {
		if err := c.store.Set(ctx, store.KeyRememberedStation, r.DepartureStation); err != nil {
			c.logger.WithField("error", err).Warn("failed to remember departure station")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"id":        r.NotificationID,
		"train":     r.TrainNumber,
		"station":   r.DepartureStation,
		"notify_at": r.NotifyAt.Format(time.RFC3339),
	}).Info("reminder scheduled")

	return &r, nil
}

// CancelActive removes the alert and clears the slot. Cancelling with no
// active reminder is a no-op.
func (c *Coordinator) CancelActive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(ctx)
}

func (c *Coordinator) cancelLocked(ctx context.Context) error {
	r, err := c.load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}

	var errs []error
	var decodeErr *decodeError
	switch {
	case err == nil:
		if derr := c.alerter.Disarm(ctx, r.NotificationID); derr != nil {
			errs = append(errs, fmt.Errorf("disarming alert %s: %w", r.NotificationID, derr))
		}
	case errors.As(err, &decodeErr):
		// An unreadable record has no alert we can find, but the slot still goes.
	default:
		errs = append(errs, err)
	}
	if derr := c.store.Delete(ctx, store.KeyActiveReminder); derr != nil {
		errs = append(errs, fmt.Errorf("clearing reminder: %w", derr))
	}
	if len(errs) == 0 && err == nil {
		c.logger.WithField("id", r.NotificationID).Info("reminder cancelled")
	}
	return errors.Join(errs...)
}

// GetActive returns the active reminder, or nil when there is none. A
// reminder whose train has departed, or that cannot be read, is cleared.
func (c *Coordinator) GetActive(ctx context.Context) (*Reminder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(ctx)
}

func (c *Coordinator) activeLocked(ctx context.Context) (*Reminder, error) {
	r, err := c.load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		c.logger.WithField("error", err).Warn("clearing unreadable reminder")
		return nil, c.clear(ctx)
	}
	if err != nil {
		return nil, err
	}

	if !r.DepartureTime.After(c.now()) {
		c.logger.WithFields(logrus.Fields{
			"id":        r.NotificationID,
			"departure": r.DepartureTime.Format("15:04"),
		}).Info("reminder expired, train has departed")
		if derr := c.alerter.Disarm(ctx, r.NotificationID); derr != nil {
			c.logger.WithField("error", derr).Warn("failed to disarm expired alert")
		}
		return nil, c.clear(ctx)
	}
	return &r, nil
}

// IsActive reports whether notificationID is the alert of the stored active
// reminder. The slot may be shared with other processes, so an alert armed
// here can be cancelled or replaced without this process hearing of it. A
// store read failure counts as active.
func (c *Coordinator) IsActive(ctx context.Context, notificationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.activeLocked(ctx)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"id":    notificationID,
			"error": err,
		}).Warn("cannot read active reminder, sending alert anyway")
		return true
	}
	return r != nil && r.NotificationID == notificationID
}

// Restore re-arms the stored reminder after a restart. A reminder whose alert
// time has passed stays active without an alert until its train departs.
func (c *Coordinator) Restore(ctx context.Context) (*Reminder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.activeLocked(ctx)
	if err != nil || r == nil {
		return nil, err
	}
	if !r.NotifyAt.After(c.now()) {
		c.logger.WithField("id", r.NotificationID).Info("restored reminder, alert time already passed")
		return r, nil
	}
	if err := c.alerter.Arm(ctx, *r); err != nil {
		return nil, fmt.Errorf("re-arming alert: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"id":        r.NotificationID,
		"notify_at": r.NotifyAt.Format(time.RFC3339),
	}).Info("reminder restored")
	return r, nil
}

// RememberedStation returns the station the last outbound reminder left
// from, or places.DefaultReturnStation when nothing usable is stored.
func (c *Coordinator) RememberedStation(ctx context.Context) string {
	name, err := c.store.Get(ctx, store.KeyRememberedStation)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.WithField("error", err).Warn("failed to read remembered station")
		}
		return places.DefaultReturnStation
	}
	if places.StationIndex(name) < 0 {
		return places.DefaultReturnStation
	}
	return name
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decoding stored reminder: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Coordinator) load(ctx context.Context) (Reminder, error) {
	raw, err := c.store.Get(ctx, store.KeyActiveReminder)
	if err != nil {
		return Reminder{}, err
	}
	var r Reminder
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reminder{}, &decodeError{err: err}
	}
	if r.NotificationID == "" || r.DepartureTime.IsZero() {
		return Reminder{}, &decodeError{err: errors.New("incomplete record")}
	}
	return r, nil
}

func (c *Coordinator) save(ctx context.Context, r Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reminder: %w", err)
	}
	if err := c.store.Set(ctx, store.KeyActiveReminder, string(data)); err != nil {
		return fmt.Errorf("saving reminder: %w", err)
	}
	return nil
}

func (c *Coordinator) clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, store.KeyActiveReminder); err != nil {
		return fmt.Errorf("clearing reminder: %w", err)
	}
	return nil
}
