package notify

import (
	"fmt"

	"github.com/gregdel/pushover"
	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/reminder"
)

// PriorityHigh bypasses the user's Pushover quiet hours.
const PriorityHigh = 1

// messenger is the part of the Pushover client the notifier uses.
type messenger interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

type Notifier struct {
	app       messenger
	recipient *pushover.Recipient
	logger    *logrus.Logger
}

func NewNotifier(token, userKey string, logger *logrus.Logger) *Notifier {
	return &Notifier{
		app:       pushover.New(token),
		recipient: pushover.NewRecipient(userKey),
		logger:    logger,
	}
}

func (n *Notifier) SendWithPriority(title, message string, priority int) error {
	msg := pushover.NewMessageWithTitle(message, title)
	msg.Priority = priority

	resp, err := n.app.SendMessage(msg, n.recipient)
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"title":      title,
		"status":     resp.Status,
		"request_id": resp.ID,
	}).Debug("notification sent")

	return nil
}

// SendLeaveReminder tells the user to head out for the reminded train.
func (n *Notifier) SendLeaveReminder(r reminder.Reminder) error {
	title := "Time to leave for your train!"
	body := fmt.Sprintf("Train #%s departs at %s from %s. Leave now (%s)!",
		r.TrainNumber, r.DepartureTime.Format("15:04"), r.DepartureStation, r.LeaveTime.Format("15:04"))
	return n.SendWithPriority(title, body, PriorityHigh)
}

// LogNotifier writes reminders to the log instead of a push service.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendLeaveReminder(r reminder.Reminder) error {
	n.logger.WithFields(logrus.Fields{
		"train":     r.TrainNumber,
		"station":   r.DepartureStation,
		"departure": r.DepartureTime.Format("15:04"),
		"leave":     r.LeaveTime.Format("15:04"),
	}).Warn("time to leave for your train")
	return nil
}
