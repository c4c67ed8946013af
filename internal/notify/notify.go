package notify

import (
	"fmt"
	"time"

	"github.com/ledgerline/paysync/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// ForRun builds a notification from a finished run record.
func ForRun(run *domain.Run) Notification {
	n := Notification{RunID: run.ID}
	switch run.Status {
	case domain.PhaseCompleted:
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("%s run completed", run.Kind)
		n.Message = fmt.Sprintf("%d processed (%d ok, %d failed) in %s",
			run.Processed, run.Successful, run.Failed, run.Duration().Round(time.Second))
	case domain.PhaseFailed:
		n.Type = NotifyError
		n.Title = fmt.Sprintf("%s run failed", run.Kind)
		n.Message = run.Error
	default:
		n.Type = NotifyInfo
		n.Title = fmt.Sprintf("%s run %s", run.Kind, run.Status)
		n.Message = fmt.Sprintf("%d/%d processed", run.Processed, run.Total)
	}
	return n
}
