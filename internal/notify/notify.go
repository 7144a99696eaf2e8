// Package notify carries batch lifecycle events to observers. Emission is
// one-way: nothing a sink does can change a scheduling outcome.
package notify

// NotificationType represents the severity of a notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

func (t NotificationType) String() string {
	switch t {
	case NotifySuccess:
		return "success"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "error"
	default:
		return "info"
	}
}

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Event   string         // Event id that produced it
	GroupID string         // Optional task group reference
	Data    map[string]any // Raw event payload
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification) error

// Send calls f
func (f NotifierFunc) Send(n Notification) error {
	return f(n)
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add appends a notifier
func (m *MultiNotifier) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
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

// FilterNotifier forwards only the listed events
type FilterNotifier struct {
	next   Notifier
	events map[string]bool
}

// OnlyEvents wraps next so it only receives the given events
func OnlyEvents(next Notifier, events ...string) *FilterNotifier {
	f := &FilterNotifier{next: next, events: make(map[string]bool, len(events))}
	for _, e := range events {
		f.events[e] = true
	}
	return f
}

// Send forwards n if its event is allowed
func (f *FilterNotifier) Send(n Notification) error {
	if !f.events[n.Event] {
		return nil
	}
	return f.next.Send(n)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
