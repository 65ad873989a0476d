// Package notifier delivers alerts to the outside world.
package notifier

import (
	"log/slog"
	"sort"
	"time"
)

// Alert is the outbound notification shape. The monitor package owns
// dedup/cooldown; notifiers just deliver. Details carries the structured
// values behind Message so consumers never parse the text.
type Alert struct {
	ID       string
	Type     string
	Severity string
	Subject  string
	Message  string
	Details  map[string]string
	Time     time.Time
}

// DetailKeys returns the detail keys in sorted order.
func (a Alert) DetailKeys() []string {
	keys := make([]string, 0, len(a.Details))
	for k := range a.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Notifier interface {
	Notify(Alert) error
}

// Slog writes alerts to structured logs. Always safe as a default sink.
type Slog struct {
	Log *slog.Logger
}

func (n Slog) Notify(a Alert) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	args := []any{
		"id", a.ID, "type", a.Type, "severity", a.Severity,
		"subject", a.Subject, "message", a.Message,
	}
	for _, k := range a.DetailKeys() {
		args = append(args, k, a.Details[k])
	}
	log.Warn("alert", args...)
	return nil
}

// Multi fans an alert out to several notifiers. Delivery is best effort:
// one failing sink does not stop the others, and the first error is
// returned.
type Multi []Notifier

func (m Multi) Notify(a Alert) error {
	var first error
	for _, n := range m {
		if err := n.Notify(a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
