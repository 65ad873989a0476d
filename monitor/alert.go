package monitor

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/fxpilot/internal/id"
	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/notifier"
)

// AlertManager deduplicates alerts by (type, subject) with a cooldown
// window, then fans accepted alerts out to notifiers and the journal.
type AlertManager struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent map[string]time.Time
	sinks    notifier.Notifier
	journal  journal.Journal
	log      *slog.Logger
	now      func() time.Time // test hook
}

func NewAlertManager(cooldown time.Duration, sinks notifier.Notifier, j journal.Journal, log *slog.Logger) *AlertManager {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	if j == nil {
		j = journal.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &AlertManager{
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		sinks:    sinks,
		journal:  j,
		log:      log,
		now:      time.Now,
	}
}

// Emit sends the alert unless an alert with the same (type, subject) went
// out within the cooldown window. Reports whether the alert was delivered.
func (m *AlertManager) Emit(a notifier.Alert) bool {
	m.mu.Lock()
	key := a.Type + "|" + a.Subject
	now := m.now()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		return false
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	m.deliver(a)
	return true
}

// EmitAlways bypasses deduplication. Layer 1 uses it: every emergency
// trigger is genuine.
func (m *AlertManager) EmitAlways(a notifier.Alert) {
	m.deliver(a)
}

func (m *AlertManager) deliver(a notifier.Alert) {
	if a.ID == "" {
		a.ID = id.New()
	}
	if a.Time.IsZero() {
		a.Time = m.now()
	}

	if m.sinks != nil {
		if err := m.sinks.Notify(a); err != nil {
			m.log.Error("alert delivery failed", "type", a.Type, "err", err)
		}
	}
	if err := m.journal.RecordAlert(journal.AlertRecord{
		ID:       a.ID,
		Type:     a.Type,
		Severity: a.Severity,
		Subject:  a.Subject,
		Message:  a.Message,
		Details:  encodeDetails(a.Details),
		Time:     a.Time,
	}); err != nil {
		m.log.Error("journal alert record failed", "err", err)
	}
}

func encodeDetails(d map[string]string) string {
	if len(d) == 0 {
		return ""
	}
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// Clear drops the dedup state for a subject, typically when its position
// closes, so tracking maps don't grow without bound.
func (m *AlertManager) Clear(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.lastSent {
		if strings.HasSuffix(key, "|"+subject) {
			delete(m.lastSent, key)
		}
	}
}
