package notifier

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	got []Alert
	err error
}

func (s *recordingSink) Notify(a Alert) error {
	s.got = append(s.got, a)
	return s.err
}

func TestMultiDeliversToAllSinks(t *testing.T) {
	t.Parallel()

	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, b}

	require.NoError(t, m.Notify(Alert{Type: "hard_stop"}))
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

func TestMultiIsBestEffort(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{err: errors.New("telegram down")}
	also := &recordingSink{err: errors.New("webhook down")}
	healthy := &recordingSink{}
	m := Multi{failing, also, healthy}

	err := m.Notify(Alert{Type: "hard_stop"})
	assert.ErrorContains(t, err, "telegram down", "first error wins")
	assert.Len(t, healthy.got, 1, "later sinks still receive the alert")
}

func TestSlogNotifyNeverFails(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Slog{}.Notify(Alert{Type: "spread_widening", Severity: "warning"}))
}

func TestTelegramNotify(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("tok123", "chat-9")
	tg.BaseURL = srv.URL

	err := tg.Notify(Alert{
		Type:     "hard_stop",
		Severity: "critical",
		Message:  "position 42 beyond hard stop",
		Details:  map[string]string{"adverse_pips": "56.0"},
		Time:     time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "chat-9", got["chat_id"])
	assert.Contains(t, got["text"], "[critical] hard_stop")
	assert.Contains(t, got["text"], "position 42 beyond hard stop")
	assert.Contains(t, got["text"], "adverse_pips: 56.0")
}

func TestTelegramNotifyBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tg := NewTelegram("tok", "chat")
	tg.BaseURL = srv.URL

	assert.ErrorContains(t, tg.Notify(Alert{}), "telegram status 403")
}
