package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Telegram pushes alerts to a Telegram chat via the bot API.
type Telegram struct {
	Token   string
	ChatID  string
	HTTP    *http.Client
	BaseURL string // defaults to the public bot API
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: "https://api.telegram.org",
	}
}

func (t *Telegram) Notify(a Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%s", a.Severity, a.Type, a.Message)
	for _, k := range a.DetailKeys() {
		fmt.Fprintf(&b, "\n%s: %s", k, a.Details[k])
	}
	fmt.Fprintf(&b, "\n%s", a.Time.UTC().Format(time.RFC3339))
	text := b.String()

	body, err := json.Marshal(map[string]string{
		"chat_id": t.ChatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	base := t.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.Token)
	resp, err := t.HTTP.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}
