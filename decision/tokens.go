package decision

import "sync"

// TokenUsage accumulates provider token consumption. It is explicitly
// constructed and injected into whichever component calls a provider, so
// tests can use isolated instances; there is no process-wide singleton.
type TokenUsage struct {
	mu         sync.Mutex
	prompt     int
	completion int
	calls      int
}

func NewTokenUsage() *TokenUsage {
	return &TokenUsage{}
}

func (u *TokenUsage) Add(prompt, completion int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompt += prompt
	u.completion += completion
	u.calls++
}

// Totals returns prompt tokens, completion tokens, and call count.
func (u *TokenUsage) Totals() (prompt, completion, calls int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.prompt, u.completion, u.calls
}

func (u *TokenUsage) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompt, u.completion, u.calls = 0, 0, 0
}
