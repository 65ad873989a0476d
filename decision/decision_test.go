package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/rules"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Action
	}{
		{"BUY", ActionBuy},
		{"buy", ActionBuy},
		{" long ", ActionBuy},
		{"SELL", ActionSell},
		{"short", ActionSell},
		{"HOLD", ActionHold},
		{"wait and see", ActionHold},
		{"", ActionHold},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAction(tt.in), "input %q", tt.in)
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	got, err := extractJSON("Sure! Here you go:\n```json\n{\"action\":\"BUY\"}\n```\nGood luck.")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"BUY"}`, got)

	got, err = extractJSON(`{"a":{"b":1}}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":1}}`, got)

	_, err = extractJSON("I cannot answer that.")
	assert.ErrorContains(t, err, "no JSON object")
}

func TestParseJudgment(t *testing.T) {
	t.Parallel()

	j, err := parseJudgment(`{"action":"buy","confidence":0.82,"reasoning":"trend up","stop_loss":149.7}`)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, j.Action)
	assert.InDelta(t, 0.82, j.Confidence, 1e-9)
	assert.Equal(t, "trend up", j.Reasoning)
	assert.InDelta(t, 149.7, j.StopLoss, 1e-9)
}

func TestParseJudgmentPercentConfidence(t *testing.T) {
	t.Parallel()

	// Some sources answer confidence in percent despite the schema.
	j, err := parseJudgment(`{"action":"SELL","confidence":82}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, j.Confidence, 1e-9)
}

func TestParseJudgmentBadPayload(t *testing.T) {
	t.Parallel()

	_, err := parseJudgment(`{"action":`)
	assert.Error(t, err)
}

func TestRetryPolicyDo(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		t.Parallel()

		calls := 0
		p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2}
		err := p.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		t.Parallel()

		calls := 0
		p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, BackoffFactor: 2}
		err := p.Do(context.Background(), func() error {
			calls++
			return errors.New("still down")
		})
		assert.ErrorContains(t, err, "still down")
		assert.Equal(t, 2, calls)
	})

	t.Run("stops waiting on context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, BackoffFactor: 2}
		err := p.Do(ctx, func() error { return errors.New("down") })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryPolicy{}.Do(context.Background(), func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestTokenUsage(t *testing.T) {
	t.Parallel()

	u := NewTokenUsage()
	u.Add(100, 20)
	u.Add(50, 10)

	prompt, completion, calls := u.Totals()
	assert.Equal(t, 150, prompt)
	assert.Equal(t, 30, completion)
	assert.Equal(t, 2, calls)

	u.Reset()
	prompt, completion, calls = u.Totals()
	assert.Zero(t, prompt)
	assert.Zero(t, completion)
	assert.Zero(t, calls)
}

func TestStaticRuleSourceRestampsValidity(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	snap := market.Snapshot{Tick: market.Tick{Time: at}}

	s := &StaticRuleSource{
		Template: rules.Rule{Bias: "bullish"},
		Validity: 2 * time.Hour,
	}

	r, err := s.GenerateRule(context.Background(), snap, "")
	require.NoError(t, err)
	assert.Equal(t, "bullish", r.Bias)
	assert.Equal(t, at, r.GeneratedAt)
	assert.Equal(t, at.Add(2*time.Hour), r.ValidUntil)

	// Default validity when none is configured.
	s.Validity = 0
	r, err = s.GenerateRule(context.Background(), snap, "")
	require.NoError(t, err)
	assert.Equal(t, at.Add(4*time.Hour), r.ValidUntil)
}

func TestNewLLMSourceProviderSelection(t *testing.T) {
	t.Parallel()

	for _, model := range []string{"gemini-2.0-flash", "gpt-4o", "claude-sonnet"} {
		_, err := NewLLMSource(model, "key", NewTokenUsage(), DefaultRetry())
		assert.NoError(t, err, model)
	}

	_, err := NewLLMSource("llama-3", "key", NewTokenUsage(), DefaultRetry())
	assert.ErrorContains(t, err, "no provider for model")
}

// fakeClient scripts provider responses without the network.
type fakeClient struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeClient) generate(context.Context, string) (string, int, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", 0, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], 10, nil
	}
	return "", 0, errors.New("no scripted reply")
}

func (f *fakeClient) name() string { return "fake" }

func TestLLMSourceEvaluateRetries(t *testing.T) {
	t.Parallel()

	c := &fakeClient{
		errs:    []error{errors.New("rate limited"), nil},
		replies: []string{"", `The market looks strong. {"action":"BUY","confidence":0.9}`},
	}
	s := &LLMSource{
		client: c,
		retry:  RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2},
	}

	j, err := s.Evaluate(context.Background(), market.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, j.Action)
	assert.Equal(t, 2, c.calls)
}

func TestLLMSourceGenerateRuleStampsDefaults(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	c := &fakeClient{replies: []string{`{"bias":"bearish","confidence":0.8}`}}
	s := &LLMSource{
		client:       c,
		retry:        RetryPolicy{MaxAttempts: 1},
		RuleValidity: 4 * time.Hour,
	}

	r, err := s.GenerateRule(context.Background(), market.Snapshot{Tick: market.Tick{Time: at}}, "")
	require.NoError(t, err)
	assert.Equal(t, "bearish", r.Bias)
	assert.Equal(t, at, r.GeneratedAt)
	assert.Equal(t, at.Add(4*time.Hour), r.ValidUntil)
}

func TestLLMSourceSurfacesProviderFailure(t *testing.T) {
	t.Parallel()

	c := &fakeClient{errs: []error{errors.New("boom")}}
	s := &LLMSource{client: c, retry: RetryPolicy{MaxAttempts: 1}}

	_, err := s.Evaluate(context.Background(), market.Snapshot{})
	assert.ErrorContains(t, err, "fake evaluate")
}
