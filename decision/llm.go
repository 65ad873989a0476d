package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/rules"
)

// LLMSource adapts a provider client into Source and RuleSource: it builds
// a prompt from the market snapshot, calls the provider under the retry
// policy, and parses the JSON reply.
type LLMSource struct {
	client llmClient
	retry  RetryPolicy

	// RuleValidity bounds how long a generated rule may admit new entries.
	RuleValidity time.Duration
}

func NewLLMSource(model, apiKey string, usage *TokenUsage, retry RetryPolicy) (*LLMSource, error) {
	c, err := newClient(model, apiKey, usage)
	if err != nil {
		return nil, err
	}
	return &LLMSource{client: c, retry: retry, RuleValidity: 4 * time.Hour}, nil
}

func (s *LLMSource) Evaluate(ctx context.Context, snap market.Snapshot) (Judgment, error) {
	prompt := judgmentPrompt(snap)

	var raw string
	err := s.retry.Do(ctx, func() error {
		text, _, err := s.client.generate(ctx, prompt)
		if err != nil {
			return err
		}
		raw = text
		return nil
	})
	if err != nil {
		return Judgment{}, fmt.Errorf("%s evaluate: %w", s.client.name(), err)
	}

	return parseJudgment(raw)
}

func (s *LLMSource) GenerateRule(ctx context.Context, snap market.Snapshot, review string) (rules.Rule, error) {
	prompt := rulePrompt(snap, review)

	var raw string
	err := s.retry.Do(ctx, func() error {
		text, _, err := s.client.generate(ctx, prompt)
		if err != nil {
			return err
		}
		raw = text
		return nil
	})
	if err != nil {
		return rules.Rule{}, fmt.Errorf("%s generate rule: %w", s.client.name(), err)
	}

	jsonText, err := extractJSON(raw)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("rule response: %w", err)
	}

	var r rules.Rule
	if err := json.Unmarshal([]byte(jsonText), &r); err != nil {
		return rules.Rule{}, fmt.Errorf("parse rule: %w", err)
	}

	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = snap.Tick.Time
	}
	if r.ValidUntil.IsZero() {
		r.ValidUntil = r.GeneratedAt.Add(s.RuleValidity)
	}
	return r, nil
}

func parseJudgment(raw string) (Judgment, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return Judgment{}, fmt.Errorf("judgment response: %w", err)
	}

	var j struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
		EntryPrice float64 `json:"entry_price"`
		StopLoss   float64 `json:"stop_loss"`
		TakeProfit float64 `json:"take_profit"`
	}
	if err := json.Unmarshal([]byte(jsonText), &j); err != nil {
		return Judgment{}, fmt.Errorf("parse judgment: %w", err)
	}

	conf := j.Confidence
	if conf > 1 {
		conf /= 100 // sources sometimes answer in percent
	}

	return Judgment{
		Action:     ParseAction(j.Action),
		Confidence: conf,
		Reasoning:  j.Reasoning,
		EntryPrice: j.EntryPrice,
		StopLoss:   j.StopLoss,
		TakeProfit: j.TakeProfit,
	}, nil
}

func judgmentPrompt(snap market.Snapshot) string {
	var b strings.Builder
	b.WriteString("You are an FX trading assistant. Given the market state below, ")
	b.WriteString("answer with a single JSON object: ")
	b.WriteString(`{"action":"BUY|SELL|HOLD","confidence":0.0-1.0,"reasoning":"...","entry_price":0,"stop_loss":0,"take_profit":0}`)
	b.WriteString("\n\n")
	writeSnapshot(&b, snap)
	return b.String()
}

func rulePrompt(snap market.Snapshot, review string) string {
	var b strings.Builder
	b.WriteString("You are an FX trading assistant. Produce a structured trading rule ")
	b.WriteString("as a single JSON object with keys: generated_at, valid_until, bias, ")
	b.WriteString("confidence, entry_conditions, exit_strategy, risk_management. ")
	b.WriteString("Use the schema you have been shown; no prose outside the JSON.\n\n")
	if review != "" {
		b.WriteString("Previous session review:\n")
		b.WriteString(review)
		b.WriteString("\n\n")
	}
	writeSnapshot(&b, snap)
	return b.String()
}

func writeSnapshot(b *strings.Builder, snap market.Snapshot) {
	fmt.Fprintf(b, "Instrument: %s\nTime: %s\nBid/Ask: %.5f/%.5f (spread %.1f pips)\n",
		snap.Tick.Instrument, snap.Tick.Time.UTC().Format(time.RFC3339),
		snap.Tick.Bid, snap.Tick.Ask, snap.SpreadPips)

	for _, tf := range []market.Timeframe{market.M5, market.M15, market.H1, market.H4} {
		iv, ok := snap.Indicators(tf)
		if !ok {
			continue
		}
		fmt.Fprintf(b, "%s: RSI=%.1f EMAfast=%.5f EMAslow=%.5f MACD=%.6f signal=%.6f hist=%.6f ATR=%.5f\n",
			tf, iv.RSI, iv.EMAFast, iv.EMASlow, iv.MACD, iv.MACDSignal, iv.MACDHist, iv.ATR)
	}
}
