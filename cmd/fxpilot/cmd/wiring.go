package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fxpilot/config"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/rules"
)

// openJournal builds the journal backend the config names.
func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "csv":
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
		return journal.NewCSV(
			filepath.Join(cfg.Dir, "trades.csv"),
			filepath.Join(cfg.Dir, "equity.csv"),
			filepath.Join(cfg.Dir, "alerts.csv"),
			filepath.Join(cfg.Dir, "stats.csv"),
		)
	case "none", "":
		return journal.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

// ruleSource returns either a fixed rule loaded from a YAML file (replayable
// backtests) or an LLM-backed source built from the decision config.
func ruleSource(rulePath string, dc config.DecisionConfig, usage *decision.TokenUsage) (decision.RuleSource, error) {
	if rulePath != "" {
		data, err := os.ReadFile(rulePath)
		if err != nil {
			return nil, fmt.Errorf("read rule file: %w", err)
		}
		var tmpl rules.Rule
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("parse rule file: %w", err)
		}
		validity, err := dc.ParseRuleValidity()
		if err != nil {
			return nil, err
		}
		return &decision.StaticRuleSource{Template: tmpl, Validity: validity}, nil
	}

	key := dc.ResolveAPIKey()
	if key == "" {
		return nil, fmt.Errorf("no rule file given and no API key configured for model %q", dc.Model)
	}

	retry := decision.DefaultRetry()
	if dc.MaxAttempts > 0 {
		retry.MaxAttempts = dc.MaxAttempts
	}
	return decision.NewLLMSource(dc.Model, key, usage, retry)
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q (want RFC3339 or YYYY-MM-DD)", s)
}
