package matching

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable matching constants. The defaults are the shipped
// reconciliation policy; operators can override them from a YAML file until
// the weights are confirmed against real statement data.
type Policy struct {
	// MinScore discards candidates scoring below it.
	MinScore float64 `yaml:"min_score"`
	// ExactAmountScore is awarded when the entry's remaining amount equals
	// the transaction amount exactly.
	ExactAmountScore float64 `yaml:"exact_amount_score"`
	// DateScoreBase decays by one point per day of distance, floored at 0.
	DateScoreBase float64 `yaml:"date_score_base"`
	// TextScoreMax caps the token-overlap bonus.
	TextScoreMax float64 `yaml:"text_score_max"`
	// RunTimeout bounds a single auto-match run; whatever is left when it
	// fires stays unmatched and is safe to retry.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinScore:         60,
		ExactAmountScore: 100,
		DateScoreBase:    10,
		TextScoreMax:     5,
		RunTimeout:       30 * time.Second,
	}
}

// LoadPolicy reads overrides from a YAML file on top of the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("reading matching policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parsing matching policy: %w", err)
	}
	return policy, nil
}
