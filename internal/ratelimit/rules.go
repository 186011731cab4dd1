package ratelimit

import (
	"errors"
	"slices"
	"time"

	"github.com/Proton-105/teller/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limits are enforced at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled
}

// IsWhitelisted returns true if the terminal bypasses rate limits.
func (r *Rules) IsWhitelisted(terminalID string) bool {
	return slices.Contains(r.config.Whitelist, terminalID)
}

// GetPerTerminalLimit returns the budget shared by every keypad request to one terminal.
func (r *Rules) GetPerTerminalLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerTerminal)
}

// GetCardSwipeLimit returns the budget for card swipes, which start a new PIN attempt.
func (r *Rules) GetCardSwipeLimit() (int, time.Duration, error) {
	return parseRule(r.config.CardSwipes)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
