package deals

import (
	"fmt"
	"strings"
)

var stages = map[string]bool{
	StageLead:        true,
	StageQualified:   true,
	StageProposal:    true,
	StageNegotiation: true,
	StageWon:         true,
	StageLost:        true,
}

// ValidateDeal normalizes currency and checks every field.
func ValidateDeal(deal *Deal) error {
	deal.Title = strings.TrimSpace(deal.Title)
	if deal.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(deal.Title) > 200 {
		return fmt.Errorf("%w: title must be at most 200 characters", ErrInvalidInput)
	}

	if deal.Value < 0 {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidInput)
	}

	deal.Currency = strings.ToUpper(strings.TrimSpace(deal.Currency))
	if len(deal.Currency) != 3 || strings.IndexFunc(deal.Currency, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrInvalidInput)
	}

	if !stages[deal.Stage] {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, deal.Stage)
	}

	return nil
}
