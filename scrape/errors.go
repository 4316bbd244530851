package scrape

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBudgetExhausted is matched by an *ExhaustedError when the caller's tier
// or cost ceiling stopped escalation before any tier succeeded.
var ErrBudgetExhausted = errors.New("scrape: budget exhausted")

// ErrInvalidTarget rejects a target before any tier runs.
var ErrInvalidTarget = errors.New("scrape: invalid target")

// TransportError is a network-level failure at one tier: timeout, refused
// connection, an error status, a crashed renderer.
type TransportError struct {
	Tier TierName
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("scrape: %s: transport: %v", e.Tier, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExtractionError means the page was fetched but no valid price was found.
type ExtractionError struct {
	Tier   TierName
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("scrape: %s: extraction: %s", e.Tier, e.Reason)
}

// ExhaustedError is the terminal failure of a scrape: every tier within
// budget was tried and none produced a price. Attempts carries the per-tier
// reasons in the order they were tried.
type ExhaustedError struct {
	URL      string
	Attempts []Attempt
	Cost     float64
	Budget   bool // a tier was excluded by MaxTier or MaxCost
}

func (e *ExhaustedError) Error() string {
	var sb strings.Builder
	if e.Budget {
		sb.WriteString("scrape: budget exhausted for ")
	} else {
		sb.WriteString("scrape: all tiers failed for ")
	}
	sb.WriteString(e.URL)
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, "; %s: %s", a.Tier, a.Reason)
	}
	return sb.String()
}

// Is lets errors.Is(err, ErrBudgetExhausted) match a budget-stopped scrape.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrBudgetExhausted && e.Budget
}
