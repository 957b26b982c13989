package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidState     = errors.New("order is in a terminal state")
	ErrRiskBlocked      = errors.New("order blocked by risk assessment")
	ErrAllHoldsFailed   = errors.New("no reservation provider confirmed a hold")
	ErrEmptyBundle      = errors.New("bundle must contain at least one product")
	ErrUnknownProduct   = errors.New("unknown product kind")
	ErrInvalidExtension = errors.New("extension days must be positive")
	ErrInvalidTTL       = errors.New("ttl days must be positive")
	ErrOwnerRequired    = errors.New("owner is required")
	ErrInvalidID        = errors.New("invalid id")
)

// RiskBlockedError carries the recorded assessment so callers can
// surface the fired reasons without re-deriving them.
type RiskBlockedError struct {
	Assessment RiskAssessment
}

func (e *RiskBlockedError) Error() string {
	if len(e.Assessment.Reasons) == 0 {
		return ErrRiskBlocked.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRiskBlocked, strings.Join(e.Assessment.Reasons, "; "))
}

func (e *RiskBlockedError) Unwrap() error { return ErrRiskBlocked }

// ProviderFailureError reports which bundle kinds could not be held
// when acquisition failed outright.
type ProviderFailureError struct {
	Failed []ProductKind
}

func (e *ProviderFailureError) Error() string {
	kinds := make([]string, len(e.Failed))
	for i, k := range e.Failed {
		kinds[i] = string(k)
	}
	return fmt.Sprintf("%s: %s", ErrAllHoldsFailed, strings.Join(kinds, ", "))
}

func (e *ProviderFailureError) Unwrap() error { return ErrAllHoldsFailed }
