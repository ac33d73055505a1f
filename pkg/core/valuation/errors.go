package valuation

import "errors"

var (
	// ErrNoLeasedBeds is returned when rent per leased bed is undefined and no
	// default market rent was configured.
	ErrNoLeasedBeds = errors.New("segment has no leased beds")

	ErrInvalidCapRate      = errors.New("cap rate must be in (0, 1)")
	ErrInvalidMultiple     = errors.New("multiple must be a finite value >= 0")
	ErrInvalidShares       = errors.New("shares outstanding must be > 0")
	ErrInvalidPrice        = errors.New("current price must be > 0")
	ErrInvalidInput        = errors.New("invalid valuation input")
	ErrInvalidDiscountRate = errors.New("discount rate must exceed terminal growth")
	ErrInvalidWeights      = errors.New("weights must be >= 0 and sum to 1")
	ErrNoIRR               = errors.New("cash flows have no internal rate of return")
	ErrUnknownScenario     = errors.New("unknown scenario")
	ErrUnknownSegment      = errors.New("unknown segment")
)
