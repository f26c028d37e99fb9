package domain

import "errors"

// Domain-level invariant violations, returned by Normalize/Validate helpers.
var (
	ErrSameToken            = errors.New("domain: sellToken and buyToken must differ")
	ErrMinExceedsBuy        = errors.New("domain: minBuyAmount exceeds buyAmount")
	ErrConfidenceOutOfRange = errors.New("domain: route confidence must be within [0.1, 1.0]")
)
