package portfolio

import "folioagent/pkg/errors"

var (
	// ErrInvalidDateRange is returned for a range outside AllDateRanges
	ErrInvalidDateRange = errors.Wrap(errors.ErrInvalidInput, "invalid date range")
)
