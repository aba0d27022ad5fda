package models

import "errors"

var (
	// ErrDataUnavailable is returned by price sources on any transport or parse failure.
	ErrDataUnavailable = errors.New("price data unavailable")
	// ErrNotFound is returned when an update targets an unknown signal id.
	ErrNotFound = errors.New("signal not found")
	// ErrNoActiveSignal is returned when execute/cancel finds nothing active for the symbol.
	ErrNoActiveSignal = errors.New("no active signal to execute")
	// ErrInvariantViolation means the repository's active index disagrees with its records.
	ErrInvariantViolation = errors.New("active signal invariant violated")
	// ErrSignalClosed is returned when a terminal signal would be modified.
	ErrSignalClosed = errors.New("signal already closed")
	// ErrStaleSnapshot is returned when a snapshot is older than the stored latest one.
	ErrStaleSnapshot = errors.New("indicator snapshot older than latest")

	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrInvalidSnapshot  = errors.New("invalid indicator snapshot")
	ErrInvalidSettings  = errors.New("invalid settings")
)
