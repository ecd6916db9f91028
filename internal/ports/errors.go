package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Order validation (InvalidInput)
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidLeverage = errors.New("leverage outside allowed range")
	ErrInvalidPrice    = errors.New("price must be finite and positive")
	ErrInvalidSide     = errors.New("side must be long or short")

	// Admission (CapacityExceeded)
	ErrCapacityExceeded = errors.New("open positions plus pending orders at admission limit")

	// Lookups
	ErrPositionNotFound = errors.New("position not found")
	ErrOrderNotFound    = errors.New("pending order not found")

	// Market data (FeedUnavailable)
	ErrFeedUnavailable  = errors.New("market data feed unavailable")
	ErrConnectionFailed = errors.New("failed to connect to the market data feed")
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrSymbolNotFound   = errors.New("symbol not found in catalog")

	// Persistence (PersistenceFailure / InconsistentState)
	ErrPersistenceFailure = errors.New("persistence write failed")
	ErrInconsistentState  = errors.New("persisted state is inconsistent")
)
