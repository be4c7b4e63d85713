package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrFeed                = errors.New("market data feed connection error")
	ErrDataFetch           = errors.New("market data fetch failed")

	// Evaluation
	ErrInsufficientHistory = errors.New("not enough bars for indicator calculation")
	ErrCooldown            = errors.New("signal within instrument cooldown")

	// Persistence Errors
	ErrPersistence    = errors.New("state persistence failed")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrDuplicateEntry = errors.New("database record already exists")

	// Notification Errors
	ErrNotification = errors.New("alert delivery failed")
)
