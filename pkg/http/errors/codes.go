package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound      = "not_found"
	ErrCodeGameNotFound  = "game_not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeConflict      = "conflict"

	// Gameplay errors
	ErrCodeSubmitFailed      = "submit_failed"
	ErrCodeTimerFailed       = "timer_failed"
	ErrCodeInvalidAttempt    = "invalid_attempt"
	ErrCodeAttemptSealed     = "attempt_sealed"
	ErrCodeRegistrationFailed = "registration_failed"
	ErrCodeFinalizeFailed    = "finalize_failed"

	// Leaderboard errors
	ErrCodeLeaderboardFetchFailed = "leaderboard_fetch_failed"
	ErrCodeResultsFetchFailed     = "results_fetch_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
