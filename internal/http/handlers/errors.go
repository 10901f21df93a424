package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, so
// values never change once published.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"

	ErrCodeValidation        = "validation_failed"
	ErrCodeDuplicateResponse = "duplicate_response"
	ErrCodeRequestNotPending = "request_not_pending"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeEmailTaken        = "email_taken"
	ErrCodeCreateFailed      = "create_failed"
	ErrCodeListFailed        = "list_failed"
)
