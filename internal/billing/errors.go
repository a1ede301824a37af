package billing

import "errors"

// Errors returned by the billing layer. Transport maps them to status codes
// without looking at Stripe SDK error types.
var (
	// ErrInvalidRequest means the caller omitted or malformed an input.
	ErrInvalidRequest = errors.New("invalid billing request")
	// ErrNotConfigured means Stripe keys or secrets are missing.
	ErrNotConfigured = errors.New("billing is not configured")
	// ErrBadSignature means a webhook payload failed signature verification.
	ErrBadSignature = errors.New("bad webhook signature")
	// ErrBadEvent means a verified event lacks the fields needed to act on it.
	ErrBadEvent = errors.New("bad event")
	// ErrGateway indicates a failure from Stripe API calls.
	ErrGateway = errors.New("gateway error")
	// ErrDatabase indicates an account store failure.
	ErrDatabase = errors.New("database error")
)
