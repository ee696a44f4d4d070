package contract

import "errors"

var (
	ErrModelInvoke       = errors.New("model invoke failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrPromptMissing     = errors.New("required prompt is missing")
	ErrValidation        = errors.New("validation failed")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrOracleRateLimited = errors.New("oracle rate limited")
	ErrCollaborator      = errors.New("collaborator call failed")
)
