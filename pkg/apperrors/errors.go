package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrNoRuleMatched     = errors.New("no identity rule matched")
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrRunAlreadyDone    = errors.New("scan run already in a terminal state")
	ErrEmptyKeyFields    = errors.New("identity rule has no key fields")
	ErrValidation        = errors.New("validation failed")
)
