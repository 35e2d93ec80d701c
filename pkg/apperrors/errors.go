package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownDialect    = errors.New("unknown or disabled dialect")
	ErrInvalidTransition = errors.New("invalid review transition")
	ErrGraphUnavailable  = errors.New("graph store unavailable")
	ErrNoProposals       = errors.New("model produced no valid proposals")
)
