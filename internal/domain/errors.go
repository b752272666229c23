package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrMissingFields    = errors.New("missing required fields")
	ErrInvalidItemCount = errors.New("invalid item count")
	ErrUnknownKind      = errors.New("unknown job kind")
	ErrNoJobAvailable   = errors.New("no job available")
	ErrDuplicateJob     = errors.New("duplicate job id")
)
