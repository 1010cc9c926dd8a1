package domain

import "errors"

// Kinds. Every error returned by a service wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTransient    = errors.New("temporarily unavailable")
)

var (
	ErrInvalidPollID    = kindError{ErrValidation, "invalid poll id"}
	ErrInvalidOption    = kindError{ErrValidation, "invalid option for this poll"}
	ErrInvalidStatus    = kindError{ErrValidation, "invalid poll status"}
	ErrEmptyTitle       = kindError{ErrValidation, "title is required"}
	ErrNotEnoughOptions = kindError{ErrValidation, "at least two non-empty options are required"}
	ErrDuplicateOption  = kindError{ErrValidation, "options must be distinct"}

	ErrPollNotFound = kindError{ErrNotFound, "poll not found"}
	ErrVoteNotFound = kindError{ErrNotFound, "user did not vote on this poll"}

	ErrNotPollOwner = kindError{ErrForbidden, "only the poll owner can do this"}

	ErrAlreadyVoted = kindError{ErrConflict, "user has already voted"}
	ErrPollClosed   = kindError{ErrConflict, "poll is closed"}
)

type kindError struct {
	kind error
	msg  string
}

func (e kindError) Error() string { return e.msg }

func (e kindError) Unwrap() error { return e.kind }

// KindOf reports which kind err belongs to, or nil for unclassified errors.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrConflict, ErrUnauthorized, ErrTransient} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
