package domain

import "errors"

// ErrForbidden is returned when the actor's role lacks the capability for an action.
var ErrForbidden = errors.New("forbidden")
