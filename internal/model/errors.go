package model

import "errors"

var (
	ErrDuplicateIdentity = errors.New("username or email already registered")
	ErrAuthentication    = errors.New("invalid credentials")
	ErrNotFound          = errors.New("not found")
	ErrReference         = errors.New("dangling reference")
	ErrDuplicateMarking  = errors.New("attendance already marked for this day")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
)
