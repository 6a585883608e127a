package sentinel

import "errors"

// Sentinel dependency errors. Stores and vendor clients should return these
// (optionally wrapped) so services can translate them into user-facing
// outcomes exactly once.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrExpired        = errors.New("expired")
	ErrAlreadyWritten = errors.New("result already written")
	ErrInvalidState   = errors.New("invalid state")
	ErrUnavailable    = errors.New("unavailable")
)
