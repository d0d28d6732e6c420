package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrNotFound       = errors.New("requested resource not found")
	ErrForbidden      = errors.New("user is not a participant of this chat")
	ErrInvalidMessage = errors.New("message is missing chat, sender or content")
	ErrInvalidChat    = errors.New("invalid chat definition")
	ErrUploadFailed   = errors.New("file upload failed")
)
