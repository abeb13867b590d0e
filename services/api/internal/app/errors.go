package app

import "errors"

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike so
	// callers cannot tell which accounts exist.
	ErrInvalidCredentials = errors.New("Invalid email or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrInvalidEmail             = errors.New("invalid email address")
	ErrDuplicateIdentity        = errors.New("User already exists")
	ErrInvalidRole              = errors.New("invalid role")

	ErrCurrentPasswordRequired = errors.New("current password required")
	ErrCurrentPasswordMismatch = errors.New("Current password is incorrect")

	ErrForbiddenSelfChange = errors.New("cannot change own role")
	ErrCannotDeleteSelf    = errors.New("cannot delete own account")

	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")

	ErrPipelineUnavailable = errors.New("upload pipeline not configured")
)
