package auth

import "errors"

var (
	ErrDuplicateEmail      = errors.New("email already in use")
	ErrInvalidCredentials  = errors.New("wrong credentials given")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidResetToken   = errors.New("invalid reset token")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidToken        = errors.New("invalid token")

	ErrDuplicateRefreshToken = errors.New("refresh token already exists for user")
)

// ErrNotFound is returned by stores when no row matches. The service
// translates it into one of the errors above.
var ErrNotFound = errors.New("not found")
