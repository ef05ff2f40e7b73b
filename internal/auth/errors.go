package auth

import "errors"

// 呼び出し側は errors.Is で分岐します。
var (
	ErrValidation         = errors.New("username and password are required")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrHashing            = errors.New("password hashing failed")
)
