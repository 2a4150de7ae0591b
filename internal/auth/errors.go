package auth

import "errors"

var (
	ErrNotFound       = errors.New("auth: not found")
	ErrConflict       = errors.New("auth: resource conflict")
	ErrInvalidInput   = errors.New("auth: invalid input")
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrUnknownRole    = errors.New("auth: unknown role")
	ErrRoleAlreadySet = errors.New("auth: session role already set")
)
