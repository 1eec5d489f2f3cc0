package user

import (
	"errors"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrIdRequired            = errors.New("id is required")
	ErrUsernameRequired      = errors.New("username is required")
	ErrPasswordRequired      = errors.New("password is required")
	ErrOneOptionRequired     = errors.New("one option is required")
	ErrOnlyOneOptionAllowed  = errors.New("only one option is allowed")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserIdAlreadyExists   = errors.New("user id already exists")
	ErrUsernameAlreadyInUse  = errors.New("username is already in use")
	ErrCreateOptionsRequired = errors.New("create options are required")
)
