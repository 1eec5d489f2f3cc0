package command

import (
	"errors"
)

var (
	ErrExecutableNotFound   = errors.New("executable not found")
	ErrSudoPasswordRequired = errors.New("passwordless sudo is required")
)
