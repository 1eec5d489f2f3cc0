package handler

import (
	"errors"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrRequestBodyRequired    = errors.New("request body is required")
	ErrInvalidRequestBody     = errors.New("request body is not valid json")
)
