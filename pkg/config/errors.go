package config

import "errors"

var (
	ErrRouterNotFound     = errors.New("router not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrJumpLoop           = errors.New("jump host chain is too deep or loops")
	ErrSealedNoKey        = errors.New("password is encrypted but no key is loaded")
	ErrEmptyProfile       = errors.New("profile has no commands")
)
