package svc

import "errors"

var (
	ErrNoStoreEnabled   = errors.New("no persistence store enabled")
	ErrSignerKeyMissing = errors.New("VAULT_PRIVATE_KEY is not set")
)
