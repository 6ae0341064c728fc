package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrDeferred signals admission back-pressure: the opportunity must not
	// be acknowledged so the consumer group redelivers it.
	ErrDeferred       = errors.New("admission deferred")
	ErrNotInitialized = errors.New("not initialized")
	ErrUnknownVenue   = errors.New("unknown venue")
	ErrContextDone    = errors.New("context cancelled")
)
