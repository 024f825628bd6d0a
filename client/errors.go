package client

import "errors"

var (
	ErrNotInitialized      = errors.New("queue manager is not initialized")
	ErrAlreadyInitialized  = errors.New("queue manager is already initialized")
	ErrQueueExists         = errors.New("queue already exists")
	ErrQueueNotFound       = errors.New("queue not found")
	ErrInvalidThreadNumber = errors.New("thread number must be positive")
	ErrInvalidTransition   = errors.New("invalid task state transition")
)
