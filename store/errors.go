package store

import "errors"

// Sentinel errors shared by all store implementations.
// Use errors.Is() to check for these errors.
var (
	// ErrNotFound is returned when a message row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAccountExists is returned when creating a mailbox that already exists.
	ErrAccountExists = errors.New("store: account already exists")

	// ErrAccountNotFound is returned when a mailbox has not been created.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrInvalidMailbox is returned when a mailbox id is empty or malformed.
	ErrInvalidMailbox = errors.New("store: invalid mailbox")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")
)
