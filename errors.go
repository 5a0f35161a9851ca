package mailstore

import (
	"errors"
	"fmt"

	"github.com/elasticmail/mailstore/store"
)

// Sentinel errors for the mailstore package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, mailstore.ErrNotFound) will match both service-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("mailstore: %w", store.ErrNotFound)

	// ErrStoreRequired is returned when no metadata store is configured.
	ErrStoreRequired = errors.New("mailstore: store is required")

	// ErrBlobStoreRequired is returned when no blob profile is configured.
	ErrBlobStoreRequired = errors.New("mailstore: blob store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("mailstore: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("mailstore: %w", store.ErrAlreadyConnected)

	// ErrInvalidMailbox is returned when a mailbox id is empty or contains
	// unsafe characters. Wraps store.ErrInvalidMailbox.
	ErrInvalidMailbox = fmt.Errorf("mailstore: %w", store.ErrInvalidMailbox)

	// ErrMailboxExists is returned when creating a mailbox that already exists.
	// Wraps store.ErrAccountExists for consistent error checking.
	ErrMailboxExists = fmt.Errorf("mailstore: %w", store.ErrAccountExists)

	// ErrMailboxNotFound is returned when operating on a mailbox that was
	// never created. Wraps store.ErrAccountNotFound.
	ErrMailboxNotFound = fmt.Errorf("mailstore: %w", store.ErrAccountNotFound)

	// ErrOverQuota is returned when a write would push the mailbox past its
	// byte quota. Use errors.As with *QuotaError for details.
	ErrOverQuota = errors.New("mailstore: over quota")

	// ErrIllegalLabel is returned for label name validation failures.
	// Use errors.As with *LabelError for details.
	ErrIllegalLabel = errors.New("mailstore: illegal label name")

	// ErrExistingLabel is returned when creating a label whose name is
	// already taken.
	ErrExistingLabel = errors.New("mailstore: label already exists")

	// ErrUnknownLabel is returned when a label id does not exist.
	ErrUnknownLabel = errors.New("mailstore: unknown label")

	// ErrReservedLabel is returned when renaming or deleting a reserved label.
	ErrReservedLabel = errors.New("mailstore: reserved label")

	// ErrNoRawSource is returned by GetRaw when the message row carries no
	// blob location.
	ErrNoRawSource = errors.New("mailstore: message has no raw source")

	// ErrNilRow is returned when Put is called without a metadata row.
	ErrNilRow = errors.New("mailstore: nil message row")

	// ErrParse classifies message decode failures. Parsing happens outside
	// this package; parsers should wrap ErrParse so delivery layers can
	// distinguish permanent rejections from transient storage failures.
	ErrParse = errors.New("mailstore: message parse failed")
)

// QuotaError provides details about a quota rejection.
type QuotaError struct {
	// Mailbox is the mailbox that hit its quota.
	Mailbox string
	// Resource is the exhausted quota dimension, "bytes" or "messages".
	Resource string
	// Used is the usage before the rejected write.
	Used int64
	// Incoming is the amount the rejected write would have added.
	Incoming int64
	// Limit is the configured quota.
	Limit int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("mailstore: mailbox %s over %s quota: %d used + %d incoming > %d limit",
		e.Mailbox, e.Resource, e.Used, e.Incoming, e.Limit)
}

func (e *QuotaError) Unwrap() error {
	return ErrOverQuota
}

// LabelError provides details about a label name rejection.
type LabelError struct {
	// Name is the rejected label name.
	Name string
	// Reason is a human-readable explanation.
	Reason string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("mailstore: illegal label name %q: %s", e.Name, e.Reason)
}

func (e *LabelError) Unwrap() error {
	return ErrIllegalLabel
}
