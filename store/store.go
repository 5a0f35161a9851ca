// Package store defines the wide-column metadata store abstraction for
// mailstore. Implementations are in store/memory, store/redis, and
// store/postgres subpackages.
//
// # Architectural Principle: No Cross-Row Transactions
//
// The backing stores are eventually consistent; nothing in this package
// assumes a transaction spanning a message row, its label index entries,
// and its counter rows. Consistency is achieved structurally instead:
//
//  1. Commutative Counters: counter columns support independent numeric
//     increment (redis HINCRBY, postgres upsert-add). Deltas commute, so
//     concurrent writers need no ordering and a delta can be retracted
//     exactly by applying its inverse.
//
//  2. Value-Ordered Indexes: a label index entry's position is a function
//     of the message id's value, not of insertion time. Concurrent inserts
//     land in the same order on every replica.
//
//  3. Idempotent Mutations: re-adding an index entry or re-removing an
//     absent one is a no-op, so a retried or repaired operation converges
//     instead of corrupting state.
//
// A crash between the row write and the index or counter update leaves a
// reconcilable inconsistency, never a corrupted read. Index scans may
// return ids whose rows have since vanished; callers skip them and scrub
// repairs the index authoritatively.
package store

import (
	"context"

	"github.com/elasticmail/mailstore/msgid"
)

// Store is the composite storage interface for mailbox metadata.
// One concrete implementation is selected at process startup.
//
// All operations must be safe for concurrent use without external locking.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	AccountStore
	LabelStore
	MessageRowStore
	LabelIndexStore
	CounterStore
}

// AccountStore manages per-mailbox account marker rows.
type AccountStore interface {
	// CreateAccount creates the account marker row.
	// Returns ErrAccountExists if the mailbox already exists.
	CreateAccount(ctx context.Context, mailbox string) error

	// DeleteAccount removes the account marker row.
	// Deleting an absent account is a no-op so cascading deletes can retry.
	DeleteAccount(ctx context.Context, mailbox string) error

	// AccountExists reports whether the mailbox has been created.
	AccountExists(ctx context.Context, mailbox string) (bool, error)
}

// LabelStore manages the per-mailbox label id to name map.
type LabelStore interface {
	// PutLabel upserts a label id/name pair for the mailbox.
	PutLabel(ctx context.Context, mailbox string, id int, name string) error

	// DeleteLabel removes a label definition. Removing an absent label
	// is a no-op.
	DeleteLabel(ctx context.Context, mailbox string, id int) error

	// Labels returns all label definitions for the mailbox, keyed by id.
	Labels(ctx context.Context, mailbox string) (map[int]string, error)
}

// MessageRowStore provides row-per-message metadata operations.
type MessageRowStore interface {
	// PutMessage upserts the metadata row for a message.
	// A prior row with the same id is overwritten (last write wins).
	PutMessage(ctx context.Context, mailbox string, id msgid.ID, row *MessageRow) error

	// GetMessage retrieves a metadata row.
	// Returns ErrNotFound if no row exists.
	GetMessage(ctx context.Context, mailbox string, id msgid.ID) (*MessageRow, error)

	// DeleteMessages removes metadata rows. Absent ids are skipped.
	DeleteMessages(ctx context.Context, mailbox string, ids []msgid.ID) error

	// ListMessages iterates every metadata row of the mailbox in
	// unspecified order, calling fn for each. Iteration stops on the
	// first error from fn. Used by scrub, purge, and account deletion.
	ListMessages(ctx context.Context, mailbox string, fn func(id msgid.ID, row *MessageRow) error) error
}

// LabelIndexStore maintains the per-(mailbox,label) ordered message id index.
//
// Index entries are pointers, not proof of row existence: an id present in
// the index may reference a row that was never written or already deleted.
// Mutation across multiple labels for one message is not atomic.
type LabelIndexStore interface {
	// AddIndex inserts the ids into the label's index. Inserting an id
	// that is already present is a no-op.
	AddIndex(ctx context.Context, mailbox string, labelID int, ids []msgid.ID) error

	// RemoveIndex deletes matching entries. Removing absent ids is a no-op.
	RemoveIndex(ctx context.Context, mailbox string, labelID int, ids []msgid.ID) error

	// ScanIndex returns up to count ids from the label's index, ordered
	// by id value. A zero start id begins at the newest (reverse=true)
	// or oldest (reverse=false) end; otherwise the scan starts strictly
	// after start in scan direction. reverse=true yields newest first.
	ScanIndex(ctx context.Context, mailbox string, labelID int, start msgid.ID, count int, reverse bool) ([]msgid.ID, error)

	// DropIndex removes the label's entire index. Dropping an absent
	// index is a no-op.
	DropIndex(ctx context.Context, mailbox string, labelID int) error

	// IndexedLabels returns the label ids that currently hold index
	// entries or counter rows, whether or not the label is still defined.
	// Scrub uses it to find orphaned state left by interrupted deletes.
	IndexedLabels(ctx context.Context, mailbox string) ([]int, error)
}

// CounterStore maintains per-(mailbox,label) aggregate counters.
//
// Increment must be a commutative column-level add, never a locked
// read-modify-write, so concurrent deltas apply safely in any order.
type CounterStore interface {
	// IncrementCounters adds delta's three fields independently into the
	// stored counter row, creating it if absent.
	IncrementCounters(ctx context.Context, mailbox string, labelID int, delta LabelCounters) error

	// GetCounters returns the stored counters for the label.
	// An absent counter row reads as zero.
	GetCounters(ctx context.Context, mailbox string, labelID int) (LabelCounters, error)

	// DeleteCounters removes the counter row. Used by account deletion
	// and index rebuild.
	DeleteCounters(ctx context.Context, mailbox string, labelID int) error
}
