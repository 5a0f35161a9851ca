package mailstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// CreateMailbox provisions a mailbox: the account marker row plus the
// reserved label definitions. Counters need no seeding; absent counter
// rows read as zero.
func (s *service) CreateMailbox(ctx context.Context, mailboxID string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if !isValidMailboxID(mailboxID) {
		return fmt.Errorf("%w: %q", ErrInvalidMailbox, mailboxID)
	}

	if err := s.store.CreateAccount(ctx, mailboxID); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return fmt.Errorf("%w: %s", ErrMailboxExists, mailboxID)
		}
		return fmt.Errorf("create account: %w", err)
	}

	for _, l := range store.ReservedLabels() {
		if err := s.store.PutLabel(ctx, mailboxID, l.ID, l.Name); err != nil {
			return fmt.Errorf("seed label %q: %w", l.Name, err)
		}
	}

	s.logger.Info("created mailbox", "mailbox", mailboxID)
	return nil
}

// DeleteMailbox removes a mailbox and everything it owns. The cascade is
// idempotent: every step tolerates already-deleted state, so a run that
// failed halfway can simply be repeated. The account marker goes last, so
// a mailbox only stops existing once its data is actually gone.
func (s *service) DeleteMailbox(ctx context.Context, mailboxID string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if !isValidMailboxID(mailboxID) {
		return fmt.Errorf("%w: %q", ErrInvalidMailbox, mailboxID)
	}

	if err := s.maintSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire maintenance slot: %w", err)
	}
	defer s.maintSem.Release(1)

	// Walk the rows, collecting ids and the labels that have any state.
	var ids []msgid.ID
	labelSet := make(map[int]bool)
	mb := &mailbox{id: mailboxID, service: s, validID: true}

	err := s.store.ListMessages(ctx, mailboxID, func(id msgid.ID, row *store.MessageRow) error {
		ids = append(ids, id)
		for _, l := range row.Labels {
			labelSet[l] = true
		}
		mb.deleteBlob(ctx, id, row.Location)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk rows: %w", err)
	}

	// Rows in throttled batches, like any bulk mutation.
	if len(ids) > 0 {
		const batch = 100
		for lo := 0; lo < len(ids); lo += batch {
			hi := min(lo+batch, len(ids))
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := s.store.DeleteMessages(ctx, mailboxID, ids[lo:hi]); err != nil {
				return fmt.Errorf("delete rows: %w", err)
			}
		}
	}

	// Indexes, counters, and definitions for every label we saw plus
	// every label still defined.
	labels, err := s.store.Labels(ctx, mailboxID)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	for l := range labels {
		labelSet[l] = true
	}
	for l := range labelSet {
		if err := s.store.DropIndex(ctx, mailboxID, l); err != nil {
			return fmt.Errorf("drop index %d: %w", l, err)
		}
		if err := s.store.DeleteCounters(ctx, mailboxID, l); err != nil {
			return fmt.Errorf("delete counters %d: %w", l, err)
		}
		if err := s.store.DeleteLabel(ctx, mailboxID, l); err != nil {
			return fmt.Errorf("delete label %d: %w", l, err)
		}
	}

	if err := s.store.DeleteAccount(ctx, mailboxID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	s.logger.Info("deleted mailbox", "mailbox", mailboxID, "messages", len(ids), "labels", len(labelSet))
	return nil
}
