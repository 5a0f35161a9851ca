package mailstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// Modification describes label and marker changes applied by Modify.
// Removals win over additions when both name the same label or marker.
type Modification struct {
	// AddLabels are label ids to add to each message.
	AddLabels []int
	// RemoveLabels are label ids to remove from each message. The All
	// label cannot be removed and is silently skipped.
	RemoveLabels []int
	// SetMarkers are markers to set on each message.
	SetMarkers store.MarkerSet
	// ClearMarkers are markers to clear from each message.
	ClearMarkers store.MarkerSet
}

// IsZero reports whether the modification changes nothing.
func (mod Modification) IsZero() bool {
	return len(mod.AddLabels) == 0 && len(mod.RemoveLabels) == 0 &&
		mod.SetMarkers == 0 && mod.ClearMarkers == 0
}

// Modify applies the modification to each message. Storage writes are
// paced through the service throttle, so large batches spread over time
// instead of saturating the backend.
//
// Each message is processed independently: a row is rewritten first, then
// its index entries and counter deltas. Absent ids are skipped so a
// retried batch converges.
func (m *mailbox) Modify(ctx context.Context, ids []msgid.ID, mod Modification) error {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Modify", m.attrs()...)

	err := m.modify(ctx, ids, mod)

	endSpan(err)
	m.service.otel.recordModify(ctx, time.Since(start), len(ids), err)
	return err
}

func (m *mailbox) modify(ctx context.Context, ids []msgid.ID, mod Modification) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if mod.IsZero() || len(ids) == 0 {
		return nil
	}

	return m.service.limiter.Each(ctx, len(ids), func(i int) error {
		err := m.modifyOne(ctx, ids[i], mod)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
}

// modifyOne rewrites one row and reconciles its indexes and counters.
func (m *mailbox) modifyOne(ctx context.Context, id msgid.ID, mod Modification) error {
	row, err := m.service.store.GetMessage(ctx, m.id, id)
	if err != nil {
		return err
	}

	oldDelta := row.Counters()
	oldLabels := make(map[int]bool, len(row.Labels))
	for _, l := range row.Labels {
		oldLabels[l] = true
	}

	for _, l := range mod.AddLabels {
		row.AddLabel(l)
	}
	for _, l := range mod.RemoveLabels {
		if l == store.LabelAll {
			continue // membership in All is unconditional
		}
		row.RemoveLabel(l)
	}
	row.Markers = (row.Markers | mod.SetMarkers) &^ mod.ClearMarkers
	row.ModifiedAt = time.Now().UTC()

	if err := m.service.store.PutMessage(ctx, m.id, id, row); err != nil {
		return fmt.Errorf("rewrite row %s: %w", id, err)
	}

	newDelta := row.Counters()
	newLabels := make(map[int]bool, len(row.Labels))
	for _, l := range row.Labels {
		newLabels[l] = true
	}

	// Labels gained: index entry plus the row's full contribution.
	for l := range newLabels {
		if oldLabels[l] {
			continue
		}
		if err := m.service.store.AddIndex(ctx, m.id, l, []msgid.ID{id}); err != nil {
			return fmt.Errorf("index label %d: %w", l, err)
		}
		if err := m.service.store.IncrementCounters(ctx, m.id, l, newDelta); err != nil {
			return fmt.Errorf("count label %d: %w", l, err)
		}
	}

	// Labels lost: retract the old contribution and the index entry.
	for l := range oldLabels {
		if newLabels[l] {
			continue
		}
		if err := m.service.store.RemoveIndex(ctx, m.id, l, []msgid.ID{id}); err != nil {
			return fmt.Errorf("unindex label %d: %w", l, err)
		}
		if err := m.service.store.IncrementCounters(ctx, m.id, l, oldDelta.Inverse()); err != nil {
			return fmt.Errorf("count label %d: %w", l, err)
		}
	}

	// Labels kept: apply only the contribution change, typically the
	// unread flip when the seen marker toggles.
	step := newDelta.Add(oldDelta.Inverse())
	if !step.IsZero() {
		for l := range newLabels {
			if !oldLabels[l] {
				continue
			}
			if err := m.service.store.IncrementCounters(ctx, m.id, l, step); err != nil {
				return fmt.Errorf("count label %d: %w", l, err)
			}
		}
	}

	return nil
}

// Delete permanently removes the messages. Storage writes are paced
// through the service throttle.
func (m *mailbox) Delete(ctx context.Context, ids []msgid.ID) error {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Delete", m.attrs()...)

	err := m.delete(ctx, ids)

	endSpan(err)
	m.service.otel.recordDelete(ctx, time.Since(start), len(ids), err)
	return err
}

func (m *mailbox) delete(ctx context.Context, ids []msgid.ID) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	return m.service.limiter.Each(ctx, len(ids), func(i int) error {
		err := m.deleteOne(ctx, ids[i])
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
}

// deleteOne removes one message end to end: blob, index entries, counter
// contributions, and finally the row. The row goes last so a crash
// mid-delete leaves a retryable message, not an unreachable blob.
func (m *mailbox) deleteOne(ctx context.Context, id msgid.ID) error {
	row, err := m.service.store.GetMessage(ctx, m.id, id)
	if err != nil {
		return err
	}

	m.deleteBlob(ctx, id, row.Location)

	delta := row.Counters().Inverse()
	for _, l := range row.Labels {
		if err := m.service.store.RemoveIndex(ctx, m.id, l, []msgid.ID{id}); err != nil {
			return fmt.Errorf("unindex label %d: %w", l, err)
		}
		if err := m.service.store.IncrementCounters(ctx, m.id, l, delta); err != nil {
			return fmt.Errorf("count label %d: %w", l, err)
		}
	}

	if err := m.service.store.DeleteMessages(ctx, m.id, []msgid.ID{id}); err != nil {
		return fmt.Errorf("delete row %s: %w", id, err)
	}

	m.service.logger.Debug("deleted message", "mailbox", m.id, "id", id)
	return nil
}
