package mailstore

import (
	"context"
	"fmt"
	"time"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// rebuildBatch is how many index entries scrub re-inserts per throttled
// storage write.
const rebuildBatch = 100

// PurgeResult contains the result of a purge run.
type PurgeResult struct {
	// Scanned is the number of metadata rows examined.
	Scanned int
	// Purged is the number of messages permanently removed.
	Purged int
}

// ScrubResult contains the result of a scrub run.
type ScrubResult struct {
	// Messages is the number of metadata rows walked.
	Messages int
	// Labels is the number of label indexes rebuilt.
	Labels int
}

// Purge permanently removes messages that have carried the deleted marker
// longer than the configured purge age.
//
// Schedule this with your application's own cron or worker, for example:
//
//	ticker := time.NewTicker(time.Hour)
//	for range ticker.C {
//		if _, err := mb.Purge(ctx); err != nil {
//			log.Printf("purge: %v", err)
//		}
//	}
func (m *mailbox) Purge(ctx context.Context) (*PurgeResult, error) {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Purge", m.attrs()...)

	result, err := m.purge(ctx)

	endSpan(err)
	affected := 0
	if result != nil {
		affected = result.Purged
	}
	m.service.otel.recordMaintenance(ctx, time.Since(start), "purge", affected, err)
	return result, err
}

func (m *mailbox) purge(ctx context.Context) (*PurgeResult, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if err := m.service.maintSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire maintenance slot: %w", err)
	}
	defer m.service.maintSem.Release(1)

	cutoff := time.Now().UTC().Add(-m.service.opts.purgeAge)
	result := &PurgeResult{}

	// Collect first, then delete through the throttled batch path.
	var expired []msgid.ID
	err := m.service.store.ListMessages(ctx, m.id, func(id msgid.ID, row *store.MessageRow) error {
		result.Scanned++
		if row.Markers.Has(store.MarkerDeleted) && row.ModifiedAt.Before(cutoff) {
			expired = append(expired, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rows: %w", err)
	}

	if len(expired) > 0 {
		if err := m.delete(ctx, expired); err != nil {
			return nil, err
		}
		result.Purged = len(expired)
	}

	m.service.logger.Info("purge complete",
		"mailbox", m.id, "scanned", result.Scanned, "purged", result.Purged)
	return result, nil
}

// Scrub rebuilds every label index and counter row from the metadata
// rows. Rows are the authoritative record; indexes and counters are
// derived state, so a rebuild repairs any drift a crash left behind.
//
// Scans running concurrently with a scrub may see an index mid-rebuild.
// That is the same stale-tolerant contract scans always honor.
func (m *mailbox) Scrub(ctx context.Context) (*ScrubResult, error) {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Scrub", m.attrs()...)

	result, err := m.scrub(ctx)

	endSpan(err)
	affected := 0
	if result != nil {
		affected = result.Labels
	}
	m.service.otel.recordMaintenance(ctx, time.Since(start), "scrub", affected, err)
	return result, err
}

func (m *mailbox) scrub(ctx context.Context) (*ScrubResult, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if err := m.service.maintSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire maintenance slot: %w", err)
	}
	defer m.service.maintSem.Release(1)

	// Derive the authoritative per-label membership and counters.
	members := make(map[int][]msgid.ID)
	totals := make(map[int]store.LabelCounters)
	result := &ScrubResult{}

	err := m.service.store.ListMessages(ctx, m.id, func(id msgid.ID, row *store.MessageRow) error {
		result.Messages++
		delta := row.Counters()
		for _, l := range row.Labels {
			members[l] = append(members[l], id)
			totals[l] = totals[l].Add(delta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rows: %w", err)
	}

	// Rebuild every label that has members now, is defined, or still holds
	// index or counter state. The last set catches ghosts: a label whose
	// definition and rows are gone but whose index survived a crash.
	rebuild := make(map[int]bool, len(members))
	for l := range members {
		rebuild[l] = true
	}
	labels, err := m.service.store.Labels(ctx, m.id)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	for l := range labels {
		rebuild[l] = true
	}
	stateful, err := m.service.store.IndexedLabels(ctx, m.id)
	if err != nil {
		return nil, fmt.Errorf("list indexed labels: %w", err)
	}
	for _, l := range stateful {
		rebuild[l] = true
	}

	// Every rebuild write goes through the throttle: a full-mailbox scrub
	// is exactly the write spike the pacing exists to prevent.
	for l := range rebuild {
		if err := m.service.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := m.service.store.DropIndex(ctx, m.id, l); err != nil {
			return nil, fmt.Errorf("drop index %d: %w", l, err)
		}
		if err := m.service.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := m.service.store.DeleteCounters(ctx, m.id, l); err != nil {
			return nil, fmt.Errorf("delete counters %d: %w", l, err)
		}

		ids := members[l]
		for lo := 0; lo < len(ids); lo += rebuildBatch {
			hi := min(lo+rebuildBatch, len(ids))
			if err := m.service.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			if err := m.service.store.AddIndex(ctx, m.id, l, ids[lo:hi]); err != nil {
				return nil, fmt.Errorf("rebuild index %d: %w", l, err)
			}
		}
		if len(ids) > 0 {
			if err := m.service.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			if err := m.service.store.IncrementCounters(ctx, m.id, l, totals[l]); err != nil {
				return nil, fmt.Errorf("rebuild counters %d: %w", l, err)
			}
		}
		result.Labels++
	}

	m.service.logger.Info("scrub complete",
		"mailbox", m.id, "messages", result.Messages, "labels", result.Labels)
	return result, nil
}
