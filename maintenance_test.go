package mailstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	blobmem "github.com/elasticmail/mailstore/blob/memory"
	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
	"github.com/elasticmail/mailstore/store/memory"
)

// countingStore records the size of every AddIndex batch so tests can
// verify how bulk rebuilds page their writes.
type countingStore struct {
	*memory.Store

	mu      sync.Mutex
	batches []int
}

func (c *countingStore) AddIndex(ctx context.Context, mailbox string, label int, ids []msgid.ID) error {
	c.mu.Lock()
	c.batches = append(c.batches, len(ids))
	c.mu.Unlock()
	return c.Store.AddIndex(ctx, mailbox, label, ids)
}

func (c *countingStore) reset() {
	c.mu.Lock()
	c.batches = nil
	c.mu.Unlock()
}

func (c *countingStore) recorded() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.batches...)
}

// A scrub of a large mailbox must page its index rebuild and pace every
// write through the shared limiter, like any other bulk mutation. An
// unthrottled rebuild would be exactly the write spike the limiter
// exists to prevent.
func TestScrub_RebuildIsPagedAndThrottled(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: memory.New()}

	svc, err := NewService(
		WithStore(cs),
		WithBlobStore(DefaultBlobProfile, blobmem.New()),
		WithWriteRate(200, time.Second),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(ctx) })
	if err := svc.CreateMailbox(ctx, testMailbox); err != nil {
		t.Fatalf("CreateMailbox: %v", err)
	}

	// More than two full pages per label. Rows only; storing raw source
	// is irrelevant to the rebuild.
	mb := svc.Mailbox(testMailbox)
	const n = 250
	for i := 0; i < n; i++ {
		row := &MessageRow{
			Subject: fmt.Sprintf("message %d", i),
			Size:    10,
			Labels:  []int{store.LabelInbox},
		}
		if _, err := mb.Put(ctx, row, nil); err != nil {
			t.Fatalf("Put message %d: %v", i, err)
		}
	}
	cs.reset()

	start := time.Now()
	res, err := mb.Scrub(ctx)
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	elapsed := time.Since(start)
	if res.Messages != n {
		t.Fatalf("scrub walked %d messages, want %d", res.Messages, n)
	}

	// All and Inbox both hold every message: three pages each, none
	// larger than a page.
	batches := cs.recorded()
	if len(batches) != 6 {
		t.Errorf("AddIndex called %d times, want 6: %v", len(batches), batches)
	}
	var total int
	for _, size := range batches {
		if size > 100 {
			t.Errorf("AddIndex batch of %d ids exceeds page size", size)
		}
		total += size
	}
	if total != 2*n {
		t.Errorf("rebuilt %d index entries, want %d", total, 2*n)
	}

	if testing.Short() {
		return
	}
	// Ten labels to drop plus the paged rebuild is roughly thirty paced
	// writes. At 200 ops/s that cannot finish much under 100ms.
	if elapsed < 100*time.Millisecond {
		t.Errorf("scrub finished in %v, want the limiter to pace it", elapsed)
	}
}

// Index and counter rows for a label that is no longer defined and has
// no member messages must still be found and dropped by a scrub.
func TestScrub_RemovesOrphanedLabelState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mb := env.svc.Mailbox(testMailbox)
	env.putN(t, 3, false)

	// Leave a deleted label's state behind, as an interrupted delete
	// cascade would: entries and counters but no definition, no rows.
	const ghost = 5000
	g := msgid.NewGenerator()
	if err := env.store.AddIndex(ctx, testMailbox, ghost, []msgid.ID{g.Next(), g.Next()}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if err := env.store.IncrementCounters(ctx, testMailbox, ghost,
		LabelCounters{Bytes: 100, Messages: 2}); err != nil {
		t.Fatalf("IncrementCounters: %v", err)
	}

	if _, err := mb.Scrub(ctx); err != nil {
		t.Fatalf("Scrub: %v", err)
	}

	ids, err := env.store.ScanIndex(ctx, testMailbox, ghost, msgid.ID{}, 10, true)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("orphaned index survived scrub: %v", ids)
	}
	c, err := env.store.GetCounters(ctx, testMailbox, ghost)
	if err != nil {
		t.Fatalf("GetCounters: %v", err)
	}
	if !c.IsZero() {
		t.Errorf("orphaned counters survived scrub: %+v", c)
	}

	labeled, err := env.store.IndexedLabels(ctx, testMailbox)
	if err != nil {
		t.Fatalf("IndexedLabels: %v", err)
	}
	for _, l := range labeled {
		if l == ghost {
			t.Errorf("label %d still holds state after scrub", ghost)
		}
	}
}
