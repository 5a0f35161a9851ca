package mailstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/elasticmail/mailstore/blob"
	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the mailstore package without importing
// store directly.
type (
	MessageRow    = store.MessageRow
	LabelCounters = store.LabelCounters
	Marker        = store.Marker
	MarkerSet     = store.MarkerSet
)

// Re-exported marker constants.
const (
	MarkerSeen    = store.MarkerSeen
	MarkerReplied = store.MarkerReplied
	MarkerDeleted = store.MarkerDeleted
)

// Entry is one message returned by a label index scan.
type Entry struct {
	ID  msgid.ID
	Row *store.MessageRow
}

// MessageWriter provides message ingestion.
type MessageWriter interface {
	// Put stores a new message: raw source to the blob layer, metadata to
	// the row store, index entries and counter deltas for each label.
	// The assigned message id is time-ordered on row.Date.
	// Returns ErrOverQuota if the write would exceed the mailbox quota.
	Put(ctx context.Context, row *store.MessageRow, raw []byte) (msgid.ID, error)
}

// MessageReader provides single message retrieval.
type MessageReader interface {
	// Get retrieves the metadata row of a message.
	Get(ctx context.Context, id msgid.ID) (*store.MessageRow, error)
	// GetRaw retrieves and decodes the raw message source.
	GetRaw(ctx context.Context, id msgid.ID) ([]byte, error)
}

// MessageScanner provides label index scans and counter reads.
type MessageScanner interface {
	// Scan returns up to count messages of the label, newest first when
	// reverse is true. A zero start id begins at the corresponding end of
	// the index; otherwise the scan resumes strictly after start. Index
	// entries whose rows no longer exist are skipped, so a page may be
	// shorter than count even when older entries remain.
	Scan(ctx context.Context, labelID int, start msgid.ID, count int, reverse bool) ([]Entry, error)
	// Counters returns the label's aggregate counters.
	Counters(ctx context.Context, labelID int) (store.LabelCounters, error)
}

// MessageMutator provides batch mutation by message ids.
type MessageMutator interface {
	// Modify applies label and marker changes to the messages, adjusting
	// indexes and counters to match. Ids without a row are skipped.
	Modify(ctx context.Context, ids []msgid.ID, mod Modification) error
	// Delete permanently removes the messages: blobs, rows, index entries,
	// and counter contributions. Ids without a row are skipped.
	Delete(ctx context.Context, ids []msgid.ID) error
}

// LabelManager provides user label administration.
type LabelManager interface {
	// Labels returns all label definitions, keyed by id.
	Labels(ctx context.Context) (map[int]string, error)
	// AddLabel creates a user label and returns its assigned id.
	AddLabel(ctx context.Context, name string) (int, error)
	// RenameLabel changes a user label's name. Reserved labels cannot be
	// renamed.
	RenameLabel(ctx context.Context, id int, name string) error
	// DeleteLabel removes a user label: the definition, its index, its
	// counters, and the label from every message carrying it.
	DeleteLabel(ctx context.Context, id int) error
}

// Maintainer provides background maintenance operations. Callers schedule
// these with their own cron or worker; the library never runs them
// automatically.
type Maintainer interface {
	// Purge permanently removes messages that have carried the deleted
	// marker longer than the configured purge age.
	Purge(ctx context.Context) (*PurgeResult, error)
	// Scrub rebuilds every label index and counter row from the metadata
	// rows, the authoritative source. Run it to repair drift left by
	// crashes between row and index writes.
	Scrub(ctx context.Context) (*ScrubResult, error)
}

// Mailbox provides storage operations scoped to one mailbox.
//
// Composed of focused interfaces:
//   - MessageWriter: Ingestion (Put)
//   - MessageReader: Retrieval (Get, GetRaw)
//   - MessageScanner: Index scans and counters (Scan, Counters)
//   - MessageMutator: Batch mutation (Modify, Delete)
//   - LabelManager: Label administration (Labels, AddLabel, RenameLabel, DeleteLabel)
//   - Maintainer: Background repair (Purge, Scrub)
type Mailbox interface {
	ID() string
	MessageWriter
	MessageReader
	MessageScanner
	MessageMutator
	LabelManager
	Maintainer
}

// mailbox is the default Mailbox implementation, a thin handle over the
// service's shared connections.
type mailbox struct {
	id      string
	service *service
	validID bool
}

// ID returns the mailbox id.
func (m *mailbox) ID() string {
	return m.id
}

// checkAccess verifies the service is connected and the mailbox id valid.
func (m *mailbox) checkAccess() error {
	if err := m.service.checkConnected(); err != nil {
		return err
	}
	if !m.validID {
		return fmt.Errorf("%w: %q", ErrInvalidMailbox, m.id)
	}
	return nil
}

// attrs returns the base span attributes for this mailbox.
func (m *mailbox) attrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("mailbox.id", m.id),
	}
}

// Put stores a new message.
//
// Write order is blob, row, index entries, counters. A crash mid-sequence
// leaves at worst an unreferenced blob or an index gap that Scrub
// repairs; it never leaves an index entry pointing at decodable garbage.
func (m *mailbox) Put(ctx context.Context, row *store.MessageRow, raw []byte) (msgid.ID, error) {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Put", m.attrs()...)

	id, err := m.put(ctx, row, raw)

	endSpan(err)
	m.service.otel.recordPut(ctx, time.Since(start), int64(len(raw)), err)
	return id, err
}

func (m *mailbox) put(ctx context.Context, row *store.MessageRow, raw []byte) (msgid.ID, error) {
	if err := m.checkAccess(); err != nil {
		return msgid.ID{}, err
	}
	if row == nil {
		return msgid.ID{}, ErrNilRow
	}

	row = row.Clone()
	if row.Date.IsZero() {
		row.Date = time.Now().UTC()
	}
	if row.Size == 0 {
		row.Size = int64(len(raw))
	}
	row.AddLabel(store.LabelAll)
	row.ModifiedAt = time.Now().UTC()

	// Writes require a provisioned mailbox; counters and indexes written
	// under an unprovisioned id would never be cleaned up by a cascade.
	ok, err := m.service.store.AccountExists(ctx, m.id)
	if err != nil {
		return msgid.ID{}, fmt.Errorf("check mailbox: %w", err)
	}
	if !ok {
		return msgid.ID{}, fmt.Errorf("%w: %s", ErrMailboxNotFound, m.id)
	}

	if err := m.checkQuota(ctx, row.Size); err != nil {
		return msgid.ID{}, err
	}

	id := m.service.gen.NextAt(row.Date)

	if len(raw) > 0 {
		loc, err := m.storeBlob(ctx, id, raw)
		if err != nil {
			return msgid.ID{}, err
		}
		row.Location = loc.String()
	}

	if err := m.service.store.PutMessage(ctx, m.id, id, row); err != nil {
		return msgid.ID{}, fmt.Errorf("put message row: %w", err)
	}

	delta := row.Counters()
	for _, labelID := range row.Labels {
		if err := m.service.store.AddIndex(ctx, m.id, labelID, []msgid.ID{id}); err != nil {
			return id, fmt.Errorf("index label %d: %w", labelID, err)
		}
		if err := m.service.store.IncrementCounters(ctx, m.id, labelID, delta); err != nil {
			return id, fmt.Errorf("count label %d: %w", labelID, err)
		}
	}

	m.service.logger.Debug("stored message",
		"mailbox", m.id, "id", id, "size", row.Size, "labels", len(row.Labels))
	return id, nil
}

// checkQuota rejects the write if current usage plus the incoming message
// would exceed the byte or message quota. The usage read is the All-label
// counter row; the check races concurrent writers, so a mailbox can
// overshoot by at most the in-flight writes.
func (m *mailbox) checkQuota(ctx context.Context, incoming int64) error {
	quota := m.service.opts.quota
	messageQuota := m.service.opts.messageQuota
	if quota <= 0 && messageQuota <= 0 {
		return nil
	}

	used, err := m.service.store.GetCounters(ctx, m.id, store.LabelAll)
	if err != nil {
		return fmt.Errorf("read quota usage: %w", err)
	}
	if quota > 0 && used.Bytes+incoming > quota {
		return &QuotaError{
			Mailbox: m.id, Resource: "bytes",
			Used: used.Bytes, Incoming: incoming, Limit: quota,
		}
	}
	if messageQuota > 0 && used.Messages+1 > messageQuota {
		return &QuotaError{
			Mailbox: m.id, Resource: "messages",
			Used: used.Messages, Incoming: 1, Limit: messageQuota,
		}
	}
	return nil
}

// storeBlob encodes and uploads the raw source, returning its location.
func (m *mailbox) storeBlob(ctx context.Context, id msgid.ID, raw []byte) (blob.Location, error) {
	opts := m.service.opts
	name := opts.namer.Name(m.id, id)

	encoded, err := opts.codec.Encode(name, raw)
	if err != nil {
		return blob.Location{}, fmt.Errorf("encode blob: %w", err)
	}

	bs, err := m.service.blobs.Resolve(opts.defaultProfile)
	if err != nil {
		return blob.Location{}, err
	}
	if err := bs.Put(ctx, name, bytes.NewReader(encoded)); err != nil {
		return blob.Location{}, fmt.Errorf("store blob: %w", err)
	}

	loc := blob.Location{Profile: opts.defaultProfile, Name: name}
	opts.codec.Tag(&loc)
	return loc, nil
}

// Get retrieves the metadata row of a message.
func (m *mailbox) Get(ctx context.Context, id msgid.ID) (*store.MessageRow, error) {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Get", m.attrs()...)

	row, err := m.get(ctx, id)

	endSpan(err)
	m.service.otel.recordGet(ctx, time.Since(start), false, err)
	return row, err
}

func (m *mailbox) get(ctx context.Context, id msgid.ID) (*store.MessageRow, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	row, err := m.service.store.GetMessage(ctx, m.id, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get message row: %w", err)
	}
	return row, nil
}

// GetRaw retrieves and decodes the raw message source. The blob is read
// from the profile recorded in the row's location and decoded per the
// location's transform tags, so blobs written under older codec or
// profile configurations stay readable.
func (m *mailbox) GetRaw(ctx context.Context, id msgid.ID) ([]byte, error) {
	start := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.GetRaw", m.attrs()...)

	raw, err := m.getRaw(ctx, id)

	endSpan(err)
	m.service.otel.recordGet(ctx, time.Since(start), true, err)
	return raw, err
}

func (m *mailbox) getRaw(ctx context.Context, id msgid.ID) ([]byte, error) {
	row, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Location == "" {
		return nil, fmt.Errorf("%w: message %s", ErrNoRawSource, id)
	}

	loc, err := blob.ParseLocation(row.Location)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(loc.Attributes()...)

	bs, err := m.service.blobs.Resolve(loc.Profile)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}

	r, err := bs.Get(ctx, loc.Name)
	if err != nil {
		return nil, fmt.Errorf("load blob for %s: %w", id, err)
	}
	defer r.Close()

	encoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob for %s: %w", id, err)
	}

	raw, err := m.service.opts.codec.Decode(loc, encoded)
	if err != nil {
		return nil, fmt.Errorf("decode blob for %s: %w", id, err)
	}
	return raw, nil
}

// deleteBlob removes a message's blob, if it has one. Blob deletion is
// best-effort: a missing profile or store failure is logged and the
// metadata delete proceeds, leaving an orphaned blob rather than an
// undeletable message.
func (m *mailbox) deleteBlob(ctx context.Context, id msgid.ID, location string) {
	if location == "" {
		return
	}

	loc, err := blob.ParseLocation(location)
	if err != nil {
		m.service.logger.Warn("skipping blob delete: bad location",
			"mailbox", m.id, "id", id, "error", err)
		return
	}
	bs, err := m.service.blobs.Resolve(loc.Profile)
	if err != nil {
		m.service.logger.Warn("skipping blob delete: unknown profile",
			"mailbox", m.id, "id", id, "profile", loc.Profile)
		return
	}
	if err := bs.Delete(ctx, loc.Name); err != nil {
		m.service.logger.Warn("blob delete failed",
			"mailbox", m.id, "id", id, "error", err)
	}
}

// Scan returns a page of messages from a label index.
func (m *mailbox) Scan(ctx context.Context, labelID int, start msgid.ID, count int, reverse bool) ([]Entry, error) {
	startTime := time.Now()
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailstore.Scan",
		append(m.attrs(), attribute.Int("label.id", labelID))...)

	entries, err := m.scan(ctx, labelID, start, count, reverse)

	endSpan(err)
	m.service.otel.recordScan(ctx, time.Since(startTime), labelID, len(entries), err)
	return entries, err
}

func (m *mailbox) scan(ctx context.Context, labelID int, start msgid.ID, count int, reverse bool) ([]Entry, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	if count <= 0 {
		count = m.service.opts.defaultScanLimit
	}
	if count > m.service.opts.maxScanLimit {
		count = m.service.opts.maxScanLimit
	}

	ids, err := m.service.store.ScanIndex(ctx, m.id, labelID, start, count, reverse)
	if err != nil {
		return nil, fmt.Errorf("scan label %d: %w", labelID, err)
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		row, err := m.service.store.GetMessage(ctx, m.id, id)
		if err != nil {
			// Stale index entry: the row is gone but the pointer remains.
			// Skip it; Scrub removes it for good.
			if errors.Is(err, store.ErrNotFound) {
				m.service.logger.Debug("skipping stale index entry",
					"mailbox", m.id, "label", labelID, "id", id)
				continue
			}
			return nil, fmt.Errorf("load row %s: %w", id, err)
		}
		entries = append(entries, Entry{ID: id, Row: row})
	}
	return entries, nil
}

// Counters returns the label's aggregate counters.
func (m *mailbox) Counters(ctx context.Context, labelID int) (store.LabelCounters, error) {
	if err := m.checkAccess(); err != nil {
		return store.LabelCounters{}, err
	}

	c, err := m.service.store.GetCounters(ctx, m.id, labelID)
	if err != nil {
		return store.LabelCounters{}, fmt.Errorf("get counters for label %d: %w", labelID, err)
	}
	return c, nil
}
