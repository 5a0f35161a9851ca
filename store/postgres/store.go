// Package postgres provides a PostgreSQL-backed Store implementation
// using sqlx and lib/pq.
//
// Counters are maintained with upsert-add statements so concurrent
// deltas commute without row locks held across round trips; index and
// account inserts use ON CONFLICT DO NOTHING for idempotency. Message
// ids are stored as fixed-width hex text, so text order equals id value
// order and index scans are plain ORDER BY.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db        *sqlx.DB
	dsn       string
	migrate   bool
	connected int32
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a PostgreSQL store. The connection is established by Connect.
func New(opts ...Option) *Store {
	o := &options{migrate: true}
	for _, opt := range opts {
		opt(o)
	}
	return &Store{db: o.db, dsn: o.dsn, migrate: o.migrate}
}

// Connect opens the database and verifies reachability.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		db, err := sqlx.ConnectContext(ctx, "postgres", s.dsn)
		if err != nil {
			atomic.StoreInt32(&s.connected, 0)
			return fmt.Errorf("connect postgres: %w", err)
		}
		s.db = db
	} else if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ping postgres: %w", err)
	}

	if s.migrate {
		if err := EnsureSchema(ctx, s.db); err != nil {
			atomic.StoreInt32(&s.connected, 0)
			return err
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// =============================================================================
// Account Operations
// =============================================================================

// CreateAccount inserts the account marker row.
func (s *Store) CreateAccount(ctx context.Context, mailbox string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if mailbox == "" {
		return store.ErrInvalidMailbox
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (mailbox) VALUES ($1) ON CONFLICT (mailbox) DO NOTHING`,
		mailbox)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if n == 0 {
		return store.ErrAccountExists
	}
	return nil
}

// DeleteAccount removes the account marker row.
func (s *Store) DeleteAccount(ctx context.Context, mailbox string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE mailbox = $1`, mailbox); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// AccountExists reports whether the account marker row exists.
func (s *Store) AccountExists(ctx context.Context, mailbox string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE mailbox = $1)`, mailbox)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return exists, nil
}

// =============================================================================
// Label Operations
// =============================================================================

// PutLabel upserts a label id/name pair.
func (s *Store) PutLabel(ctx context.Context, mailbox string, id int, name string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labels (mailbox, label_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (mailbox, label_id) DO UPDATE SET name = EXCLUDED.name`,
		mailbox, id, name)
	if err != nil {
		return fmt.Errorf("put label: %w", err)
	}
	return nil
}

// DeleteLabel removes a label definition.
func (s *Store) DeleteLabel(ctx context.Context, mailbox string, id int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM labels WHERE mailbox = $1 AND label_id = $2`, mailbox, id); err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}

// Labels returns all label definitions for the mailbox.
func (s *Store) Labels(ctx context.Context, mailbox string) (map[int]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	var rows []struct {
		LabelID int    `db:"label_id"`
		Name    string `db:"name"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT label_id, name FROM labels WHERE mailbox = $1`, mailbox)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	out := make(map[int]string, len(rows))
	for _, r := range rows {
		out[r.LabelID] = r.Name
	}
	return out, nil
}

// =============================================================================
// Message Row Operations
// =============================================================================

// PutMessage upserts the metadata row as JSONB.
func (s *Store) PutMessage(ctx context.Context, mailbox string, id msgid.ID, row *store.MessageRow) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (mailbox, id, row) VALUES ($1, $2, $3)
		 ON CONFLICT (mailbox, id) DO UPDATE SET row = EXCLUDED.row`,
		mailbox, id.String(), data)
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

// GetMessage retrieves a metadata row.
func (s *Store) GetMessage(ctx context.Context, mailbox string, id msgid.ID) (*store.MessageRow, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.GetContext(ctx, &data,
		`SELECT row FROM messages WHERE mailbox = $1 AND id = $2`,
		mailbox, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	var row store.MessageRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshal row %s: %w", id, err)
	}
	return &row, nil
}

// DeleteMessages removes metadata rows. Absent ids are skipped.
func (s *Store) DeleteMessages(ctx context.Context, mailbox string, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	hexIDs := make([]string, len(ids))
	for i, id := range ids {
		hexIDs[i] = id.String()
	}

	query, args, err := sqlx.In(
		`DELETE FROM messages WHERE mailbox = ? AND id IN (?)`, mailbox, hexIDs)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// ListMessages iterates every metadata row of the mailbox.
func (s *Store) ListMessages(ctx context.Context, mailbox string, fn func(id msgid.ID, row *store.MessageRow) error) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, row FROM messages WHERE mailbox = $1`, mailbox)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hexID string
		var data []byte
		if err := rows.Scan(&hexID, &data); err != nil {
			return fmt.Errorf("scan message row: %w", err)
		}

		id, err := msgid.Parse(hexID)
		if err != nil {
			return fmt.Errorf("corrupt row id %q: %w", hexID, err)
		}
		var row store.MessageRow
		if err := json.Unmarshal(data, &row); err != nil {
			return fmt.Errorf("unmarshal row %s: %w", id, err)
		}
		if err := fn(id, &row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// =============================================================================
// Label Index Operations
// =============================================================================

// AddIndex inserts index entries idempotently.
func (s *Store) AddIndex(ctx context.Context, mailbox string, labelID int, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO label_index (mailbox, label_id, id) VALUES ($1, $2, $3)
			 ON CONFLICT (mailbox, label_id, id) DO NOTHING`,
			mailbox, labelID, id.String())
		if err != nil {
			return fmt.Errorf("add index: %w", err)
		}
	}
	return nil
}

// RemoveIndex deletes matching entries. Removing absent ids is a no-op.
func (s *Store) RemoveIndex(ctx context.Context, mailbox string, labelID int, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	hexIDs := make([]string, len(ids))
	for i, id := range ids {
		hexIDs[i] = id.String()
	}

	query, args, err := sqlx.In(
		`DELETE FROM label_index WHERE mailbox = ? AND label_id = ? AND id IN (?)`,
		mailbox, labelID, hexIDs)
	if err != nil {
		return fmt.Errorf("remove index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}
	return nil
}

// ScanIndex pages through the index by hex id order.
func (s *Store) ScanIndex(ctx context.Context, mailbox string, labelID int, start msgid.ID, count int, reverse bool) ([]msgid.ID, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	var (
		query string
		args  []interface{}
	)
	switch {
	case reverse && start.IsZero():
		query = `SELECT id FROM label_index WHERE mailbox = $1 AND label_id = $2
			 ORDER BY id DESC LIMIT $3`
		args = []interface{}{mailbox, labelID, count}
	case reverse:
		query = `SELECT id FROM label_index WHERE mailbox = $1 AND label_id = $2 AND id < $3
			 ORDER BY id DESC LIMIT $4`
		args = []interface{}{mailbox, labelID, start.String(), count}
	case start.IsZero():
		query = `SELECT id FROM label_index WHERE mailbox = $1 AND label_id = $2
			 ORDER BY id ASC LIMIT $3`
		args = []interface{}{mailbox, labelID, count}
	default:
		query = `SELECT id FROM label_index WHERE mailbox = $1 AND label_id = $2 AND id > $3
			 ORDER BY id ASC LIMIT $4`
		args = []interface{}{mailbox, labelID, start.String(), count}
	}

	var hexIDs []string
	if err := s.db.SelectContext(ctx, &hexIDs, query, args...); err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}

	out := make([]msgid.ID, 0, len(hexIDs))
	for _, h := range hexIDs {
		id, err := msgid.Parse(h)
		if err != nil {
			return nil, fmt.Errorf("corrupt index entry %q: %w", h, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// DropIndex removes the label's entire index.
func (s *Store) DropIndex(ctx context.Context, mailbox string, labelID int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM label_index WHERE mailbox = $1 AND label_id = $2`,
		mailbox, labelID); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// IndexedLabels returns label ids with surviving index or counter rows.
func (s *Store) IndexedLabels(ctx context.Context, mailbox string) ([]int, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	var ids []int
	err := s.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT label_id FROM label_index WHERE mailbox = $1
		 UNION
		 SELECT label_id FROM label_counters WHERE mailbox = $1
		 ORDER BY label_id`, mailbox)
	if err != nil {
		return nil, fmt.Errorf("list indexed labels: %w", err)
	}
	return ids, nil
}

// =============================================================================
// Counter Operations
// =============================================================================

// IncrementCounters applies the delta with an upsert-add. The database
// serializes the column additions, so concurrent deltas commute.
func (s *Store) IncrementCounters(ctx context.Context, mailbox string, labelID int, delta store.LabelCounters) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO label_counters (mailbox, label_id, bytes, messages, unread)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (mailbox, label_id) DO UPDATE SET
			bytes = label_counters.bytes + EXCLUDED.bytes,
			messages = label_counters.messages + EXCLUDED.messages,
			unread = label_counters.unread + EXCLUDED.unread`,
		mailbox, labelID, delta.Bytes, delta.Messages, delta.Unread)
	if err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}
	return nil
}

// GetCounters reads the counter row. An absent row reads as zero.
func (s *Store) GetCounters(ctx context.Context, mailbox string, labelID int) (store.LabelCounters, error) {
	if err := s.checkConnected(); err != nil {
		return store.LabelCounters{}, err
	}

	var c store.LabelCounters
	err := s.db.GetContext(ctx, &c,
		`SELECT bytes, messages, unread FROM label_counters
		 WHERE mailbox = $1 AND label_id = $2`, mailbox, labelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.LabelCounters{}, nil
		}
		return store.LabelCounters{}, fmt.Errorf("get counters: %w", err)
	}
	return c, nil
}

// DeleteCounters removes the counter row.
func (s *Store) DeleteCounters(ctx context.Context, mailbox string, labelID int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM label_counters WHERE mailbox = $1 AND label_id = $2`,
		mailbox, labelID); err != nil {
		return fmt.Errorf("delete counters: %w", err)
	}
	return nil
}
