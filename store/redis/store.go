// Package redis provides a Redis-backed Store implementation.
//
// Layout per mailbox:
//
//	{prefix}acct:{mailbox}          account marker (string)
//	{prefix}labels:{mailbox}        label id -> name (hash)
//	{prefix}rows:{mailbox}          message id hex -> row JSON (hash)
//	{prefix}idx:{mailbox}:{label}   ordered message id index (zset, score 0)
//	{prefix}cnt:{mailbox}:{label}   counter columns (hash, HINCRBY)
//
// Index members are fixed-width hex message ids, so the zset's
// lexicographic member order equals id value order and range scans need
// no scores.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// Store implements store.Store on a Redis server or cluster proxy.
type Store struct {
	client    *redis.Client
	prefix    string
	connected int32
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a Redis store. The connection is established by Connect.
func New(opts ...Option) *Store {
	o := &options{
		addr:   "localhost:6379",
		prefix: "ms:",
	}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     o.addr,
			Username: o.username,
			Password: o.password,
			DB:       o.db,
		})
	}

	return &Store{client: client, prefix: o.prefix}
}

// Connect verifies the server is reachable.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return s.client.Close()
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

func (s *Store) acctKey(mailbox string) string {
	return s.prefix + "acct:" + mailbox
}

func (s *Store) labelsKey(mailbox string) string {
	return s.prefix + "labels:" + mailbox
}

func (s *Store) rowsKey(mailbox string) string {
	return s.prefix + "rows:" + mailbox
}

func (s *Store) idxKey(mailbox string, labelID int) string {
	return s.prefix + "idx:" + mailbox + ":" + strconv.Itoa(labelID)
}

func (s *Store) cntKey(mailbox string, labelID int) string {
	return s.prefix + "cnt:" + mailbox + ":" + strconv.Itoa(labelID)
}

// =============================================================================
// Account Operations
// =============================================================================

// CreateAccount creates the account marker row via SETNX.
func (s *Store) CreateAccount(ctx context.Context, mailbox string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if mailbox == "" {
		return store.ErrInvalidMailbox
	}

	ok, err := s.client.SetNX(ctx, s.acctKey(mailbox), "1", 0).Result()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if !ok {
		return store.ErrAccountExists
	}
	return nil
}

// DeleteAccount removes the account marker row.
func (s *Store) DeleteAccount(ctx context.Context, mailbox string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.acctKey(mailbox)).Err(); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// AccountExists reports whether the account marker row exists.
func (s *Store) AccountExists(ctx context.Context, mailbox string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	n, err := s.client.Exists(ctx, s.acctKey(mailbox)).Result()
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// Label Operations
// =============================================================================

// PutLabel upserts a label id/name pair.
func (s *Store) PutLabel(ctx context.Context, mailbox string, id int, name string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if err := s.client.HSet(ctx, s.labelsKey(mailbox), strconv.Itoa(id), name).Err(); err != nil {
		return fmt.Errorf("put label: %w", err)
	}
	return nil
}

// DeleteLabel removes a label definition.
func (s *Store) DeleteLabel(ctx context.Context, mailbox string, id int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if err := s.client.HDel(ctx, s.labelsKey(mailbox), strconv.Itoa(id)).Err(); err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}

// Labels returns all label definitions for the mailbox.
func (s *Store) Labels(ctx context.Context, mailbox string) (map[int]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	fields, err := s.client.HGetAll(ctx, s.labelsKey(mailbox)).Result()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	out := make(map[int]string, len(fields))
	for field, name := range fields {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("corrupt label id %q: %w", field, err)
		}
		out[id] = name
	}
	return out, nil
}

// =============================================================================
// Message Row Operations
// =============================================================================

// PutMessage upserts the metadata row as a JSON hash field.
func (s *Store) PutMessage(ctx context.Context, mailbox string, id msgid.ID, row *store.MessageRow) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	if err := s.client.HSet(ctx, s.rowsKey(mailbox), id.String(), data).Err(); err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

// GetMessage retrieves a metadata row.
func (s *Store) GetMessage(ctx context.Context, mailbox string, id msgid.ID) (*store.MessageRow, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	data, err := s.client.HGet(ctx, s.rowsKey(mailbox), id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = id.String()
	}
	if err := s.client.HDel(ctx, s.rowsKey(mailbox), fields...).Err(); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// ListMessages iterates the mailbox's row hash with HSCAN.
func (s *Store) ListMessages(ctx context.Context, mailbox string, fn func(id msgid.ID, row *store.MessageRow) error) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	iter := s.client.HScan(ctx, s.rowsKey(mailbox), 0, "", 256).Iterator()
	for iter.Next(ctx) {
		field := iter.Val()
		if !iter.Next(ctx) {
			return fmt.Errorf("hscan: dangling field %q", field)
		}
		value := iter.Val()

		id, err := msgid.Parse(field)
		if err != nil {
			return fmt.Errorf("corrupt row id %q: %w", field, err)
		}
		var row store.MessageRow
		if err := json.Unmarshal([]byte(value), &row); err != nil {
			return fmt.Errorf("unmarshal row %s: %w", id, err)
		}
		if err := fn(id, &row); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	return nil
}

// =============================================================================
// Label Index Operations
// =============================================================================

// AddIndex inserts ids as zero-score zset members. ZADD of a present
// member is a no-op, giving the required idempotency.
func (s *Store) AddIndex(ctx context.Context, mailbox string, labelID int, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	members := make([]redis.Z, len(ids))
	for i, id := range ids {
		members[i] = redis.Z{Score: 0, Member: id.String()}
	}
	if err := s.client.ZAdd(ctx, s.idxKey(mailbox, labelID), members...).Err(); err != nil {
		return fmt.Errorf("add index: %w", err)
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

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id.String()
	}
	if err := s.client.ZRem(ctx, s.idxKey(mailbox, labelID), members...).Err(); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}
	return nil
}

// ScanIndex pages through the zset by member lex range. Fixed-width hex
// ids make lex order equal id order.
func (s *Store) ScanIndex(ctx context.Context, mailbox string, labelID int, start msgid.ID, count int, reverse bool) ([]msgid.ID, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	rangeBy := &redis.ZRangeBy{Min: "-", Max: "+", Count: int64(count)}
	var cmd *redis.StringSliceCmd
	if reverse {
		if !start.IsZero() {
			rangeBy.Max = "(" + start.String() // exclusive upper bound
		}
		cmd = s.client.ZRevRangeByLex(ctx, s.idxKey(mailbox, labelID), rangeBy)
	} else {
		if !start.IsZero() {
			rangeBy.Min = "(" + start.String() // exclusive lower bound
		}
		cmd = s.client.ZRangeByLex(ctx, s.idxKey(mailbox, labelID), rangeBy)
	}

	members, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}

	out := make([]msgid.ID, 0, len(members))
	for _, m := range members {
		id, err := msgid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt index member %q: %w", m, err)
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

	if err := s.client.Del(ctx, s.idxKey(mailbox, labelID)).Err(); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// IndexedLabels finds label ids with surviving index or counter keys by
// scanning both key namespaces for the mailbox.
func (s *Store) IndexedLabels(ctx context.Context, mailbox string) ([]int, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var out []int
	for _, base := range []string{
		s.prefix + "idx:" + mailbox + ":",
		s.prefix + "cnt:" + mailbox + ":",
	} {
		iter := s.client.Scan(ctx, 0, base+"*", 256).Iterator()
		for iter.Next(ctx) {
			id, err := strconv.Atoi(strings.TrimPrefix(iter.Val(), base))
			if err != nil {
				return nil, fmt.Errorf("corrupt label key %q: %w", iter.Val(), err)
			}
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("scan label keys: %w", err)
		}
	}
	sort.Ints(out)
	return out, nil
}

// =============================================================================
// Counter Operations
// =============================================================================

// Counter hash fields.
const (
	fieldBytes    = "bytes"
	fieldMessages = "messages"
	fieldUnread   = "unread"
)

// IncrementCounters applies the delta with HINCRBY per column. Redis
// serializes the increments, so concurrent deltas commute without a
// read-modify-write cycle.
func (s *Store) IncrementCounters(ctx context.Context, mailbox string, labelID int, delta store.LabelCounters) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}

	key := s.cntKey(mailbox, labelID)
	pipe := s.client.Pipeline()
	if delta.Bytes != 0 {
		pipe.HIncrBy(ctx, key, fieldBytes, delta.Bytes)
	}
	if delta.Messages != 0 {
		pipe.HIncrBy(ctx, key, fieldMessages, delta.Messages)
	}
	if delta.Unread != 0 {
		pipe.HIncrBy(ctx, key, fieldUnread, delta.Unread)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}
	return nil
}

// GetCounters reads the counter hash. Absent rows and fields read as zero.
func (s *Store) GetCounters(ctx context.Context, mailbox string, labelID int) (store.LabelCounters, error) {
	if err := s.checkConnected(); err != nil {
		return store.LabelCounters{}, err
	}

	fields, err := s.client.HGetAll(ctx, s.cntKey(mailbox, labelID)).Result()
	if err != nil {
		return store.LabelCounters{}, fmt.Errorf("get counters: %w", err)
	}

	var c store.LabelCounters
	for field, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return store.LabelCounters{}, fmt.Errorf("corrupt counter %s=%q: %w", field, raw, err)
		}
		switch field {
		case fieldBytes:
			c.Bytes = v
		case fieldMessages:
			c.Messages = v
		case fieldUnread:
			c.Unread = v
		}
	}
	return c, nil
}

// DeleteCounters removes the counter row.
func (s *Store) DeleteCounters(ctx context.Context, mailbox string, labelID int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.cntKey(mailbox, labelID)).Err(); err != nil {
		return fmt.Errorf("delete counters: %w", err)
	}
	return nil
}
