package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

func newConnected(t *testing.T) *Store {
	t.Helper()
	srv := miniredis.RunT(t)
	s := New(WithAddr(srv.Addr()))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConnect_Lifecycle(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	s := New(WithAddr(srv.Addr()))

	if _, err := s.GetCounters(ctx, "m", 0); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("op before Connect = %v, want ErrNotConnected", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	s := New(WithAddr("127.0.0.1:1"))
	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("Connect to unreachable server should fail")
	}
	// A failed connect must leave the store re-connectable.
	if err := s.Connect(context.Background()); errors.Is(err, store.ErrAlreadyConnected) {
		t.Error("failed Connect left the store marked connected")
	}
}

func TestAccount_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	exists, err := s.AccountExists(ctx, "user@example.com")
	if err != nil || exists {
		t.Fatalf("AccountExists before create = %v, %v", exists, err)
	}

	if err := s.CreateAccount(ctx, "user@example.com"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := s.CreateAccount(ctx, "user@example.com"); !errors.Is(err, store.ErrAccountExists) {
		t.Errorf("duplicate CreateAccount = %v, want ErrAccountExists", err)
	}
	if err := s.CreateAccount(ctx, ""); !errors.Is(err, store.ErrInvalidMailbox) {
		t.Errorf("empty mailbox = %v, want ErrInvalidMailbox", err)
	}

	if err := s.DeleteAccount(ctx, "user@example.com"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if err := s.DeleteAccount(ctx, "user@example.com"); err != nil {
		t.Errorf("repeated DeleteAccount: %v", err)
	}
	exists, _ = s.AccountExists(ctx, "user@example.com")
	if exists {
		t.Error("account still exists after delete")
	}
}

func TestLabels(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if err := s.PutLabel(ctx, "m", 1, "Inbox"); err != nil {
		t.Fatalf("PutLabel: %v", err)
	}
	if err := s.PutLabel(ctx, "m", 4711, "Receipts"); err != nil {
		t.Fatalf("PutLabel: %v", err)
	}

	labels, err := s.Labels(ctx, "m")
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 2 || labels[1] != "Inbox" || labels[4711] != "Receipts" {
		t.Errorf("Labels = %v", labels)
	}

	if err := s.DeleteLabel(ctx, "m", 1); err != nil {
		t.Fatalf("DeleteLabel: %v", err)
	}
	labels, _ = s.Labels(ctx, "m")
	if len(labels) != 1 {
		t.Errorf("Labels after delete = %v", labels)
	}
}

func TestMessageRows_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)
	g := msgid.NewGenerator()

	id := g.Next()
	row := &store.MessageRow{
		From:    []store.Address{{Name: "Sender", Address: "sender@example.com"}},
		Subject: "hello",
		Size:    42,
		Labels:  []int{1, 4711},
		Markers: store.MarkerSet(0).With(store.MarkerSeen),
	}
	if err := s.PutMessage(ctx, "m", id, row); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}

	got, err := s.GetMessage(ctx, "m", id)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Subject != "hello" || got.Size != 42 || len(got.Labels) != 2 {
		t.Errorf("GetMessage = %+v", got)
	}
	if !got.Markers.Has(store.MarkerSeen) {
		t.Error("markers lost in round trip")
	}
	if got.From[0].Address != "sender@example.com" {
		t.Errorf("From = %+v", got.From)
	}

	if _, err := s.GetMessage(ctx, "m", g.Next()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetMessage(absent) = %v, want ErrNotFound", err)
	}

	if err := s.DeleteMessages(ctx, "m", []msgid.ID{id}); err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}
	if _, err := s.GetMessage(ctx, "m", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetMessage after delete = %v, want ErrNotFound", err)
	}
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)
	g := msgid.NewGenerator()

	want := make(map[msgid.ID]bool)
	for i := 0; i < 20; i++ {
		id := g.Next()
		want[id] = true
		if err := s.PutMessage(ctx, "m", id, &store.MessageRow{Size: int64(i)}); err != nil {
			t.Fatalf("PutMessage: %v", err)
		}
	}

	got := make(map[msgid.ID]bool)
	err := s.ListMessages(ctx, "m", func(id msgid.ID, row *store.MessageRow) error {
		got[id] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != len(want) {
		t.Errorf("visited %d rows, want %d", len(got), len(want))
	}
	for id := range want {
		if !got[id] {
			t.Errorf("missing row %s", id)
		}
	}

	// Callback errors stop iteration.
	boom := errors.New("boom")
	err = s.ListMessages(ctx, "m", func(msgid.ID, *store.MessageRow) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("ListMessages = %v, want boom", err)
	}
}

func TestIndex_ScanOrderAndCursor(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)
	g := msgid.NewGenerator()

	ids := make([]msgid.ID, 10)
	for i := range ids {
		ids[i] = g.Next()
	}
	if err := s.AddIndex(ctx, "m", 1, []msgid.ID{ids[5], ids[1], ids[9], ids[0]}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if err := s.AddIndex(ctx, "m", 1, []msgid.ID{ids[3], ids[7], ids[2], ids[4], ids[6], ids[8]}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if err := s.AddIndex(ctx, "m", 1, ids[:3]); err != nil {
		t.Fatalf("AddIndex repeat: %v", err)
	}

	newest, err := s.ScanIndex(ctx, "m", 1, msgid.ID{}, 4, true)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(newest) != 4 {
		t.Fatalf("ScanIndex returned %d ids", len(newest))
	}
	for i, want := range []msgid.ID{ids[9], ids[8], ids[7], ids[6]} {
		if newest[i] != want {
			t.Errorf("newest[%d] = %s, want %s", i, newest[i], want)
		}
	}

	next, err := s.ScanIndex(ctx, "m", 1, newest[3], 4, true)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(next) == 0 || next[0] != ids[5] {
		t.Errorf("cursor scan = %v, want to start at %s", next, ids[5])
	}

	oldest, err := s.ScanIndex(ctx, "m", 1, msgid.ID{}, 3, false)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	for i, want := range []msgid.ID{ids[0], ids[1], ids[2]} {
		if oldest[i] != want {
			t.Errorf("oldest[%d] = %s, want %s", i, oldest[i], want)
		}
	}

	if err := s.RemoveIndex(ctx, "m", 1, []msgid.ID{ids[9], g.Next()}); err != nil {
		t.Fatalf("RemoveIndex: %v", err)
	}
	top, _ := s.ScanIndex(ctx, "m", 1, msgid.ID{}, 1, true)
	if len(top) != 1 || top[0] != ids[8] {
		t.Errorf("after remove, top = %v", top)
	}

	if err := s.DropIndex(ctx, "m", 1); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	rest, _ := s.ScanIndex(ctx, "m", 1, msgid.ID{}, 10, true)
	if len(rest) != 0 {
		t.Errorf("index not empty after drop: %v", rest)
	}
}

func TestIndexedLabels(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)
	g := msgid.NewGenerator()

	got, err := s.IndexedLabels(ctx, "m")
	if err != nil {
		t.Fatalf("IndexedLabels: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("IndexedLabels on empty mailbox = %v", got)
	}

	// Index entries and counter rows both count as state, with or
	// without a label definition behind them.
	if err := s.AddIndex(ctx, "m", 4711, []msgid.ID{g.Next()}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if err := s.IncrementCounters(ctx, "m", 2, store.LabelCounters{Unread: 1}); err != nil {
		t.Fatalf("IncrementCounters: %v", err)
	}
	// A second mailbox must not leak into the result.
	if err := s.AddIndex(ctx, "other", 9, []msgid.ID{g.Next()}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}

	got, err = s.IndexedLabels(ctx, "m")
	if err != nil {
		t.Fatalf("IndexedLabels: %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 4711 {
		t.Errorf("IndexedLabels = %v, want [2 4711]", got)
	}

	if err := s.DropIndex(ctx, "m", 4711); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if err := s.DeleteCounters(ctx, "m", 2); err != nil {
		t.Fatalf("DeleteCounters: %v", err)
	}
	got, _ = s.IndexedLabels(ctx, "m")
	if len(got) != 0 {
		t.Errorf("IndexedLabels after cleanup = %v", got)
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	got, err := s.GetCounters(ctx, "m", 1)
	if err != nil {
		t.Fatalf("GetCounters: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("absent counters = %+v, want zero", got)
	}

	d1 := store.LabelCounters{Bytes: 100, Messages: 1, Unread: 1}
	d2 := store.LabelCounters{Bytes: 250, Messages: 1}
	for i := 0; i < 10; i++ {
		if err := s.IncrementCounters(ctx, "m", 1, d1); err != nil {
			t.Fatalf("IncrementCounters: %v", err)
		}
		if err := s.IncrementCounters(ctx, "m", 1, d2); err != nil {
			t.Fatalf("IncrementCounters: %v", err)
		}
	}

	got, _ = s.GetCounters(ctx, "m", 1)
	want := store.LabelCounters{Bytes: 3500, Messages: 20, Unread: 10}
	if got != want {
		t.Errorf("counters = %+v, want %+v", got, want)
	}

	// The inverse retracts exactly.
	for i := 0; i < 10; i++ {
		_ = s.IncrementCounters(ctx, "m", 1, d1.Inverse())
		_ = s.IncrementCounters(ctx, "m", 1, d2.Inverse())
	}
	got, _ = s.GetCounters(ctx, "m", 1)
	if !got.IsZero() {
		t.Errorf("counters after retraction = %+v, want zero", got)
	}

	if err := s.DeleteCounters(ctx, "m", 1); err != nil {
		t.Fatalf("DeleteCounters: %v", err)
	}
}
