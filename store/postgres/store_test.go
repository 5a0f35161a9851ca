package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// Integration tests require a live server:
//
//	MAILSTORE_POSTGRES_DSN=postgres://localhost/mailstore_test?sslmode=disable go test ./store/postgres
func newConnected(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MAILSTORE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MAILSTORE_POSTGRES_DSN not set")
	}

	s := New(WithDSN(dsn))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStore_NotConnected(t *testing.T) {
	s := New(WithDSN("postgres://localhost/none"))
	if _, err := s.GetCounters(context.Background(), "m", 0); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("op before Connect = %v, want ErrNotConnected", err)
	}
}

func TestAccountAndLabels(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)
	const mailbox = "pg-test-account@example.com"
	t.Cleanup(func() { _ = s.DeleteAccount(ctx, mailbox) })

	_ = s.DeleteAccount(ctx, mailbox)
	if err := s.CreateAccount(ctx, mailbox); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := s.CreateAccount(ctx, mailbox); !errors.Is(err, store.ErrAccountExists) {
		t.Errorf("duplicate CreateAccount = %v, want ErrAccountExists", err)
	}
	exists, err := s.AccountExists(ctx, mailbox)
	if err != nil || !exists {
		t.Fatalf("AccountExists = %v, %v", exists, err)
	}

	if err := s.PutLabel(ctx, mailbox, 1, "Inbox"); err != nil {
		t.Fatalf("PutLabel: %v", err)
	}
	if err := s.PutLabel(ctx, mailbox, 1, "Primary"); err != nil {
		t.Fatalf("PutLabel rename: %v", err)
	}
	labels, err := s.Labels(ctx, mailbox)
	if err != nil || labels[1] != "Primary" {
		t.Errorf("Labels = %v, %v", labels, err)
	}
	_ = s.DeleteLabel(ctx, mailbox, 1)
}

func TestRowsIndexCounters(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)
	const mailbox = "pg-test-rows@example.com"
	g := msgid.NewGenerator()

	ids := make([]msgid.ID, 5)
	for i := range ids {
		ids[i] = g.Next()
	}
	t.Cleanup(func() {
		_ = s.DeleteMessages(ctx, mailbox, ids)
		_ = s.DropIndex(ctx, mailbox, 1)
		_ = s.DeleteCounters(ctx, mailbox, 1)
	})

	for i, id := range ids {
		row := &store.MessageRow{Subject: "msg", Size: int64(100 + i), Labels: []int{1}}
		if err := s.PutMessage(ctx, mailbox, id, row); err != nil {
			t.Fatalf("PutMessage: %v", err)
		}
	}
	if err := s.AddIndex(ctx, mailbox, 1, ids); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if err := s.AddIndex(ctx, mailbox, 1, ids[:2]); err != nil {
		t.Fatalf("AddIndex repeat: %v", err)
	}

	newest, err := s.ScanIndex(ctx, mailbox, 1, msgid.ID{}, 10, true)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(newest) != 5 || newest[0] != ids[4] || newest[4] != ids[0] {
		t.Errorf("ScanIndex = %v", newest)
	}

	next, err := s.ScanIndex(ctx, mailbox, 1, ids[2], 10, true)
	if err != nil {
		t.Fatalf("ScanIndex cursor: %v", err)
	}
	if len(next) != 2 || next[0] != ids[1] {
		t.Errorf("cursor scan = %v", next)
	}

	got, err := s.GetMessage(ctx, mailbox, ids[0])
	if err != nil || got.Size != 100 {
		t.Errorf("GetMessage = %+v, %v", got, err)
	}

	delta := store.LabelCounters{Bytes: 510, Messages: 5, Unread: 5}
	if err := s.IncrementCounters(ctx, mailbox, 1, delta); err != nil {
		t.Fatalf("IncrementCounters: %v", err)
	}
	if err := s.IncrementCounters(ctx, mailbox, 1, delta.Inverse()); err != nil {
		t.Fatalf("IncrementCounters inverse: %v", err)
	}
	c, err := s.GetCounters(ctx, mailbox, 1)
	if err != nil || !c.IsZero() {
		t.Errorf("counters after retraction = %+v, %v", c, err)
	}
}
