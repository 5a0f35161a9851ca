package mailstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/elasticmail/mailstore/store"
)

func TestAddLabel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mb := env.svc.Mailbox(testMailbox)

	id, err := mb.AddLabel(ctx, "work/reports")
	if err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if id < store.ReservedLabelMax {
		t.Errorf("user label id %d inside reserved range", id)
	}

	labels, err := mb.Labels(ctx)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if labels[id] != "work/reports" {
		t.Errorf("labels[%d] = %q", id, labels[id])
	}

	// Duplicate names are rejected case-insensitively.
	if _, err := mb.AddLabel(ctx, "Work/Reports"); !errors.Is(err, ErrExistingLabel) {
		t.Errorf("duplicate AddLabel = %v, want ErrExistingLabel", err)
	}
}

func TestAddLabel_NameValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mb := env.svc.Mailbox(testMailbox)

	cases := []struct {
		desc string
		name string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("x", MaxLabelNameLength+1)},
		{"leading separator", "/work"},
		{"trailing separator", "work/"},
		{"empty segment", "work//reports"},
		{"leading whitespace", " work"},
		{"trailing whitespace", "work "},
		{"control character", "work\x01"},
		{"newline", "work\nreports"},
		{"reserved name", "Inbox"},
		{"reserved first segment", "inbox/sub"},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := mb.AddLabel(ctx, tc.name)
			if !errors.Is(err, ErrIllegalLabel) {
				t.Errorf("AddLabel(%q) = %v, want ErrIllegalLabel", tc.name, err)
			}
			var le *LabelError
			if !errors.As(err, &le) {
				t.Errorf("AddLabel(%q) error lacks LabelError detail", tc.name)
			}
		})
	}

	// The reserved name check applies to the first segment only.
	if _, err := mb.AddLabel(ctx, "work/inbox"); err != nil {
		t.Errorf("AddLabel(work/inbox) = %v, want nil", err)
	}
}

func TestRenameLabel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mb := env.svc.Mailbox(testMailbox)

	id, err := mb.AddLabel(ctx, "projects")
	if err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	other, err := mb.AddLabel(ctx, "archive-2025")
	if err != nil {
		t.Fatalf("AddLabel: %v", err)
	}

	if err := mb.RenameLabel(ctx, id, "projects-2026"); err != nil {
		t.Fatalf("RenameLabel: %v", err)
	}
	labels, _ := mb.Labels(ctx)
	if labels[id] != "projects-2026" {
		t.Errorf("labels[%d] = %q after rename", id, labels[id])
	}

	if err := mb.RenameLabel(ctx, store.LabelInbox, "not-inbox"); !errors.Is(err, ErrReservedLabel) {
		t.Errorf("rename reserved = %v, want ErrReservedLabel", err)
	}
	if err := mb.RenameLabel(ctx, 999999999, "ghost"); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("rename unknown = %v, want ErrUnknownLabel", err)
	}
	if err := mb.RenameLabel(ctx, other, "Projects-2026"); !errors.Is(err, ErrExistingLabel) {
		t.Errorf("rename onto taken name = %v, want ErrExistingLabel", err)
	}
	// Renaming a label to its own name is allowed.
	if err := mb.RenameLabel(ctx, id, "projects-2026"); err != nil {
		t.Errorf("rename to same name = %v", err)
	}
}

func TestDeleteLabel_StripsMessages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	mb := env.svc.Mailbox(testMailbox)
	ids := env.putN(t, 5, false)

	labelID, err := mb.AddLabel(ctx, "bulk")
	if err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if err := mb.Modify(ctx, ids[:3], Modification{AddLabels: []int{labelID}}); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	c, _ := mb.Counters(ctx, labelID)
	if c.Messages != 3 {
		t.Fatalf("label counters before delete = %+v", c)
	}

	if err := mb.DeleteLabel(ctx, labelID); err != nil {
		t.Fatalf("DeleteLabel: %v", err)
	}

	labels, _ := mb.Labels(ctx)
	if _, ok := labels[labelID]; ok {
		t.Error("label definition survived DeleteLabel")
	}
	c, _ = mb.Counters(ctx, labelID)
	if !c.IsZero() {
		t.Errorf("label counters after delete = %+v", c)
	}
	for _, id := range ids[:3] {
		row, err := mb.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if row.HasLabel(labelID) {
			t.Errorf("message %s still carries deleted label", id)
		}
	}
	// Other labels are untouched.
	c, _ = mb.Counters(ctx, store.LabelInbox)
	if c.Messages != 5 {
		t.Errorf("inbox counters after label delete = %+v", c)
	}

	if err := mb.DeleteLabel(ctx, store.LabelTrash); !errors.Is(err, ErrReservedLabel) {
		t.Errorf("delete reserved = %v, want ErrReservedLabel", err)
	}
	if err := mb.DeleteLabel(ctx, labelID); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("delete twice = %v, want ErrUnknownLabel", err)
	}
}
