package mailstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// LabelSeparator nests label names into hierarchies, e.g. "work/reports".
// Each path segment must be non-empty.
const LabelSeparator = "/"

// Labels returns all label definitions for the mailbox, keyed by id.
func (m *mailbox) Labels(ctx context.Context) (map[int]string, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	labels, err := m.service.store.Labels(ctx, m.id)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return labels, nil
}

// AddLabel creates a user label and returns its assigned id.
func (m *mailbox) AddLabel(ctx context.Context, name string) (int, error) {
	if err := m.checkAccess(); err != nil {
		return 0, err
	}
	if err := validateLabelName(name); err != nil {
		return 0, err
	}

	labels, err := m.service.store.Labels(ctx, m.id)
	if err != nil {
		return 0, fmt.Errorf("list labels: %w", err)
	}
	for _, existing := range labels {
		if strings.EqualFold(existing, name) {
			return 0, fmt.Errorf("%w: %q", ErrExistingLabel, name)
		}
	}

	id := newLabelID(labels)
	if err := m.service.store.PutLabel(ctx, m.id, id, name); err != nil {
		return 0, fmt.Errorf("put label: %w", err)
	}

	m.service.logger.Debug("created label", "mailbox", m.id, "label", id, "name", name)
	return id, nil
}

// RenameLabel changes a user label's name.
func (m *mailbox) RenameLabel(ctx context.Context, id int, name string) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if store.IsReservedLabel(id) {
		return fmt.Errorf("%w: %d", ErrReservedLabel, id)
	}
	if err := validateLabelName(name); err != nil {
		return err
	}

	labels, err := m.service.store.Labels(ctx, m.id)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	if _, ok := labels[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLabel, id)
	}
	for existingID, existing := range labels {
		if existingID != id && strings.EqualFold(existing, name) {
			return fmt.Errorf("%w: %q", ErrExistingLabel, name)
		}
	}

	if err := m.service.store.PutLabel(ctx, m.id, id, name); err != nil {
		return fmt.Errorf("put label: %w", err)
	}
	return nil
}

// DeleteLabel removes a user label entirely: the label is stripped from
// every message carrying it, then the index, counters, and definition go.
// The per-message strip is throttled like any batch mutation.
func (m *mailbox) DeleteLabel(ctx context.Context, id int) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if store.IsReservedLabel(id) {
		return fmt.Errorf("%w: %d", ErrReservedLabel, id)
	}

	labels, err := m.service.store.Labels(ctx, m.id)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	if _, ok := labels[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLabel, id)
	}

	// Strip the label from member messages, one index page at a time.
	// Modify removes the index entries as a side effect, so each pass
	// re-scans from the top until the index drains.
	mod := Modification{RemoveLabels: []int{id}}
	for {
		ids, err := m.service.store.ScanIndex(ctx, m.id, id, msgid.ID{}, m.service.opts.maxScanLimit, false)
		if err != nil {
			return fmt.Errorf("scan label %d: %w", id, err)
		}
		if len(ids) == 0 {
			break
		}
		if err := m.modify(ctx, ids, mod); err != nil {
			return err
		}
		// Stale entries survive modify; drop them so the loop terminates.
		if err := m.service.store.RemoveIndex(ctx, m.id, id, ids); err != nil {
			return fmt.Errorf("unindex label %d: %w", id, err)
		}
	}

	if err := m.service.store.DropIndex(ctx, m.id, id); err != nil {
		return fmt.Errorf("drop index %d: %w", id, err)
	}
	if err := m.service.store.DeleteCounters(ctx, m.id, id); err != nil {
		return fmt.Errorf("delete counters %d: %w", id, err)
	}
	if err := m.service.store.DeleteLabel(ctx, m.id, id); err != nil {
		return fmt.Errorf("delete label %d: %w", id, err)
	}

	m.service.logger.Debug("deleted label", "mailbox", m.id, "label", id)
	return nil
}

// newLabelID allocates a user label id: random, at or above the reserved
// range, and not colliding with an existing label. Random allocation
// keeps concurrent creators on different backends from racing a shared
// sequence.
func newLabelID(existing map[int]string) int {
	for {
		u := uuid.New()
		id := int(binary.BigEndian.Uint32(u[:4]) & 0x7fffffff)
		if id < store.ReservedLabelMax {
			continue
		}
		if _, taken := existing[id]; taken {
			continue
		}
		return id
	}
}

// validateLabelName enforces the label naming rules: non-empty, bounded
// length, printable characters, and well-formed hierarchy paths.
func validateLabelName(name string) error {
	if name == "" {
		return &LabelError{Name: name, Reason: "empty name"}
	}
	if len(name) > MaxLabelNameLength {
		return &LabelError{Name: name, Reason: fmt.Sprintf("longer than %d bytes", MaxLabelNameLength)}
	}
	if strings.HasPrefix(name, LabelSeparator) || strings.HasSuffix(name, LabelSeparator) {
		return &LabelError{Name: name, Reason: "leading or trailing separator"}
	}
	if strings.Contains(name, LabelSeparator+LabelSeparator) {
		return &LabelError{Name: name, Reason: "empty path segment"}
	}
	if name != strings.TrimSpace(name) {
		return &LabelError{Name: name, Reason: "leading or trailing whitespace"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &LabelError{Name: name, Reason: "control character"}
		}
	}

	// The first path segment must not shadow a reserved label name.
	first, _, _ := strings.Cut(name, LabelSeparator)
	for _, reserved := range store.ReservedLabels() {
		if strings.EqualFold(first, reserved.Name) {
			return &LabelError{Name: name, Reason: fmt.Sprintf("reserved name %q", reserved.Name)}
		}
	}

	return nil
}
