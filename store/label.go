package store

import "sort"

// Reserved label ids. Ids below ReservedLabelMax carry system-defined
// semantics and exist in every mailbox from account creation.
const (
	LabelAll           = 0
	LabelInbox         = 1
	LabelDrafts        = 2
	LabelSent          = 3
	LabelTrash         = 4
	LabelSpam          = 5
	LabelStarred       = 6
	LabelImportant     = 7
	LabelNotifications = 8
	LabelAttachments   = 9

	// ReservedLabelMax is the exclusive upper bound of the reserved id
	// range. User-defined labels are allocated at or above this value.
	ReservedLabelMax = 1000
)

// reservedLabelNames maps reserved ids to their fixed names.
var reservedLabelNames = map[int]string{
	LabelAll:           "all",
	LabelInbox:         "inbox",
	LabelDrafts:        "drafts",
	LabelSent:          "sent",
	LabelTrash:         "trash",
	LabelSpam:          "spam",
	LabelStarred:       "starred",
	LabelImportant:     "important",
	LabelNotifications: "notifications",
	LabelAttachments:   "attachments",
}

// IsReservedLabel reports whether id is in the reserved range.
func IsReservedLabel(id int) bool {
	return id < ReservedLabelMax
}

// ReservedLabelName returns the fixed name of a reserved label id.
// Returns false for ids outside the seeded reserved set.
func ReservedLabelName(id int) (string, bool) {
	name, ok := reservedLabelNames[id]
	return name, ok
}

// ReservedLabels returns the full reserved label set, ordered by id.
func ReservedLabels() []Label {
	out := make([]Label, 0, len(reservedLabelNames))
	for id, name := range reservedLabelNames {
		out = append(out, Label{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Label is a named tag applied to messages.
type Label struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Reserved reports whether the label is in the reserved range.
func (l Label) Reserved() bool {
	return IsReservedLabel(l.ID)
}
