package store

import (
	"slices"
	"time"
)

// Marker is a boolean per-message flag, distinct from labels.
type Marker uint8

const (
	// MarkerSeen is set once the message has been read. A message
	// without MarkerSeen counts toward the unread counter.
	MarkerSeen Marker = 1 << iota

	// MarkerReplied is set once the message has been answered.
	MarkerReplied

	// MarkerDeleted soft-deletes the message. Purge permanently removes
	// rows that have carried this marker longer than the configured age.
	MarkerDeleted
)

// MarkerSet is a bit set of markers.
type MarkerSet uint8

// Has reports whether m is set.
func (s MarkerSet) Has(m Marker) bool {
	return s&MarkerSet(m) != 0
}

// With returns s with m set.
func (s MarkerSet) With(m Marker) MarkerSet {
	return s | MarkerSet(m)
}

// Without returns s with m cleared.
func (s MarkerSet) Without(m Marker) MarkerSet {
	return s &^ MarkerSet(m)
}

// Address is a parsed RFC 5322 address.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// MIMEPart describes one node of a message's MIME part tree.
// Parts are stored flattened with dotted part ids ("1", "1.2", ...).
type MIMEPart struct {
	PartID      string `json:"part_id"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size"`
}

// MessageRow is the row-per-message metadata record: parsed headers and
// structure, the mutable label/marker state, and the blob pointer to the
// raw source. It never embeds message content beyond the decoded text
// bodies; the raw bytes live behind Location.
type MessageRow struct {
	From    []Address `json:"from,omitempty"`
	To      []Address `json:"to,omitempty"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
	Subject string    `json:"subject,omitempty"`
	Date    time.Time `json:"date"`
	Size    int64     `json:"size"`

	PlainBody string            `json:"plain_body,omitempty"`
	HTMLBody  string            `json:"html_body,omitempty"`
	Parts     []MIMEPart        `json:"parts,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`

	Labels  []int     `json:"labels"`
	Markers MarkerSet `json:"markers"`

	// Location is the serialized BlobLocationURI of the raw source.
	Location string `json:"location,omitempty"`

	ModifiedAt time.Time `json:"modified_at"`
}

// HasLabel reports whether the row carries the label.
func (r *MessageRow) HasLabel(id int) bool {
	return slices.Contains(r.Labels, id)
}

// AddLabel adds the label to the row if not already present.
func (r *MessageRow) AddLabel(id int) {
	if !r.HasLabel(id) {
		r.Labels = append(r.Labels, id)
	}
}

// RemoveLabel removes the label from the row if present.
func (r *MessageRow) RemoveLabel(id int) {
	r.Labels = slices.DeleteFunc(r.Labels, func(l int) bool { return l == id })
}

// Unread reports whether the message counts toward unread counters.
func (r *MessageRow) Unread() bool {
	return !r.Markers.Has(MarkerSeen)
}

// Counters returns the delta this row contributes to each of its labels.
func (r *MessageRow) Counters() LabelCounters {
	return MessageCounters(r.Size, r.Markers.Has(MarkerSeen))
}

// Clone returns a deep copy of the row.
func (r *MessageRow) Clone() *MessageRow {
	c := *r
	c.From = slices.Clone(r.From)
	c.To = slices.Clone(r.To)
	c.Cc = slices.Clone(r.Cc)
	c.Bcc = slices.Clone(r.Bcc)
	c.Parts = slices.Clone(r.Parts)
	c.Labels = slices.Clone(r.Labels)
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}
