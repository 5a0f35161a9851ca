package store

// LabelCounters is the aggregate {bytes, messages, unread} for one
// mailbox+label. Values form a commutative group under Add: deltas can be
// applied in any order, and applying a delta followed by its Inverse
// restores the prior state exactly. Negative fields are therefore valid
// in a delta even though a stored row should never go negative.
type LabelCounters struct {
	Bytes    int64 `json:"bytes"`
	Messages int64 `json:"messages"`
	Unread   int64 `json:"unread"`
}

// Add returns the componentwise sum of c and delta.
func (c LabelCounters) Add(delta LabelCounters) LabelCounters {
	return LabelCounters{
		Bytes:    c.Bytes + delta.Bytes,
		Messages: c.Messages + delta.Messages,
		Unread:   c.Unread + delta.Unread,
	}
}

// Inverse returns the delta that retracts c: c.Add(c.Inverse()) is zero.
func (c LabelCounters) Inverse() LabelCounters {
	return LabelCounters{
		Bytes:    -c.Bytes,
		Messages: -c.Messages,
		Unread:   -c.Unread,
	}
}

// IsZero reports whether all three fields are zero.
func (c LabelCounters) IsZero() bool {
	return c == LabelCounters{}
}

// MessageCounters returns the positive delta one message contributes to a
// label: its size, one message, and one unread if the seen marker is unset.
func MessageCounters(size int64, seen bool) LabelCounters {
	c := LabelCounters{Bytes: size, Messages: 1}
	if !seen {
		c.Unread = 1
	}
	return c
}
