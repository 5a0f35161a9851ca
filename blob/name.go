package blob

import (
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"

	"github.com/elasticmail/mailstore/msgid"
)

// Namer derives the blob name for a message's raw bytes. Names must be
// unique per (mailbox, message) and deterministic, so that a message's
// blob can be located, overwritten, and deleted without extra state.
type Namer interface {
	Name(mailbox string, id msgid.ID) string
}

// FlatNamer names blobs "{mailbox}:{messageId}" with no directory
// structure. Suitable for object stores that hash keys internally.
type FlatNamer struct{}

// Name returns the flat blob name.
func (FlatNamer) Name(mailbox string, id msgid.ID) string {
	return mailbox + ":" + id.String()
}

// ShardedNamer prefixes the flat name with a two-level hex-byte directory
// path derived from the MD5 digest of the name, spreading blobs evenly
// across 65536 buckets. Intended for filesystem-backed stores where flat
// directories degrade.
type ShardedNamer struct {
	Logger *slog.Logger
}

// Name returns the sharded blob name, e.g. "3a/f1/user@example.com:...".
// If digest computation fails the name falls back to the fixed "00/00"
// bucket; the fault is logged, never surfaced.
func (n ShardedNamer) Name(mailbox string, id msgid.ID) string {
	flat := mailbox + ":" + id.String()

	h := md5.New()
	if _, err := io.WriteString(h, flat); err != nil {
		logger := n.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("blob name digest failed, using fallback bucket", "error", err)
		return "00/00/" + flat
	}
	sum := h.Sum(nil)

	return fmt.Sprintf("%02x/%02x/%s", sum[0], sum[1], flat)
}
