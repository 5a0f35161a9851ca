package blob

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Scheme is the URI scheme of persisted blob locations.
const Scheme = "blob"

// Location is the durable pointer stored in message metadata: which
// storage profile holds the blob, under what name, and which transforms
// were applied to the payload.
//
// Wire format:
//
//	blob://<profile>/<urlencoded-name>[?c=<tag>][&e=<key-alias>][&b=<blockCount>]
//
// Optional fields are omitted from the query string entirely, never
// emitted empty, and query keys appear in fixed c, e, b order so that
// String is the left inverse of Parse for all valid field combinations.
type Location struct {
	// Profile is the storage profile name (URI authority).
	Profile string

	// Name is the blob name (URI path, percent-encoded on the wire).
	Name string

	// Compression is the compression tag, empty if uncompressed.
	Compression string

	// KeyAlias is the encryption key alias, empty if unencrypted.
	KeyAlias string

	// BlockCount is the number of storage blocks, 0 if not recorded.
	BlockCount int
}

// String serializes the location to its wire form.
func (l Location) String() string {
	u := url.URL{
		Scheme: Scheme,
		Host:   l.Profile,
		Path:   "/" + l.Name,
	}

	var q []string
	if l.Compression != "" {
		q = append(q, "c="+url.QueryEscape(l.Compression))
	}
	if l.KeyAlias != "" {
		q = append(q, "e="+url.QueryEscape(l.KeyAlias))
	}
	if l.BlockCount > 0 {
		q = append(q, "b="+strconv.Itoa(l.BlockCount))
	}
	u.RawQuery = strings.Join(q, "&")

	return u.String()
}

// Encrypted reports whether the payload was encrypted.
func (l Location) Encrypted() bool {
	return l.KeyAlias != ""
}

// Compressed reports whether the payload was compressed.
func (l Location) Compressed() bool {
	return l.Compression != ""
}

// Attributes returns otel span attributes describing the location.
// The blob name is deliberately excluded: it embeds the mailbox id.
func (l Location) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("blob.profile", l.Profile),
		attribute.Bool("blob.compressed", l.Compressed()),
		attribute.Bool("blob.encrypted", l.Encrypted()),
	}
}

// ParseLocation parses the wire form back into a Location.
// Fails with an error wrapping ErrInvalidLocation if the scheme is not
// "blob" or the URI is malformed.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if u.Scheme != Scheme {
		return Location{}, fmt.Errorf("%w: scheme %q", ErrInvalidLocation, u.Scheme)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("%w: missing storage profile", ErrInvalidLocation)
	}

	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return Location{}, fmt.Errorf("%w: missing blob name", ErrInvalidLocation)
	}

	l := Location{
		Profile: u.Host,
		Name:    name,
	}

	q := u.Query()
	l.Compression = q.Get("c")
	l.KeyAlias = q.Get("e")
	if b := q.Get("b"); b != "" {
		n, err := strconv.Atoi(b)
		if err != nil || n < 1 {
			return Location{}, fmt.Errorf("%w: block count %q", ErrInvalidLocation, b)
		}
		l.BlockCount = n
	}

	return l, nil
}
