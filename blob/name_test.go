package blob

import (
	"strings"
	"testing"

	"github.com/elasticmail/mailstore/msgid"
)

func TestFlatNamer(t *testing.T) {
	id := msgid.NewGenerator().Next()
	name := FlatNamer{}.Name("user@example.com", id)

	want := "user@example.com:" + id.String()
	if name != want {
		t.Errorf("Name = %q, want %q", name, want)
	}
}

func TestShardedNamer_Deterministic(t *testing.T) {
	id := msgid.NewGenerator().Next()
	n := ShardedNamer{}

	a := n.Name("user@example.com", id)
	b := n.Name("user@example.com", id)
	if a != b {
		t.Fatalf("sharded name not deterministic: %q != %q", a, b)
	}

	parts := strings.SplitN(a, "/", 3)
	if len(parts) != 3 {
		t.Fatalf("expected two shard levels: %q", a)
	}
	for _, p := range parts[:2] {
		if len(p) != 2 {
			t.Errorf("shard component %q is not a hex byte", p)
		}
	}
	if parts[2] != "user@example.com:"+id.String() {
		t.Errorf("leaf name = %q", parts[2])
	}
}

func TestShardedNamer_Spread(t *testing.T) {
	g := msgid.NewGenerator()
	n := ShardedNamer{}

	buckets := make(map[string]bool)
	for i := 0; i < 200; i++ {
		name := n.Name("user@example.com", g.Next())
		buckets[name[:5]] = true
	}

	// 200 blobs over 65536 buckets should rarely collide.
	if len(buckets) < 150 {
		t.Errorf("poor shard spread: %d distinct buckets out of 200", len(buckets))
	}
}
