package msgid

import (
	"sync"
	"testing"
	"time"
)

func TestGenerator_SameSentDate(t *testing.T) {
	g := NewGenerator()
	sent := time.Date(2019, 6, 12, 9, 30, 0, 0, time.UTC)

	const n = 10000
	ids := make([]ID, n)
	for i := range ids {
		ids[i] = g.NextAt(sent)
	}

	seen := make(map[ID]bool, n)
	for i, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id at %d: %s", i, id)
		}
		seen[id] = true
		if i > 0 && !ids[i-1].Less(id) {
			t.Fatalf("ids not strictly increasing at %d: %s >= %s", i, ids[i-1], id)
		}
		if drift := id.Time().Sub(sent); drift < 0 || drift > time.Millisecond {
			t.Fatalf("id %d drifted %v from sent date", i, drift)
		}
	}
}

func TestGenerator_WallClock(t *testing.T) {
	g := NewGenerator()

	const n = 10000
	var prev ID
	for i := 0; i < n; i++ {
		id := g.Next()
		if !prev.Less(id) {
			t.Fatalf("ids not strictly increasing at %d: %s >= %s", i, prev, id)
		}
		if drift := time.Since(id.Time()); drift < -100*time.Millisecond || drift > 100*time.Millisecond {
			t.Fatalf("id %d drifted %v from wall clock", i, drift)
		}
		prev = id
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	g := NewGenerator()
	sent := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[ID]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]ID, perWorker)
			for i := range local {
				local[i] = g.NextAt(sent)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id under concurrency: %s", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d distinct ids, got %d", workers*perWorker, len(seen))
	}
}

func TestID_StringRoundTrip(t *testing.T) {
	g := NewGenerator()
	id := g.Next()

	s := id.String()
	if len(s) != EncodedLen {
		t.Fatalf("string length = %d, want %d", len(s), EncodedLen)
	}

	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round-trip mismatch: %s != %s", parsed, id)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "zz" + string(make([]byte, 30))} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestID_HexOrderMatchesTimeOrder(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	b := g.Next()

	if !(a.String() < b.String()) {
		t.Fatalf("hex order does not match time order: %s >= %s", a, b)
	}
}

func TestID_Compare(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	b := g.Next()

	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatal("Compare ordering is wrong")
	}
}
