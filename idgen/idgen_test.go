package idgen

import (
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNewIsUniqueAndParseable(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = true
		if _, err := Parse(id); err != nil {
			t.Fatalf("Parse(%q): %v", id, err)
		}
	}
}

func TestUUIDv7IsTimeSortable(t *testing.T) {
	// WHAT: IDs generated later sort lexically after earlier ones.
	// WHY: job FIFO ordering relies on ORDER BY id.
	gen := UUIDv7()
	a := gen()
	time.Sleep(2 * time.Millisecond)
	b := gen()

	ids := []string{b, a}
	sort.Strings(ids)
	if ids[0] != a {
		t.Fatalf("expected %s to sort before %s", a, b)
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("job_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "job_") {
		t.Fatalf("id %q missing prefix", id)
	}
}
