package idgen

import (
	"strings"
	"testing"
)

func TestShort_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{6, 12, 24} {
		id := Short(length)()
		if len(id) != length {
			t.Fatalf("Short(%d): got length %d", length, len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("Short: unexpected character %q in %q", c, id)
			}
		}
	}
}

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || len(strings.Split(id, "-")) != 5 {
		t.Fatalf("UUIDv7: bad format %q", id)
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestRunAndSheetPrefixes(t *testing.T) {
	if id := Run(); !strings.HasPrefix(id, "run_") {
		t.Fatalf("Run: got %q", id)
	}
	if id := Sheet(); !strings.HasPrefix(id, "sht_") {
		t.Fatalf("Sheet: got %q", id)
	}
}

func TestParse(t *testing.T) {
	id := Run()
	got, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse(%q): %v", id, err)
	}
	if got != id {
		t.Fatalf("Parse: got %q, want %q", got, id)
	}
	if _, err := Parse("run_not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
