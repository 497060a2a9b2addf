package uid

import (
	"strings"
	"testing"
	"time"
)

func TestUIDAlphabet(t *testing.T) {
	s := UID(10)
	if len(s) != 10 {
		t.Fatalf("length = %d", len(s))
	}
	for _, c := range []byte(s) {
		if strings.IndexByte(letters, c) < 0 {
			t.Fatalf("character %q outside alphabet in %q", c, s)
		}
	}
}

func TestUUIDShape(t *testing.T) {
	s := UUID()
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		t.Fatalf("uuid = %q", s)
	}
}

func TestULIDRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	s := NewAt(when).String()
	if len(s) != timeLen+randomLen {
		t.Fatalf("length = %d", len(s))
	}
	ms, err := Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if ms != when.UnixMilli() {
		t.Fatalf("decoded ms = %d, want %d", ms, when.UnixMilli())
	}
}

func TestULIDSortsByTime(t *testing.T) {
	earlier := NewAt(time.UnixMilli(1_000_000_000_000)).String()
	later := NewAt(time.UnixMilli(2_000_000_000_000)).String()
	if earlier[:timeLen] >= later[:timeLen] {
		t.Fatalf("time prefixes not ordered: %q >= %q", earlier, later)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	if _, err := Decode("short"); err == nil {
		t.Fatal("wrong length accepted")
	}
	bad := "I" + strings.Repeat("0", timeLen+randomLen-1)
	if _, err := Decode(bad); err == nil {
		t.Fatal("excluded character accepted")
	}
}
