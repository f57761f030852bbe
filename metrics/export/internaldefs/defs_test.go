package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionsAreUnique(t *testing.T) {
	seenID := map[uint16]string{}
	seenName := map[string]bool{}

	for _, def := range CounterDefs {
		if prev, ok := seenID[uint16(def.ID)]; ok {
			t.Fatalf("metric id %d used by %s and %s", def.ID, prev, def.Name)
		}
		seenID[uint16(def.ID)] = def.Name
		if seenName[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seenName[def.Name] = true
		if !strings.HasPrefix(def.Name, "otpgate_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s should be otpgate_*_total", def.Name)
		}
	}
	for _, def := range HistogramDefs {
		if _, ok := seenID[uint16(def.ID)]; ok {
			t.Fatalf("histogram %s reuses a counter id", def.Name)
		}
		if !strings.HasSuffix(def.Name, "_seconds") {
			t.Fatalf("histogram %s should end in _seconds", def.Name)
		}
	}
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatalf("expected 8 bucket bounds")
	}
}

func TestBuckets(t *testing.T) {
	got := NormalizeBuckets([]uint64{1, 2, 3})
	if got != [8]uint64{1, 2, 3} {
		t.Fatalf("NormalizeBuckets = %v", got)
	}

	got = NormalizeBuckets([]uint64{1, 1, 1, 1, 1, 1, 1, 1, 9})
	if got[7] != 1 {
		t.Fatalf("NormalizeBuckets should drop extra buckets, got %v", got)
	}

	cum := CumulativeBuckets([8]uint64{1, 0, 2, 0, 0, 3, 0, 1})
	want := [8]uint64{1, 1, 3, 3, 3, 6, 6, 7}
	if cum != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", cum, want)
	}
}
