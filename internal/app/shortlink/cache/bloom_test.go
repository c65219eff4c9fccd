package cache

import (
	"fmt"
	"testing"
)

func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	b := NewBloomFilter(1000, 0.01)
	codes := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		codes = append(codes, fmt.Sprintf("krat.ko/%08d", i))
	}
	b.AddAll(codes[:250])
	for _, c := range codes[250:] {
		b.Add(c)
	}

	for _, c := range codes {
		if !b.MightExist(c) {
			t.Fatalf("MightExist(%q): got false, want true", c)
		}
	}
	if got := b.Count(); got < 450 || got > 550 {
		t.Fatalf("Count: got %d, want about 500", got)
	}
}

func TestBloomFilter_EmptyReportsAbsent(t *testing.T) {
	b := NewBloomFilter(0, 0.01)
	if b.MightExist("krat.ko/abcdefgh") {
		t.Fatal("empty filter reported a code as present")
	}
}
