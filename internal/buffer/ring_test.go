package buffer

import (
	"reflect"
	"testing"
)

func TestRingKeepsNewestEntries(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}
	if got := ring.List(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("unexpected entries: %v", got)
	}
	if got := ring.Last(1); !reflect.DeepEqual(got, []int{5}) {
		t.Fatalf("unexpected newest entry: %v", got)
	}
}

func TestRingLast(t *testing.T) {
	ring := NewRing[string](4)
	for _, value := range []string{"a", "b", "c", "d", "e"} {
		ring.Add(value)
	}
	if got := ring.Last(2); !reflect.DeepEqual(got, []string{"d", "e"}) {
		t.Fatalf("unexpected tail: %v", got)
	}
	if got := ring.Last(10); !reflect.DeepEqual(got, []string{"b", "c", "d", "e"}) {
		t.Fatalf("unexpected full tail: %v", got)
	}
	if got := ring.Last(0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestNilRingIsEmpty(t *testing.T) {
	var ring *Ring[int]
	ring.Add(1)
	if got := ring.List(); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
