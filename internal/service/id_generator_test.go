package service

import (
	"testing"
	"time"
)

func TestIDGeneratorMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	gen := NewIDGenerator(func() time.Time { return fixed })

	first := gen.Next()
	second := gen.Next()
	third := gen.Next()

	if first != fixed.UnixMilli() {
		t.Errorf("first id = %d, want %d", first, fixed.UnixMilli())
	}
	if second != first+1 || third != second+1 {
		t.Errorf("ids not strictly increasing: %d %d %d", first, second, third)
	}
}

func TestIDGeneratorObserve(t *testing.T) {
	fixed := time.UnixMilli(1000)
	gen := NewIDGenerator(func() time.Time { return fixed })

	gen.Observe(5000)
	gen.Observe(10) // lower ids do not move the floor back

	if got := gen.Next(); got != 5001 {
		t.Errorf("Next() = %d, want 5001", got)
	}
}
