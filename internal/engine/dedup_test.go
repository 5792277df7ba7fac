package engine

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProcessedSetAddContains(t *testing.T) {
	set := newProcessedSet()

	if set.Contains(42) {
		t.Fatal("empty set must not contain anything")
	}
	set.Add(42)
	if !set.Contains(42) {
		t.Fatal("added id must be contained")
	}
	set.Add(42)
	if set.Len() != 1 {
		t.Fatalf("re-adding an id must be a no-op, len = %d", set.Len())
	}
}

func TestProcessedSetTrimsOldestFirst(t *testing.T) {
	set := newProcessedSetWithBounds(10, 5)

	for id := int64(1); id <= 10; id++ {
		set.Add(id)
	}
	if set.Len() != 10 {
		t.Fatalf("len = %d, want 10", set.Len())
	}

	// The 11th insert crosses the bound and trims down to the 5 newest.
	set.Add(11)
	if set.Len() != 5 {
		t.Fatalf("len after trim = %d, want 5", set.Len())
	}
	for id := int64(1); id <= 6; id++ {
		if set.Contains(id) {
			t.Errorf("old id %d should have been evicted", id)
		}
	}
	for id := int64(7); id <= 11; id++ {
		if !set.Contains(id) {
			t.Errorf("recent id %d should have survived the trim", id)
		}
	}
}

// Property: however many ids are added, the set never exceeds its bound by
// more than one insert's worth, and the most recently added id is always
// retained.
func TestProperty_ProcessedSetBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("set stays bounded and keeps the newest id", prop.ForAll(
		func(ids []int64) bool {
			set := newProcessedSetWithBounds(50, 25)
			for _, id := range ids {
				set.Add(id)
			}
			if set.Len() > 50 {
				return false
			}
			if len(ids) > 0 && !set.Contains(ids[len(ids)-1]) {
				return false
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 200)),
	))

	properties.TestingRun(t)
}
