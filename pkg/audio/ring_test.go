package audio

import "testing"

func TestRing_PushDrain(t *testing.T) {
	r := NewRing(8)
	if n := r.Push([]float32{1, 2, 3}); n != 0 {
		t.Fatalf("dropped = %d, want 0", n)
	}
	got := r.Drain()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("Drain() = %v, want [1 2 3]", got)
	}
	if got := r.Drain(); got != nil {
		t.Fatalf("Drain() on empty ring = %v, want nil", got)
	}
}

func TestRing_OverflowDropsNewest(t *testing.T) {
	r := NewRing(4)
	if n := r.Push([]float32{1, 2, 3, 4, 5, 6}); n != 2 {
		t.Fatalf("dropped = %d, want 2", n)
	}
	got := r.Drain()
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	// The oldest samples survive; the overflow is discarded.
	for i, want := range []float32{1, 2, 3, 4} {
		if got[i] != want {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want)
		}
	}
	if r.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", r.Dropped())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := NewRing(4)
	r.Push([]float32{1, 2, 3})
	r.Drain()
	r.Push([]float32{4, 5, 6, 7}) // wraps past the end of the backing array
	got := r.Drain()
	for i, want := range []float32{4, 5, 6, 7} {
		if got[i] != want {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestRing_DrainAfterManyCycles(t *testing.T) {
	r := NewRing(16)
	var total int
	for cycle := range 100 {
		in := make([]float32, 7)
		for i := range in {
			in[i] = float32(cycle*7 + i)
		}
		r.Push(in)
		total += len(r.Drain())
	}
	if total != 700 {
		t.Fatalf("total drained = %d, want 700", total)
	}
	if r.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", r.Dropped())
	}
}
