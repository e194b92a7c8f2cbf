package packing

import "testing"

func TestNewFullIsFullyUnpacked(t *testing.T) {
	s := NewFull(9)
	if !s.IsFullyUnpacked(9) {
		t.Fatal("a fresh NewFull tracker should be fully unpacked")
	}
	if s.AllPacked() {
		t.Fatal("a fresh NewFull tracker should not report AllPacked")
	}
}

func TestNewEmptyIsAllPacked(t *testing.T) {
	s := NewEmpty()
	if !s.AllPacked() {
		t.Fatal("NewEmpty should report AllPacked")
	}
	if !s.IsPacked(0) {
		t.Fatal("NewEmpty should treat every segment as packed")
	}
}

func TestMarkPackedSplitsRange(t *testing.T) {
	s := NewFull(4)
	if !s.MarkPacked(2) {
		t.Fatal("MarkPacked(2) should succeed on a fresh tracker")
	}
	if s.IsPacked(0) || s.IsPacked(1) || s.IsPacked(3) || s.IsPacked(4) {
		t.Fatal("only segment 2 should be packed")
	}
	if !s.IsPacked(2) {
		t.Fatal("segment 2 should now be packed")
	}
	if s.MarkPacked(2) {
		t.Fatal("double-packing the same segment must fail")
	}
}

func TestMarkPackedEdges(t *testing.T) {
	s := NewFull(2)
	if !s.MarkPacked(0) {
		t.Fatal("MarkPacked(0) should succeed")
	}
	if !s.MarkPacked(2) {
		t.Fatal("MarkPacked(2) should succeed")
	}
	if s.IsPacked(1) {
		t.Fatal("segment 1 should remain unpacked")
	}
	if !s.MarkPacked(1) {
		t.Fatal("MarkPacked(1) should succeed, draining the tracker")
	}
	if !s.AllPacked() {
		t.Fatal("every segment packed should mean AllPacked")
	}
}

func TestHighestPacked(t *testing.T) {
	s := NewFull(5)
	if _, any := s.HighestPacked(5); any {
		t.Fatal("nothing packed yet")
	}
	s.MarkPacked(0)
	s.MarkPacked(1)
	h, any := s.HighestPacked(5)
	if !any || h != 1 {
		t.Fatalf("HighestPacked = %d,%v want 1,true", h, any)
	}
	s.MarkPacked(5)
	h, any = s.HighestPacked(5)
	if !any || h != 5 {
		t.Fatalf("HighestPacked = %d,%v want 5,true (gap beyond max)", h, any)
	}
}

func TestCanCutTailAt(t *testing.T) {
	s := NewFull(5)
	s.MarkPacked(3)
	if s.CanCutTailAt(2, 5) {
		t.Fatal("cutting below a packed segment must be illegal")
	}
	if !s.CanCutTailAt(3, 5) {
		t.Fatal("cutting exactly at the highest packed segment must be legal")
	}
	if !s.CanCutTailAt(5, 5) {
		t.Fatal("cutting at the current max must be legal")
	}
}

func TestCutTailAt(t *testing.T) {
	s := NewFull(5)
	s.CutTailAt(3)
	if !s.IsFullyUnpacked(3) {
		t.Fatal("cutting an untouched tracker should leave it fully unpacked at the new max")
	}
}

func TestGrowTail(t *testing.T) {
	s := NewFull(2)
	s.MarkPacked(0)
	s.MarkPacked(1)
	s.MarkPacked(2)
	if !s.AllPacked() {
		t.Fatal("setup: expected tracker fully packed")
	}
	s.GrowTail(2, 5)
	if s.AllPacked() {
		t.Fatal("growing the tail should introduce newly unpacked segments")
	}
	for seg := uint32(3); seg <= 5; seg++ {
		if s.IsPacked(seg) {
			t.Fatalf("segment %d should be unpacked after growth", seg)
		}
	}
}

func TestShiftDown(t *testing.T) {
	s := NewFull(5)
	s.MarkPacked(0)
	s.MarkPacked(1)
	// unpacked: [2,5]
	s.ShiftDown(2)
	// now should be unpacked: [0,3]
	if !s.IsFullyUnpacked(3) {
		t.Fatal("ShiftDown should renumber the surviving unpacked range down by delta")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewFull(4)
	c := s.Clone()
	s.MarkPacked(0)
	if c.IsPacked(0) {
		t.Fatal("mutating the original must not affect the clone")
	}
}
