package types

import "testing"

func TestSlotsPerElement(t *testing.T) {
	tests := []struct {
		faces   bool
		corners bool
		want    int32
	}{
		{false, false, 1},
		{true, false, 9},
		{false, true, 5},
		{true, true, 13},
	}

	for _, tt := range tests {
		l := NewSlotLayout(tt.faces, tt.corners)
		if got := l.SlotsPerElement(); got != tt.want {
			t.Errorf("SlotsPerElement(faces=%v, corners=%v) = %d, want %d",
				tt.faces, tt.corners, got, tt.want)
		}
	}
}

func TestLayoutPositionsDisjoint(t *testing.T) {
	l := NewSlotLayout(true, true)
	seen := make(map[int32]string)

	record := func(pos int32, name string) {
		if prev, ok := seen[pos]; ok {
			t.Fatalf("position %d assigned to both %s and %s", pos, prev, name)
		}
		if !l.ValidPosition(pos) {
			t.Fatalf("%s position %d outside layout", name, pos)
		}
		seen[pos] = name
	}

	record(l.PosCenter(), "center")
	for f := int32(0); f < NumFaces; f++ {
		record(l.PosFaceFull(f), "face_full")
		record(l.PosFaceHanging(f), "face_hanging")
	}
	for c := int32(0); c < NumCorners; c++ {
		record(l.PosCorner(c), "corner")
	}

	if int32(len(seen)) != l.SlotsPerElement() {
		t.Errorf("covered %d positions, layout has %d", len(seen), l.SlotsPerElement())
	}
}

func TestCornerPositionsWithoutFaces(t *testing.T) {
	l := NewSlotLayout(false, true)
	for c := int32(0); c < NumCorners; c++ {
		want := 1 + c
		if got := l.PosCorner(c); got != want {
			t.Errorf("PosCorner(%d) = %d, want %d", c, got, want)
		}
	}
}

func TestQueryEligible(t *testing.T) {
	l := NewSlotLayout(true, false)
	if l.QueryEligible(l.PosCenter()) {
		t.Error("center position must not be query eligible")
	}
	if !l.QueryEligible(l.PosFaceFull(0)) {
		t.Error("face position must be query eligible")
	}
	if !l.QueryEligible(l.PosFaceHanging(3)) {
		t.Error("hanging position must be query eligible")
	}
	if l.QueryEligible(l.SlotsPerElement()) {
		t.Error("position past the layout must not be query eligible")
	}
}

func TestGlobalPosRoundtrip(t *testing.T) {
	l := NewSlotLayout(true, false)
	tests := []struct {
		element int64
		pos     int32
	}{
		{0, 0},
		{0, 8},
		{3, 1},
		{127, 7},
	}

	for _, tt := range tests {
		gpos := l.GlobalPos(tt.element, tt.pos)
		e, p := l.SplitGlobalPos(gpos)
		if e != tt.element || p != tt.pos {
			t.Errorf("SplitGlobalPos(GlobalPos(%d, %d)) = (%d, %d)",
				tt.element, tt.pos, e, p)
		}
	}

	if !l.ValidGlobalPos(0, 1) {
		t.Error("gpos 0 must be valid for one element")
	}
	if l.ValidGlobalPos(9, 1) {
		t.Error("gpos 9 must be invalid for one element with 9 slots")
	}
	if l.ValidGlobalPos(-1, 1) {
		t.Error("negative gpos must be invalid")
	}
}
