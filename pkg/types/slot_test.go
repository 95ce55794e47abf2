package types

import (
	"math"
	"testing"
)

func TestNodeSlotOwned(t *testing.T) {
	tests := []struct {
		index LocalNodeIndex
	}{
		{0},
		{1},
		{42},
		{math.MaxInt32 - 1},
	}

	for _, tt := range tests {
		s := OwnedSlot(tt.index)
		if s.Kind() != SlotOwned {
			t.Errorf("OwnedSlot(%d).Kind() = %v, want owned", tt.index, s.Kind())
		}
		if !s.IsSet() {
			t.Errorf("OwnedSlot(%d).IsSet() = false", tt.index)
		}
		if got := s.OwnedIndex(); got != tt.index {
			t.Errorf("OwnedSlot(%d).OwnedIndex() = %d", tt.index, got)
		}
	}
}

func TestNodeSlotShared(t *testing.T) {
	tests := []struct {
		placeholder int32
		want        NodeSlot
	}{
		{0, -1},
		{1, -2},
		{7, -8},
	}

	for _, tt := range tests {
		s := SharedSlot(tt.placeholder)
		if s != tt.want {
			t.Errorf("SharedSlot(%d) = %d, want %d", tt.placeholder, s, tt.want)
		}
		if s.Kind() != SlotShared {
			t.Errorf("SharedSlot(%d).Kind() = %v, want shared", tt.placeholder, s.Kind())
		}
		if got := s.SharedIndex(); got != tt.placeholder {
			t.Errorf("SharedSlot(%d).SharedIndex() = %d", tt.placeholder, got)
		}
	}
}

func TestNodeSlotUnset(t *testing.T) {
	var s NodeSlot = UnsetSlot
	if s.IsSet() {
		t.Error("UnsetSlot.IsSet() = true")
	}
	if s.Kind() != SlotUnset {
		t.Errorf("UnsetSlot.Kind() = %v, want unset", s.Kind())
	}

	// 零是合法的拥有索引，不是哨兵
	zero := OwnedSlot(0)
	if !zero.IsSet() || zero.Kind() != SlotOwned {
		t.Error("OwnedSlot(0) must be a set, owned slot")
	}
}

func TestNodeSlotString(t *testing.T) {
	tests := []struct {
		s    NodeSlot
		want string
	}{
		{OwnedSlot(3), "owned(3)"},
		{SharedSlot(5), "shared(5)"},
		{UnsetSlot, "unset"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("NodeSlot(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
