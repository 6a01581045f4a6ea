package models

import "testing"

func TestDirectRoomID(t *testing.T) {
	if DirectRoomID("b", "a") != DirectRoomID("a", "b") {
		t.Error("direct room id must not depend on argument order")
	}
	if got := DirectRoomID("u2", "u1"); got != "dm_u1_u2" {
		t.Errorf("expected dm_u1_u2, got %s", got)
	}
}

func TestParseDirectRoomID(t *testing.T) {
	tests := []struct {
		name   string
		roomID string
		a, b   string
		ok     bool
	}{
		{"Valid", "dm_u1_u2", "u1", "u2", true},
		{"Uuids", "dm_0b1c-aa_ff3d-01", "0b1c-aa", "ff3d-01", true},
		{"Channel", "general", "", "", false},
		{"Missing half", "dm_u1_", "", "", false},
		{"Too many parts", "dm_a_b_c", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, ok := ParseDirectRoomID(tt.roomID)
			if ok != tt.ok || a != tt.a || b != tt.b {
				t.Errorf("ParseDirectRoomID(%q) = %q, %q, %v", tt.roomID, a, b, ok)
			}
		})
	}
}
