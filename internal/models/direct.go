package models

import (
	"fmt"
	"sort"
	"strings"
)

const directRoomPrefix = "dm_"

// DirectRoomID returns the deterministic id of the direct room between two users.
func DirectRoomID(u1, u2 string) string {
	ids := []string{u1, u2}
	sort.Strings(ids)
	return fmt.Sprintf("%s%s_%s", directRoomPrefix, ids[0], ids[1])
}

// ParseDirectRoomID splits a direct room id into its two participants.
func ParseDirectRoomID(roomID string) (string, string, bool) {
	rest, ok := strings.CutPrefix(roomID, directRoomPrefix)
	if !ok {
		return "", "", false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
