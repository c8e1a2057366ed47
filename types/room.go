package types

import (
	"sort"
	"strings"
	"time"
)

// RoomKeySeparator joins the sorted member ids into a room identifier.
const RoomKeySeparator = ":"

// Room is a durable entity identifying a fixed set of participants who
// exchange messages together. There is at most one Room per identifier.
type Room struct {
	Id             string          `json:"id" gorm:"primaryKey"`
	RoomIdentifier string          `json:"roomIdentifier" gorm:"uniqueIndex"`
	MemberIds      JSONStringSlice `json:"memberIds"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// RoomKey derives the canonical room identifier from a set of member ids:
// duplicates removed, members sorted lexicographically, joined with ":".
// The result depends on set membership only, not on argument order.
func RoomKey(memberIds []string) string {
	seen := make(map[string]struct{}, len(memberIds))
	members := make([]string, 0, len(memberIds))
	for _, id := range memberIds {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	sort.Strings(members)
	return strings.Join(members, RoomKeySeparator)
}

// RoomKeyMembers splits a canonical room identifier back into its member set.
func RoomKeyMembers(roomIdentifier string) []string {
	return strings.Split(roomIdentifier, RoomKeySeparator)
}
