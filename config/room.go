package config

import "fmt"

// Role tags a room's function in the monitoring run.
type Role string

const (
	// RoleNone marks an ordinary monitored room.
	RoleNone Role = ""
	// RoleHome marks the room receiving the bot's own status output. At
	// most one room carries this role, and it is not scanned for
	// staleness.
	RoleHome Role = "home"
	// RoleCC marks a room that receives copies of notable status lines.
	RoleCC Role = "cc"
)

// Room is one monitored chat room. Rooms are built once from configuration
// and read-only afterwards; per-scan timing lives with the scan report, not
// here.
type Room struct {
	Server string
	ID     int
	Name   string
	Role   Role

	// BotID is the bot's own user id on this room's server, used for
	// self-recognition in transcripts and presence searches. Zero means
	// unknown.
	BotID int
}

// URL returns the room's human-facing address.
func (r Room) URL() string {
	return fmt.Sprintf("https://%s/rooms/%d", r.Server, r.ID)
}

// Key identifies the room uniquely across servers.
func (r Room) Key() string {
	return fmt.Sprintf("%s:%d", r.Server, r.ID)
}
