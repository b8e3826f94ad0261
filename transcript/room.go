package transcript

import (
	"context"
	"fmt"
	"strings"
)

// Room-info page phrases that identify a dead room. The wording is part of
// the platform's rendered output and has been stable for years. A room
// reporting "Currently no feeds are being posted into this room." is fine;
// feeds are unrelated to whether the room accepts messages.
var unavailablePhrases = map[string]string{
	"Because this room is deleted, no feeds are being posted into this room.": ReasonDeleted,
	"Because this room is frozen, no feeds are being posted into this room.":  ReasonFrozen,
}

// CheckRoomAvailable consults the room's info page and returns a
// RoomUnavailableError when the room is frozen or deleted.
func (c *Client) CheckRoomAvailable(ctx context.Context, server string, room int) error {
	url := fmt.Sprintf("%s://%s/rooms/info/%d/?tab=feeds", c.scheme(), server, room)
	doc, err := c.document(ctx, url)
	if err != nil {
		return err
	}

	text := doc.Find("body").Text()
	for phrase, reason := range unavailablePhrases {
		if strings.Contains(text, phrase) {
			return &RoomUnavailableError{Server: server, Room: room, Reason: reason}
		}
	}
	return nil
}
