// Package transcript fetches and parses the public transcript pages of a
// chat room. A transcript is a paginated daily log; the package walks it
// backward in time, one page per network request, and turns each page into
// structured messages ordered newest-first.
package transcript

import "time"

// Message is one parsed transcript entry.
type Message struct {
	Server   string    `json:"server"`
	Room     int       `json:"room"`
	PageURL  string    `json:"page_url"`
	When     time.Time `json:"when"`
	UserID   int       `json:"user_id"`
	UserName string    `json:"user_name"`
	Text     string    `json:"text"`
	Link     string    `json:"link"`
}

// IsSystem reports whether the message came from a feed or another platform
// mechanism rather than a person. Feed authors always have negative ids.
func (m Message) IsSystem() bool { return m.UserID < 0 }
