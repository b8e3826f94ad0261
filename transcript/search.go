package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Search looks through room on server for messages by user containing
// phrase and returns the permalink of the newest hit, or "" when nothing
// matched.
func (c *Client) Search(ctx context.Context, server string, room, user int, phrase string) (string, error) {
	slog.Info("searching room",
		slog.String("server", server), slog.Int("room", room),
		slog.Int("user", user), slog.String("phrase", phrase))

	addr := fmt.Sprintf("%s://%s/search?q=%s&user=%d&room=%d",
		c.scheme(), server, url.QueryEscape(phrase), user, room)
	doc, err := c.document(ctx, addr)
	if err != nil {
		return "", err
	}

	content := doc.Find("#content")
	if content.Length() == 0 {
		return "", &MalformedPageError{URL: addr, Reason: "no content container in search results"}
	}

	if href, ok := content.Find(".messages a").First().Attr("href"); ok {
		return fmt.Sprintf("%s://%s%s", c.scheme(), server, href), nil
	}
	if noResults(content.Text()) {
		return "", nil
	}
	return "", &MalformedPageError{URL: addr, Reason: "search results without message link"}
}

// noResults reports whether text carries the platform's zero-hit marker.
// The check is boundary-aware: hit counts that merely end in zero, like
// "10 messages found", must not match.
func noResults(text string) bool {
	const marker = "0 messages found"
	for off := 0; ; {
		i := strings.Index(text[off:], marker)
		if i < 0 {
			return false
		}
		i += off
		if i == 0 || text[i-1] < '0' || text[i-1] > '9' {
			return true
		}
		off = i + 1
	}
}
