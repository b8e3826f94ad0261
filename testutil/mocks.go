package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockPlatform creates a test server that mocks the chat platform's HTML
// endpoints (transcripts, room info, search).
type MockPlatform struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockPlatform creates a new mock platform server.
func NewMockPlatform(t *testing.T) *MockPlatform {
	t.Helper()
	m := &MockPlatform{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Host returns the host:port of the mock server, usable as the server name
// in transcript and chat clients configured with the http scheme.
func (m *MockPlatform) Host() string {
	return strings.TrimPrefix(m.URL, "http://")
}

// MockHTML serves a fixed HTML document at path.
func (m *MockPlatform) MockHTML(path, html string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}

// FakeMsg describes one message block in a generated transcript page.
type FakeMsg struct {
	// TimeOfDay is the rendered clock, e.g. "4:41 PM". Empty omits the
	// timestamp marker entirely.
	TimeOfDay string
	UserID    int
	UserName  string
	// FreeText renders the author as plain text instead of a profile link,
	// the way deactivated accounts appear.
	FreeText  bool
	MessageID int
	Text      string
}

// TranscriptPage renders a transcript page the way the platform does.
// pageSuffix is appended to the title verbatim (e.g. " (page 2 of 5)") and
// prevHref, when non-empty, becomes the older-page link.
func TranscriptPage(roomName, date, pageSuffix, prevHref string, msgs []FakeMsg) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s - %s%s</title></head><body><div id=\"main\">", roomName, date, pageSuffix)
	if prevHref != "" {
		fmt.Fprintf(&b, "<a rel=\"prev\" href=\"%s\">older</a>", prevHref)
	}
	b.WriteString("<div id=\"transcript\">")
	for _, m := range msgs {
		b.WriteString("<div class=\"monologue\"><div class=\"signature\"><div class=\"username\">")
		if m.FreeText {
			b.WriteString(m.UserName)
		} else {
			fmt.Fprintf(&b, "<a href=\"/users/%d/%s\">%s</a>", m.UserID, m.UserName, m.UserName)
		}
		b.WriteString("</div></div><div class=\"messages\">")
		if m.TimeOfDay != "" {
			fmt.Fprintf(&b, "<div class=\"timestamp\">%s</div>", m.TimeOfDay)
		}
		if m.MessageID != 0 {
			fmt.Fprintf(&b, "<div class=\"message\" id=\"message-%d\">", m.MessageID)
		} else {
			b.WriteString("<div class=\"message\">")
		}
		fmt.Fprintf(&b, "<div class=\"content\">%s</div></div></div></div>", m.Text)
	}
	b.WriteString("</div></div></body></html>")
	return b.String()
}

// RoomInfoPage renders a room-info feeds tab. notice is the feed status
// sentence, e.g. the frozen or deleted phrasing.
func RoomInfoPage(roomName, notice string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body><div id=\"main\"><p>%s</p></div></body></html>",
		roomName, notice)
}

// SearchResultsPage renders a search results page. An empty href renders
// the no-results marker instead of a hit.
func SearchResultsPage(href, text string) string {
	if href == "" {
		return "<html><body><div id=\"content\"><p>0 messages found</p></div></body></html>"
	}
	return fmt.Sprintf("<html><body><div id=\"content\"><div class=\"messages\"><a href=%q>%s</a></div></div></body></html>",
		href, text)
}
