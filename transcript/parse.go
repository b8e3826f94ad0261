package transcript

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Transcript page titles end in "... - YYYY-MM-DD", optionally followed by
// a page-count suffix like " (page 2 of 5)".
const pageDateLayout = "2006-01-02"

// Message timestamps render as e.g. "4:41 PM".
const clockLayout = "3:04 PM"

// pageDate extracts the calendar date from the document title. A title
// without a parseable date makes the whole page unusable.
func pageDate(doc *goquery.Document, url string) (time.Time, error) {
	title := doc.Find("title").First().Text()
	if i := strings.Index(title, " (page "); i >= 0 {
		title = title[:i]
	}
	i := strings.LastIndex(title, " - ")
	if i < 0 {
		return time.Time{}, &MalformedPageError{URL: url, Reason: fmt.Sprintf("no date in title %q", title)}
	}
	date, err := time.Parse(pageDateLayout, title[i+len(" - "):])
	if err != nil {
		return time.Time{}, &MalformedPageError{URL: url, Reason: fmt.Sprintf("bad date in title %q", title)}
	}
	return date, nil
}

// ParsePage extracts the messages of one transcript page, newest first.
// A page with no message blocks yields an empty slice; that is a quiet day,
// not an error.
func ParsePage(p *Page) []Message {
	blocks := p.Doc.Find(".monologue")
	msgs := make([]Message, 0, blocks.Length())

	scheme := p.Scheme
	if scheme == "" {
		scheme = "https"
	}

	// Blocks appear in chronological page order; the walk wants them
	// newest first.
	for i := blocks.Length() - 1; i >= 0; i-- {
		block := blocks.Eq(i)

		when := p.Date // midnight sentinel when no timestamp marker exists
		if ts := block.Find(".timestamp").First(); ts.Length() > 0 {
			if clock, err := time.Parse(clockLayout, strings.TrimSpace(ts.Text())); err == nil {
				when = time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(),
					clock.Hour(), clock.Minute(), 0, 0, p.Date.Location())
			}
		}

		id, name := parseAuthor(block.Find(".username").First())

		link := p.URL
		if mid, ok := block.Find(".message").First().Attr("id"); ok && strings.HasPrefix(mid, "message-") {
			link = fmt.Sprintf("%s://%s/transcript/message/%s", scheme, p.Server, strings.TrimPrefix(mid, "message-"))
		}

		msgs = append(msgs, Message{
			Server:   p.Server,
			Room:     p.Room,
			PageURL:  p.URL,
			When:     when,
			UserID:   id,
			UserName: name,
			Text:     strings.TrimSpace(block.Find(".content").First().Text()),
			Link:     link,
		})
	}
	return msgs
}

// parseAuthor resolves the author block. The structured path is an author
// link whose target encodes id and handle, e.g. /users/3735529/smokedetector.
// Deactivated and placeholder accounts render as plain text like
// "user12716323"; those take the free-text path, degrading to id 0 when no
// number can be recovered.
func parseAuthor(sel *goquery.Selection) (int, string) {
	if a := sel.Find("a").First(); a.Length() > 0 {
		if href, ok := a.Attr("href"); ok {
			parts := strings.Split(strings.Trim(href, "/"), "/")
			if len(parts) >= 2 {
				name := parts[len(parts)-1]
				id, err := strconv.Atoi(parts[len(parts)-2])
				if err != nil {
					id = 0
				}
				return id, name
			}
		}
	}

	name := strings.TrimSpace(sel.Text())
	id := 0
	if strings.HasPrefix(name, "user") {
		if n, err := strconv.Atoi(name[len("user"):]); err == nil {
			id = n
		}
	}
	return id, name
}
