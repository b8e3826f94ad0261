package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/thawbot/thawbot/telemetry"
)

// Page is one fetched transcript page. Pages are ephemeral; nothing here is
// persisted.
type Page struct {
	Server string
	Room   int
	URL    string
	Doc    *goquery.Document

	// Scheme the page was fetched over; message permalinks reuse it.
	// Empty means https.
	Scheme string

	// Date is the calendar date from the page title.
	Date time.Time

	// PrevURL links to the next older page. Empty means this page is the
	// oldest the platform has.
	PrevURL string
}

// Pager walks a room's transcript backward in time. Each Next call issues
// one network request. A Pager is single-use: a new walk starts from
// Client.Walk, and there is no resuming a walk that errored.
type Pager struct {
	client *Client
	server string
	room   int
	next   string
	prev   *Page
	done   bool
}

// Walk starts a backward walk over the transcript of room on server,
// beginning at the newest page.
func (c *Client) Walk(server string, room int) *Pager {
	return &Pager{
		client: c,
		server: server,
		room:   room,
		next:   fmt.Sprintf("%s://%s/transcript/%d", c.scheme(), server, room),
	}
}

// HasNext reports whether another (older) page is available.
func (p *Pager) HasNext() bool { return !p.done }

// Next fetches the next older page, blocking for the client's page delay
// first on every pull after the first. The delay respects the platform's
// rate limits and must stay in place even when the walk feels slow.
func (p *Pager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, nil
	}
	if p.prev != nil {
		if err := pause(ctx, p.client.PageDelay); err != nil {
			return nil, err
		}
	}

	url := p.next
	slog.Info("fetching transcript page", slog.String("url", url))
	doc, err := p.client.document(ctx, url)
	if err != nil {
		p.done = true
		return nil, err
	}
	telemetry.PagesFetched.Inc()

	if doc.Find("#transcript").Length() == 0 {
		p.done = true
		return nil, &MalformedPageError{URL: url, Reason: "no transcript container"}
	}

	date, err := pageDate(doc, url)
	if err != nil {
		p.done = true
		return nil, err
	}

	page := &Page{Server: p.server, Room: p.room, URL: url, Doc: doc, Scheme: p.client.scheme(), Date: date}

	// The walk is backward in time; a page claiming to be newer than the
	// page that linked to it means the platform served us garbage.
	if p.prev != nil && page.Date.After(p.prev.Date) {
		p.done = true
		return nil, &MalformedPageError{
			URL:    url,
			Reason: fmt.Sprintf("page dated %s is newer than the page linking to it (%s)", page.Date.Format("2006-01-02"), p.prev.Date.Format("2006-01-02")),
		}
	}

	if href, ok := doc.Find("#main a[rel=prev]").First().Attr("href"); ok {
		page.PrevURL = fmt.Sprintf("%s://%s%s", p.client.scheme(), p.server, href)
		p.next = page.PrevURL
	} else {
		p.done = true
	}
	p.prev = page
	return page, nil
}
