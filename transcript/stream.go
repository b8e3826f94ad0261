package transcript

import (
	"context"
	"log/slog"
)

// Stream yields a room's messages newest-first, pulling older transcript
// pages on demand. Consumption is strictly sequential; there is no
// prefetching, so the inter-page pacing delay stays intact.
type Stream struct {
	pager *Pager
	buf   []Message
}

// Messages starts a backward message walk over the transcript of room on
// server.
func (c *Client) Messages(server string, room int) *Stream {
	return &Stream{pager: c.Walk(server, room)}
}

// Next returns the next older message. The second return is false once the
// transcript's full history has been walked.
func (s *Stream) Next(ctx context.Context) (Message, bool, error) {
	for len(s.buf) == 0 {
		if !s.pager.HasNext() {
			return Message{}, false, nil
		}
		page, err := s.pager.Next(ctx)
		if err != nil {
			return Message{}, false, err
		}
		if page == nil {
			return Message{}, false, nil
		}
		s.buf = ParsePage(page)
		if len(s.buf) == 0 {
			// The page fetched fine but holds no message blocks; keep
			// walking older pages.
			slog.Warn("no messages found in page", slog.String("url", page.URL))
		}
	}
	msg := s.buf[0]
	s.buf = s.buf[1:]
	return msg, true, nil
}
