package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WebSender posts through the chat server's web form endpoints. It expects
// an HTTP client that already carries an authenticated session (cookie
// jar); obtaining that session is the caller's problem. Each send is a
// single attempt.
type WebSender struct {
	Server     string
	HTTPClient *http.Client

	// Scheme defaults to https; tests override it.
	Scheme string

	mu   sync.Mutex
	fkey string
}

func (w *WebSender) scheme() string {
	if w.Scheme != "" {
		return w.Scheme
	}
	return "https"
}

func (w *WebSender) http() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// ensureFkey scrapes the anti-forgery key the post endpoint requires. The
// key is stable for the session, so it is fetched once per sender.
func (w *WebSender) ensureFkey(ctx context.Context, room int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fkey != "" {
		return w.fkey, nil
	}

	addr := fmt.Sprintf("%s://%s/rooms/%d", w.scheme(), w.Server, room)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return "", err
	}
	resp, err := w.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fkey fetch %s: HTTP %d", addr, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	fkey, ok := doc.Find("input#fkey").First().Attr("value")
	if !ok || fkey == "" {
		return "", fmt.Errorf("no fkey on %s", addr)
	}
	w.fkey = fkey
	return fkey, nil
}

func (w *WebSender) Send(ctx context.Context, room int, text string) error {
	fkey, err := w.ensureFkey(ctx, room)
	if err != nil {
		return fmt.Errorf("send to %s:%d: %w", w.Server, room, err)
	}

	form := url.Values{"fkey": {fkey}, "text": {text}}
	addr := fmt.Sprintf("%s://%s/chats/%d/messages/new", w.scheme(), w.Server, room)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.http().Do(req)
	if err != nil {
		return fmt.Errorf("send to %s:%d: %w", w.Server, room, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send to %s:%d: HTTP %d", w.Server, room, resp.StatusCode)
	}
	return nil
}

func (w *WebSender) Close(ctx context.Context) error {
	// The session cookie outlives the run on purpose; there is no
	// logout endpoint worth calling for a read-mostly bot.
	return nil
}

// NewWebFactory returns a Factory producing WebSenders that attach the
// given session cookie header to every request. The cookie comes from an
// account logged in out of band; this package never performs the login
// dance itself.
func NewWebFactory(cookie string) Factory {
	return func(server string) (Sender, error) {
		return &WebSender{
			Server: server,
			HTTPClient: &http.Client{
				Timeout:   30 * time.Second,
				Transport: &cookieTransport{cookie: cookie},
			},
		}, nil
	}
}

// cookieTransport injects the session cookie into outgoing requests.
type cookieTransport struct {
	cookie string
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.cookie != "" {
		req.Header.Set("Cookie", t.cookie)
	}
	return http.DefaultTransport.RoundTrip(req)
}
