// Package activity answers "how long has this room been quiet" from a
// room's transcript, and decides whether the room needs a thawing notice.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thawbot/thawbot/config"
	"github.com/thawbot/thawbot/transcript"
)

// ErrUndetermined means the backward walk exhausted the room's full history
// without meeting the requested signal. It is distinct from an empty room
// and from a fetch failure.
var ErrUndetermined = errors.New("history exhausted before signal requirements were met")

// Options tune one qualifying-message scan.
type Options struct {
	// MinUsers is the number of distinct qualifying authors required
	// before the scan may stop.
	MinUsers int

	// MinMessages is the number of accumulated messages required before
	// the scan may stop.
	MinMessages int

	// SkipSystem drops feed/system messages (negative user ids) from the
	// walk entirely.
	SkipSystem bool

	// BotID, when non-zero, enables the quiet-window gap detector: two of
	// the bot's own posts separated by a plausible cycle of silence stop
	// the scan immediately.
	BotID int

	// QuietMin and QuietMax bound the gap detector. A gap qualifies when
	// it is strictly greater than QuietMin and strictly less than
	// QuietMax.
	QuietMin time.Duration
	QuietMax time.Duration
}

// DefaultOptions matches a plain "newest genuine message" scan.
func DefaultOptions() Options {
	return Options{
		MinUsers:    1,
		MinMessages: 1,
		SkipSystem:  true,
		QuietMin:    7 * 24 * time.Hour,
		QuietMax:    15 * 24 * time.Hour,
	}
}

// Result is the outcome of a qualifying-message scan.
type Result struct {
	// Messages holds the accumulated messages, newest first.
	Messages []transcript.Message

	// GapDetected is set when the scan stopped because two of the bot's
	// own posts bracketed a quiet window, rather than because the generic
	// user/message quota was met.
	GapDetected bool
}

// Scanner runs activity scans over the fetch/parse pipeline.
type Scanner struct {
	Client *transcript.Client
}

// LatestQualifying walks room's transcript newest-first until the options'
// stopping rules are satisfied. It checks room liveness first; frozen and
// deleted rooms surface as transcript.RoomUnavailableError before any
// paging happens. Exhausting history without satisfying a stopping rule
// returns ErrUndetermined.
func (s *Scanner) LatestQualifying(ctx context.Context, room config.Room, opts Options) (*Result, error) {
	if err := s.Client.CheckRoomAvailable(ctx, room.Server, room.ID); err != nil {
		return nil, err
	}

	res := &Result{}
	users := make(map[int]bool)

	// Chronologically the *next* bot message, since the walk runs
	// backward in time.
	var nextBot *transcript.Message

	stream := s.Client.Messages(room.Server, room.ID)
	for {
		msg, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if msg.IsSystem() && opts.SkipSystem {
			continue
		}

		res.Messages = append(res.Messages, msg)

		if opts.BotID != 0 && msg.UserID == opts.BotID {
			if nextBot != nil {
				gap := nextBot.When.Sub(msg.When)
				if gap > opts.QuietMin && gap < opts.QuietMax {
					slog.Info("quiet window between own posts",
						slog.String("room", room.Key()),
						slog.Time("earlier", msg.When), slog.Time("later", nextBot.When),
						slog.Duration("gap", gap))
					res.GapDetected = true
					return res, nil
				}
				slog.Debug("own-post gap outside window",
					slog.String("room", room.Key()), slog.Duration("gap", gap))
			}
			bot := msg
			nextBot = &bot
		}

		users[msg.UserID] = true
		if len(users) >= opts.MinUsers && len(res.Messages) >= opts.MinMessages {
			slog.Info("scan satisfied",
				slog.String("room", room.Key()), slog.String("page", msg.PageURL),
				slog.Int("messages", len(res.Messages)), slog.Int("users", len(users)))
			return res, nil
		}
	}

	slog.Warn("scan exhausted history",
		slog.String("room", room.Key()),
		slog.Int("messages", len(res.Messages)), slog.Int("users", len(users)))
	return nil, ErrUndetermined
}

// MostRecent returns the newest genuine (non-system) message in room, or
// ErrUndetermined for a room whose whole history holds none.
func (s *Scanner) MostRecent(ctx context.Context, room config.Room) (transcript.Message, error) {
	opts := DefaultOptions()
	opts.BotID = room.BotID
	res, err := s.LatestQualifying(ctx, room, opts)
	if err != nil {
		return transcript.Message{}, err
	}
	return res.Messages[0], nil
}

// FindPriorPresence searches room for earlier posts by the room's bot
// identity, trying phrases in priority order with a pacing pause between
// queries. It returns the newest hit's permalink, or "" when the bot has
// never announced itself there.
func (s *Scanner) FindPriorPresence(ctx context.Context, room config.Room, phrases []string) (string, error) {
	if room.BotID == 0 {
		return "", nil
	}
	for i, phrase := range phrases {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.Client.SearchDelay):
			}
		}
		url, err := s.Client.Search(ctx, room.Server, room.ID, room.BotID, phrase)
		if err != nil {
			return "", err
		}
		if url != "" {
			return url, nil
		}
	}
	return "", nil
}
