package activity

import (
	"context"
	"errors"
	"time"

	"github.com/thawbot/thawbot/config"
	"github.com/thawbot/thawbot/transcript"
)

// Decision is the staleness verdict for one room.
type Decision int

const (
	// DecisionHealthy needs no action.
	DecisionHealthy Decision = iota
	// DecisionStale crossed the hard age threshold.
	DecisionStale
	// DecisionExpedited is stale early: the room sits between the
	// aggressive and hard thresholds and the gap detector found a quiet
	// window between the bot's own posts.
	DecisionExpedited
)

func (d Decision) String() string {
	switch d {
	case DecisionHealthy:
		return "healthy"
	case DecisionStale:
		return "stale"
	case DecisionExpedited:
		return "expedited"
	default:
		return "unknown"
	}
}

// Thresholds tune the staleness policy.
type Thresholds struct {
	// Hard is the age beyond which a room is stale, full stop.
	Hard time.Duration

	// Aggressive is the age from which the gap detector runs; a detected
	// quiet window flags the room before Hard is reached.
	Aggressive time.Duration

	QuietMin time.Duration
	QuietMax time.Duration
}

// DefaultThresholds mirrors the platform's 14-day freeze schedule with some
// slack.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Hard:       12 * 24 * time.Hour,
		Aggressive: 6 * 24 * time.Hour,
		QuietMin:   7 * 24 * time.Hour,
		QuietMax:   15 * 24 * time.Hour,
	}
}

// Assessment is the full outcome of assessing one room.
type Assessment struct {
	// Latest is the newest genuine message, nil when the room's history
	// yielded none.
	Latest *transcript.Message

	// Age is now minus Latest.When. With no qualifying message it is set
	// larger than any threshold.
	Age time.Duration

	Decision    Decision
	GapDetected bool
}

// Gap-detector quota: a room with this many messages from this many
// distinct users since the bot's last visit is alive regardless of age.
const (
	gapMinUsers    = 2
	gapMinMessages = 15
)

// Assess determines whether room needs a thawing notice. Ages are compared
// strictly: a room exactly at the hard threshold is not yet stale.
func (s *Scanner) Assess(ctx context.Context, room config.Room, th Thresholds, now time.Time) (*Assessment, error) {
	latest, err := s.MostRecent(ctx, room)
	if errors.Is(err, ErrUndetermined) {
		// No qualifying message in the room's entire history; older than
		// every threshold by definition.
		return &Assessment{Age: th.Hard + 24*time.Hour, Decision: DecisionStale}, nil
	}
	if err != nil {
		return nil, err
	}

	a := &Assessment{Latest: &latest, Age: now.Sub(latest.When), Decision: DecisionHealthy}
	switch {
	case a.Age > th.Hard:
		a.Decision = DecisionStale
	case a.Age > th.Aggressive && room.BotID != 0:
		opts := Options{
			MinUsers:    gapMinUsers,
			MinMessages: gapMinMessages,
			SkipSystem:  true,
			BotID:       room.BotID,
			QuietMin:    th.QuietMin,
			QuietMax:    th.QuietMax,
		}
		res, err := s.LatestQualifying(ctx, room, opts)
		if errors.Is(err, ErrUndetermined) {
			// Too little history to prove anything either way; the hard
			// threshold will catch the room eventually.
			return a, nil
		}
		if err != nil {
			return nil, err
		}
		if res.GapDetected {
			a.Decision = DecisionExpedited
			a.GapDetected = true
		}
	}
	return a, nil
}
