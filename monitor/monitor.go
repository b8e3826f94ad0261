// Package monitor drives the scan: every configured room is visited in
// strict sequence, assessed for staleness, and thawed when needed. Results
// are narrated into the home room and recorded for observability.
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/thawbot/thawbot/activity"
	"github.com/thawbot/thawbot/chat"
	"github.com/thawbot/thawbot/config"
	"github.com/thawbot/thawbot/db"
	"github.com/thawbot/thawbot/telemetry"
	"github.com/thawbot/thawbot/transcript"
)

const selfLink = "https://github.com/thawbot/thawbot"

// ScanReport is the per-room outcome of one run, read-only to callers.
type ScanReport struct {
	Room       config.Room         `json:"room"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Latest     *transcript.Message `json:"latest,omitempty"`
	Age        time.Duration       `json:"age"`
	Decision   string              `json:"decision"`
	Noticed    bool                `json:"noticed"`
	Error      string              `json:"error,omitempty"`
}

// RunReport aggregates one full scan.
type RunReport struct {
	RunID      string       `json:"run_id"`
	Note       string       `json:"note"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Scans      []ScanReport `json:"scans"`
	Failed     []string     `json:"failed,omitempty"`
}

// Monitor owns one bot run's collaborators.
type Monitor struct {
	Cfg      *config.Config
	Scanner  *activity.Scanner
	Registry *chat.Registry
	DB       *sql.DB // nil disables history recording

	// Now is the clock, swappable in tests.
	Now func() time.Time

	mu      sync.Mutex
	lastRun *RunReport
}

// New wires a Monitor with the real clock.
func New(cfg *config.Config, scanner *activity.Scanner, registry *chat.Registry, database *sql.DB) *Monitor {
	return &Monitor{Cfg: cfg, Scanner: scanner, Registry: registry, DB: database, Now: time.Now}
}

// LastRun returns the most recent run report, or nil before the first scan.
func (m *Monitor) LastRun() *RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

func (m *Monitor) thresholds() activity.Thresholds {
	return activity.Thresholds{
		Hard:       m.Cfg.HardThreshold,
		Aggressive: m.Cfg.AggressiveThreshold,
		QuietMin:   m.Cfg.QuietMin,
		QuietMax:   m.Cfg.QuietMax,
	}
}

// ScanRooms visits every monitored room once. A room's failure never stops
// the others; the aggregate error names every failed room and is returned
// only after all rooms were attempted.
func (m *Monitor) ScanRooms(ctx context.Context, note string) error {
	runID := uuid.New().String()
	ctx = telemetry.WithCorrelation(ctx, runID)
	log := telemetry.LoggerWithCorr(ctx)

	run := &RunReport{RunID: runID, Note: note, StartedAt: m.Now()}
	defer func() {
		if err := m.Registry.Close(ctx); err != nil {
			log.Warn("chat client teardown", slog.Any("err", err))
		}
	}()

	m.report(ctx, fmt.Sprintf("[Thawbot](%s) %s on %s", selfLink, note, m.Cfg.Nodename), false)

	th := m.thresholds()
	stale := 0
	for _, room := range m.Cfg.Rooms {
		if room.Role == config.RoleHome {
			continue
		}
		if ctx.Err() != nil {
			run.Failed = append(run.Failed, room.Key())
			continue
		}

		sr := m.scanRoom(ctx, room, th)
		run.Scans = append(run.Scans, sr)
		if sr.Error != "" {
			run.Failed = append(run.Failed, room.Key())
		}
		if sr.Noticed {
			stale++
		}
		m.record(ctx, runID, sr)
	}

	run.FinishedAt = m.Now()
	telemetry.LastRunUnix.Set(float64(run.FinishedAt.Unix()))
	telemetry.StaleRooms.Set(float64(stale))

	m.mu.Lock()
	m.lastRun = run
	m.mu.Unlock()

	if len(run.Failed) > 0 {
		return fmt.Errorf("scan failed for %d room(s): %s", len(run.Failed), strings.Join(run.Failed, ", "))
	}
	return nil
}

// scanRoom assesses one room and posts a notice when it is about to
// freeze. All errors are captured in the report, never propagated.
func (m *Monitor) scanRoom(ctx context.Context, room config.Room, th activity.Thresholds) ScanReport {
	telemetry.RoomsScanned.Inc()
	ctx, span := telemetry.StartSpan(ctx, "monitor", "scan-room",
		attribute.String("room.server", room.Server),
		attribute.Int("room.id", room.ID))
	defer span.End()

	sr := ScanReport{Room: room, StartedAt: m.Now()}
	assessment, err := m.Scanner.Assess(ctx, room, th, m.Now())
	sr.FinishedAt = m.Now()
	telemetry.ScanDuration.Observe(sr.FinishedAt.Sub(sr.StartedAt).Seconds())

	if err != nil {
		telemetry.RoomScanFailures.Inc()
		telemetry.RecordError(span, err)
		sr.Error = err.Error()
		m.report(ctx, fmt.Sprintf("[%s](%s): scan failed: %v", room.Name, room.URL(), err), true)
		return sr
	}
	telemetry.SetSpanSuccess(span)

	sr.Latest = assessment.Latest
	sr.Age = assessment.Age
	sr.Decision = assessment.Decision.String()

	switch {
	case assessment.Latest == nil:
		m.report(ctx, fmt.Sprintf("[%s](%s): no qualifying activity in the entire history", room.Name, room.URL()), true)
	default:
		m.report(ctx, fmt.Sprintf("[%s](%s): latest activity %s (%s ago)",
			room.Name, assessment.Latest.Link,
			assessment.Latest.When.Format("2006-01-02 15:04"), humanAge(assessment.Age)), false)
	}

	if assessment.Decision == activity.DecisionHealthy {
		return sr
	}

	posted, err := m.notice(ctx, room, assessment.Decision)
	if err != nil {
		telemetry.RoomScanFailures.Inc()
		sr.Error = err.Error()
		m.report(ctx, fmt.Sprintf("[%s](%s): notice failed: %v", room.Name, room.URL(), err), true)
		return sr
	}
	sr.Noticed = posted
	return sr
}

// noticeCooldown suppresses a second notice into a room while the
// transcript may not yet show the first one. Transcript pages render
// lazily, so back-to-back runs could otherwise double-post.
const noticeCooldown = 24 * time.Hour

// notice posts a thawing message into room, prefixing an introduction when
// the bot has no trace of a prior visit there. It reports whether a
// message was actually posted; a recent recorded notice holds it back.
func (m *Monitor) notice(ctx context.Context, room config.Room, decision activity.Decision) (bool, error) {
	if m.DB != nil {
		last, err := db.LastNotice(ctx, m.DB, room.Server, room.ID)
		if err != nil {
			slog.Warn("failed to read notice history", slog.String("room", room.Key()), slog.Any("err", err))
		} else if !last.IsZero() && m.Now().Sub(last) < noticeCooldown {
			m.report(ctx, fmt.Sprintf("%s: notice already posted %s ago, holding off", room.Name, humanAge(m.Now().Sub(last))), true)
			return false, nil
		}
	}

	text := chat.NoticeText()
	if room.BotID != 0 {
		prior, err := m.Scanner.FindPriorPresence(ctx, room, chat.PresencePhrases())
		if err != nil {
			// Presence is a nicety; a failed search should not block the
			// thaw itself.
			slog.Warn("presence search failed", slog.String("room", room.Key()), slog.Any("err", err))
		} else if prior == "" {
			text = chat.Intro + text
		}
	}

	if err := m.send(ctx, room, text); err != nil {
		return false, err
	}
	telemetry.NoticesSent.Inc()

	reason := "age threshold exceeded"
	if decision == activity.DecisionExpedited {
		reason = "quiet window detected, thawing early"
	}
	m.report(ctx, fmt.Sprintf("%s: %s; sent a thawing notice", room.Name, reason), true)

	if m.DB != nil {
		if err := db.RecordNotice(ctx, m.DB, room.Server, room.ID, text, m.Now()); err != nil {
			slog.Warn("failed to record notice", slog.String("room", room.Key()), slog.Any("err", err))
		}
	}
	return true, nil
}

// send posts text into room through the per-server client, then pauses to
// respect the platform's write rate limits (skipped in local mode).
func (m *Monitor) send(ctx context.Context, room config.Room, text string) error {
	sender, err := m.Registry.For(room.Server)
	if err != nil {
		return fmt.Errorf("chat client for %s: %w", room.Server, err)
	}
	if err := sender.Send(ctx, room.ID, text); err != nil {
		return err
	}
	if !m.Cfg.Local {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Cfg.SendDelay):
		}
	}
	return nil
}

// report narrates a status line into the home room and the log. Notable
// lines are copied to every cc room. Reporting failures are logged and
// swallowed; narration must never fail a scan.
func (m *Monitor) report(ctx context.Context, line string, notable bool) {
	telemetry.LoggerWithCorr(ctx).Info(line)

	targets := make([]config.Room, 0, 2)
	if home := m.Cfg.HomeRoom(); home != nil {
		targets = append(targets, *home)
	}
	if notable {
		targets = append(targets, m.Cfg.CCRooms()...)
	}
	for _, room := range targets {
		if err := m.send(ctx, room, line); err != nil {
			slog.Warn("status line delivery failed",
				slog.String("room", room.Key()), slog.Any("err", err))
		}
	}
}

func (m *Monitor) record(ctx context.Context, runID string, sr ScanReport) {
	if m.DB == nil {
		return
	}
	row := db.ScanRow{
		RunID:      runID,
		Server:     sr.Room.Server,
		RoomID:     sr.Room.ID,
		RoomName:   sr.Room.Name,
		AgeSeconds: int64(sr.Age / time.Second),
		Decision:   sr.Decision,
		Error:      sr.Error,
		StartedAt:  sr.StartedAt,
		FinishedAt: sr.FinishedAt,
	}
	if sr.Latest != nil {
		row.LatestAt = sr.Latest.When
	}
	if err := db.RecordScan(ctx, m.DB, row); err != nil {
		slog.Warn("failed to record scan", slog.String("room", sr.Room.Key()), slog.Any("err", err))
	}
}

// humanAge renders a duration as days and hours, the resolution operators
// actually care about.
func humanAge(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	switch {
	case days == 0:
		return fmt.Sprintf("%dh", hours)
	case hours == 0:
		return fmt.Sprintf("%dd", days)
	default:
		return fmt.Sprintf("%dd%dh", days, hours)
	}
}

// Start runs the scan on an interval until ctx is cancelled. The first
// scan happens immediately.
func (m *Monitor) Start(ctx context.Context) {
	interval := m.Cfg.ScanInterval
	slog.Info("monitor started", slog.Duration("interval", interval))

	if err := m.ScanRooms(ctx, "startup run"); err != nil {
		slog.Error("scan finished with failures", slog.Any("err", err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped")
			return
		case <-ticker.C:
			if err := m.ScanRooms(ctx, "scheduled run"); err != nil {
				slog.Error("scan finished with failures", slog.Any("err", err))
			}
		}
	}
}
