package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thawbot/thawbot/activity"
	"github.com/thawbot/thawbot/chat"
	"github.com/thawbot/thawbot/config"
	"github.com/thawbot/thawbot/db"
	"github.com/thawbot/thawbot/testutil"
	"github.com/thawbot/thawbot/transcript"
)

const alivePhrase = "Messages posted by feeds will appear here."

// recordingSender captures everything a run posts, keyed by room id.
type recordingSender struct {
	mu   sync.Mutex
	sent map[int][]string
}

func (r *recordingSender) Send(ctx context.Context, room int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[int][]string)
	}
	r.sent[room] = append(r.sent[room], text)
	return nil
}

func (r *recordingSender) Close(ctx context.Context) error { return nil }

func (r *recordingSender) lines(room int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[room]
}

func testMonitor(m *testutil.MockPlatform, rooms []config.Room) (*Monitor, *recordingSender) {
	cfg := &config.Config{
		Nodename: "testhost",
		Local:    true,
		Rooms:    rooms,
	}
	cfg.HardThreshold = 12 * 24 * time.Hour
	cfg.AggressiveThreshold = 6 * 24 * time.Hour
	cfg.QuietMin = 7 * 24 * time.Hour
	cfg.QuietMax = 15 * 24 * time.Hour

	scanner := &activity.Scanner{Client: &transcript.Client{
		Scheme:      "http",
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
	}}
	sender := &recordingSender{}
	registry := chat.NewRegistry(func(server string) (chat.Sender, error) {
		return sender, nil
	})

	mon := New(cfg, scanner, registry, nil)
	mon.Now = func() time.Time { return time.Date(2024, 3, 28, 12, 0, 0, 0, time.UTC) }
	return mon, sender
}

func TestScanRoomsHealthyRun(t *testing.T) {
	m := testutil.NewMockPlatform(t)
	m.MockHTML("/rooms/info/5/", testutil.RoomInfoPage("Sandbox", alivePhrase))
	m.MockHTML("/transcript/5", testutil.TranscriptPage(
		"Sandbox", "2024-03-27", "", "", []testutil.FakeMsg{
			{TimeOfDay: "1:00 PM", UserID: 101, UserName: "alice", MessageID: 1, Text: "recent chatter"},
		}))

	rooms := []config.Room{
		{Server: m.Host(), ID: 1, Name: "Den", Role: config.RoleHome},
		{Server: m.Host(), ID: 5, Name: "Sandbox"},
	}
	mon, sender := testMonitor(m, rooms)

	if err := mon.ScanRooms(context.Background(), "test run"); err != nil {
		t.Fatalf("ScanRooms: %v", err)
	}

	home := sender.lines(1)
	if len(home) != 2 {
		t.Fatalf("home room got %d lines, want startup + status: %v", len(home), home)
	}
	if !strings.Contains(home[0], "test run on testhost") {
		t.Errorf("no startup line: %q", home[0])
	}
	if !strings.Contains(home[1], "Sandbox") || !strings.Contains(home[1], "latest activity") {
		t.Errorf("no status line: %q", home[1])
	}
	if got := sender.lines(5); len(got) != 0 {
		t.Errorf("healthy room received messages: %v", got)
	}

	run := mon.LastRun()
	if run == nil || len(run.Scans) != 1 {
		t.Fatalf("run report missing: %+v", run)
	}
	if run.Scans[0].Decision != "healthy" || run.Scans[0].Noticed {
		t.Errorf("scan report wrong: %+v", run.Scans[0])
	}
}

func TestScanRoomsThawsStaleRoom(t *testing.T) {
	m := testutil.NewMockPlatform(t)
	m.MockHTML("/rooms/info/5/", testutil.RoomInfoPage("Sandbox", alivePhrase))
	// Latest activity two weeks before the fixed clock.
	m.MockHTML("/transcript/5", testutil.TranscriptPage(
		"Sandbox", "2024-03-14", "", "", []testutil.FakeMsg{
			{TimeOfDay: "1:00 PM", UserID: 101, UserName: "alice", MessageID: 1, Text: "long ago"},
		}))

	// The cc room is monitored like any other; only the home room is
	// exempt from scanning.
	m.MockHTML("/rooms/info/9/", testutil.RoomInfoPage("Announcements", alivePhrase))
	m.MockHTML("/transcript/9", testutil.TranscriptPage(
		"Announcements", "2024-03-27", "", "", []testutil.FakeMsg{
			{TimeOfDay: "1:00 PM", UserID: 102, UserName: "bob", MessageID: 2, Text: "news"},
		}))

	rooms := []config.Room{
		{Server: m.Host(), ID: 1, Name: "Den", Role: config.RoleHome},
		{Server: m.Host(), ID: 9, Name: "Announcements", Role: config.RoleCC},
		{Server: m.Host(), ID: 5, Name: "Sandbox"},
	}
	mon, sender := testMonitor(m, rooms)

	if err := mon.ScanRooms(context.Background(), "test run"); err != nil {
		t.Fatalf("ScanRooms: %v", err)
	}

	notices := sender.lines(5)
	if len(notices) != 1 {
		t.Fatalf("stale room got %d messages, want 1 notice: %v", len(notices), notices)
	}

	var thawLine string
	for _, line := range sender.lines(1) {
		if strings.Contains(line, "thawing notice") {
			thawLine = line
		}
	}
	if !strings.Contains(thawLine, "age threshold exceeded") {
		t.Errorf("home room missing thaw narration: %q", thawLine)
	}
	// Notable lines are copied to the cc room, routine ones are not.
	cc := sender.lines(9)
	if len(cc) != 1 || !strings.Contains(cc[0], "thawing notice") {
		t.Errorf("cc room lines wrong: %v", cc)
	}

	run := mon.LastRun()
	if run.Scans[len(run.Scans)-1].Decision != "stale" || !run.Scans[len(run.Scans)-1].Noticed {
		t.Errorf("scan report wrong: %+v", run.Scans)
	}
}

func TestNoticeHeldAfterRecentNotice(t *testing.T) {
	database := testutil.SetupTestDB(t)

	// Unique room id per run keeps reruns against a shared database from
	// tripping over old notice rows.
	id := int(time.Now().UnixNano() % 1_000_000)

	m := testutil.NewMockPlatform(t)
	m.MockHTML(fmt.Sprintf("/rooms/info/%d/", id), testutil.RoomInfoPage("Sandbox", alivePhrase))
	// Latest activity two weeks before the fixed clock.
	m.MockHTML(fmt.Sprintf("/transcript/%d", id), testutil.TranscriptPage(
		"Sandbox", "2024-03-14", "", "", []testutil.FakeMsg{
			{TimeOfDay: "1:00 PM", UserID: 101, UserName: "alice", MessageID: 1, Text: "long ago"},
		}))

	rooms := []config.Room{
		{Server: m.Host(), ID: 1, Name: "Den", Role: config.RoleHome},
		{Server: m.Host(), ID: id, Name: "Sandbox"},
	}
	mon, sender := testMonitor(m, rooms)
	mon.DB = database

	if err := db.RecordNotice(context.Background(), database, m.Host(), id, "thaw", mon.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("RecordNotice: %v", err)
	}

	if err := mon.ScanRooms(context.Background(), "test run"); err != nil {
		t.Fatalf("ScanRooms: %v", err)
	}

	if got := sender.lines(id); len(got) != 0 {
		t.Errorf("room received messages despite a notice an hour ago: %v", got)
	}
	var held bool
	for _, line := range sender.lines(1) {
		if strings.Contains(line, "holding off") {
			held = true
		}
	}
	if !held {
		t.Errorf("home room missing hold-off narration: %v", sender.lines(1))
	}

	run := mon.LastRun()
	last := run.Scans[len(run.Scans)-1]
	if last.Decision != "stale" || last.Noticed {
		t.Errorf("scan report wrong: %+v", last)
	}
}

func TestScanRoomsAggregatesFailures(t *testing.T) {
	m := testutil.NewMockPlatform(t)
	// Room 5 works, room 7 is frozen, room 8 404s entirely.
	m.MockHTML("/rooms/info/5/", testutil.RoomInfoPage("Sandbox", alivePhrase))
	m.MockHTML("/transcript/5", testutil.TranscriptPage(
		"Sandbox", "2024-03-27", "", "", []testutil.FakeMsg{
			{TimeOfDay: "1:00 PM", UserID: 101, UserName: "alice", MessageID: 1, Text: "fine here"},
		}))
	m.MockHTML("/rooms/info/7/", testutil.RoomInfoPage("Icebox",
		"Because this room is frozen, no feeds are being posted into this room."))

	rooms := []config.Room{
		{Server: m.Host(), ID: 5, Name: "Sandbox"},
		{Server: m.Host(), ID: 7, Name: "Icebox"},
		{Server: m.Host(), ID: 8, Name: "Gone"},
	}
	mon, _ := testMonitor(m, rooms)

	err := mon.ScanRooms(context.Background(), "test run")
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	if !strings.Contains(err.Error(), "2 room(s)") {
		t.Errorf("aggregate error wrong: %v", err)
	}
	for _, id := range []int{7, 8} {
		if !strings.Contains(err.Error(), fmt.Sprintf("%s:%d", m.Host(), id)) {
			t.Errorf("failed room %d not named in %v", id, err)
		}
	}

	run := mon.LastRun()
	if len(run.Scans) != 3 || len(run.Failed) != 2 {
		t.Fatalf("run report wrong: %d scans, %d failed", len(run.Scans), len(run.Failed))
	}
}

func TestHumanAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Hour, "5h"},
		{3 * 24 * time.Hour, "3d"},
		{12*24*time.Hour + 7*time.Hour, "12d7h"},
	}
	for _, tt := range tests {
		if got := humanAge(tt.d); got != tt.want {
			t.Errorf("humanAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
