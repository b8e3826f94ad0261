package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/thawbot/thawbot/db"
	"github.com/thawbot/thawbot/testutil"
)

func TestScanHistoryRoundtrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	runID := uuid.New().String()

	started := time.Now().UTC().Truncate(time.Second)
	rows := []db.ScanRow{
		{
			RunID: runID, Server: "chat.example.com", RoomID: 5, RoomName: "Sandbox",
			LatestAt: started.Add(-13 * 24 * time.Hour), AgeSeconds: 13 * 86400,
			Decision: "stale", StartedAt: started, FinishedAt: started.Add(2 * time.Second),
		},
		{
			RunID: runID, Server: "chat.example.com", RoomID: 7, RoomName: "Icebox",
			Decision: "", Error: "room is frozen",
			StartedAt: started, FinishedAt: started.Add(3 * time.Second),
		},
	}
	for _, row := range rows {
		if err := db.RecordScan(ctx, database, row); err != nil {
			t.Fatalf("RecordScan: %v", err)
		}
	}

	got, err := db.ScansForRun(ctx, database, runID)
	if err != nil {
		t.Fatalf("ScansForRun: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d scans, want 2", len(got))
	}
	if got[0].RoomID != 5 || got[0].Decision != "stale" {
		t.Errorf("first scan wrong: %+v", got[0])
	}
	if got[1].Error != "room is frozen" {
		t.Errorf("second scan wrong: %+v", got[1])
	}
}

func TestNoticeHistory(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	// Unique room id per run keeps reruns against a shared database from
	// tripping over old rows.
	room := int(time.Now().UnixNano() % 1_000_000)

	last, err := db.LastNotice(ctx, database, "chat.example.com", room)
	if err != nil {
		t.Fatalf("LastNotice: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("got %v for a room without notices, want zero time", last)
	}

	sentAt := time.Now().UTC().Truncate(time.Second)
	if err := db.RecordNotice(ctx, database, "chat.example.com", room, "thaw", sentAt); err != nil {
		t.Fatalf("RecordNotice: %v", err)
	}

	last, err = db.LastNotice(ctx, database, "chat.example.com", room)
	if err != nil {
		t.Fatalf("LastNotice: %v", err)
	}
	if !last.Equal(sentAt) {
		t.Errorf("got %v, want %v", last, sentAt)
	}
}
