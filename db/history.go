package db

import (
	"context"
	"database/sql"
	"time"
)

// ScanRow is one recorded room scan.
type ScanRow struct {
	RunID      string
	Server     string
	RoomID     int
	RoomName   string
	LatestAt   time.Time // zero when no qualifying message was found
	AgeSeconds int64
	Decision   string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordScan inserts one room scan outcome.
func RecordScan(ctx context.Context, db *sql.DB, row ScanRow) error {
	var latest any
	if !row.LatestAt.IsZero() {
		latest = row.LatestAt
	}
	_, err := db.ExecContext(ctx, `INSERT INTO room_scans
		(run_id, server, room_id, room_name, latest_at, age_seconds, decision, error, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		row.RunID, row.Server, row.RoomID, row.RoomName, latest,
		row.AgeSeconds, row.Decision, row.Error, row.StartedAt, row.FinishedAt)
	return err
}

// RecordNotice inserts one posted thawing notice.
func RecordNotice(ctx context.Context, db *sql.DB, server string, room int, message string, sentAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notices (server, room_id, message, sent_at) VALUES ($1,$2,$3,$4)`,
		server, room, message, sentAt)
	return err
}

// LastNotice returns when the bot last posted a notice into room, or a zero
// time when it never has.
func LastNotice(ctx context.Context, db *sql.DB, server string, room int) (time.Time, error) {
	var sentAt time.Time
	err := db.QueryRowContext(ctx,
		`SELECT sent_at FROM notices WHERE server=$1 AND room_id=$2 ORDER BY sent_at DESC LIMIT 1`,
		server, room).Scan(&sentAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return sentAt, err
}

// ScansForRun returns the recorded scans of one run, in scan order.
func ScansForRun(ctx context.Context, db *sql.DB, runID string) ([]ScanRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, server, room_id, room_name,
		COALESCE(latest_at, 'epoch'::timestamptz), age_seconds, decision, error, started_at, finished_at
		FROM room_scans WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRow
	for rows.Next() {
		var r ScanRow
		if err := rows.Scan(&r.RunID, &r.Server, &r.RoomID, &r.RoomName,
			&r.LatestAt, &r.AgeSeconds, &r.Decision, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
