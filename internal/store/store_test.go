package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutAndRecentRelays(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := db.PutRelay(ctx, RelayRecord{
			Time:     base.Add(time.Duration(i) * time.Minute),
			TalkerID: int64(100 + i),
			UserName: "alice",
			Query:    "q",
			Intent:   "greet",
			Reply:    "r",
		})
		if err != nil {
			t.Fatalf("PutRelay %d: %v", i, err)
		}
	}

	records, err := db.RecentRelays(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRelays: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Newest first.
	if records[0].TalkerID != 102 || records[1].TalkerID != 101 {
		t.Fatalf("wrong order: %d, %d", records[0].TalkerID, records[1].TalkerID)
	}
	if !records[0].Time.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("timestamp mismatch: %v", records[0].Time)
	}
}

func TestRecentRelaysDefaultLimit(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.RecentRelays(context.Background(), 0); err != nil {
		t.Fatalf("zero limit should fall back to a default: %v", err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	v, err := db.LoadCursor(ctx, CursorLastTick)
	if err != nil {
		t.Fatalf("LoadCursor (absent): %v", err)
	}
	if v != "" {
		t.Fatalf("absent cursor should be empty, got %q", v)
	}

	if err := db.SaveCursor(ctx, CursorLastTick, "2024-05-01T12:00:00Z"); err != nil {
		t.Fatalf("SaveCursor: %v", err)
	}
	if err := db.SaveCursor(ctx, CursorLastTick, "2024-05-01T12:30:00Z"); err != nil {
		t.Fatalf("SaveCursor (upsert): %v", err)
	}

	v, err = db.LoadCursor(ctx, CursorLastTick)
	if err != nil {
		t.Fatalf("LoadCursor: %v", err)
	}
	if v != "2024-05-01T12:30:00Z" {
		t.Fatalf("cursor = %q", v)
	}
}

func TestOpenIsIdempotentOnSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.db")
	db1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db1.PutRelay(context.Background(), RelayRecord{Time: time.Now(), TalkerID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db1.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	records, err := db2.RecentRelays(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("data lost across reopen: %d records", len(records))
	}
}
