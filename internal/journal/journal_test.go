package journal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "sub", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndList(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, cp := range []string{"cp_001", "cp_002", "cp_003"} {
		at := base.Add(time.Duration(i) * time.Minute)
		j.now = func() time.Time { return at }
		if _, err := j.Record(ctx, Record{ProjectRoot: "/p", CheckpointID: cp, Success: true, Message: "ok"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	j.Record(ctx, Record{ProjectRoot: "/other", CheckpointID: "x"})

	entries, err := j.List(ctx, "/p", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].CheckpointID != "cp_003" || entries[1].CheckpointID != "cp_002" {
		t.Errorf("entries = %+v", entries)
	}
	if !entries[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", entries[0].CreatedAt)
	}

	all, _ := j.List(ctx, "/p", 0)
	if len(all) != 3 {
		t.Errorf("List(limit 0) returned %d", len(all))
	}
}

func TestJournal_Snapshots(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	before := bytes.Repeat([]byte(`{"phase":"execute"}`), 100)
	e, err := j.Record(ctx, Record{ProjectRoot: "/p", CheckpointID: "cp", Before: before})
	if err != nil {
		t.Fatal(err)
	}
	if !e.HasBefore || e.HasAfter {
		t.Errorf("entry flags = %+v", e)
	}

	got, err := j.Snapshot(ctx, e.ID, Before)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !bytes.Equal(got, before) {
		t.Error("snapshot content mismatch")
	}

	if _, err := j.Snapshot(ctx, e.ID, After); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing after snapshot err = %v", err)
	}
	if _, err := j.Snapshot(ctx, "nope", Before); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
	if _, err := j.Snapshot(ctx, e.ID, "sideways"); err == nil {
		t.Error("unknown snapshot kind should fail")
	}
}
