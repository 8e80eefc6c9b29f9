package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func createTestCycle(token string, started time.Time, status Status) Cycle {
	return Cycle{
		Token:       token,
		StartedUTC:  started,
		FinishedUTC: started.Add(2 * time.Second),
		Status:      status,
		Sources:     1,
		Added:       3,
		Modified:    1,
		Removed:     0,
		Unchanged:   5,
		Dropped:     1,
		ParseErrors: 2,
	}
}

var testStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestRecord_Basic(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	c := createTestCycle("tok-1", testStart, StatusOK)
	c.Outputs = []Output{
		{Entity: "stock", Path: "/out/stock_20260314090000.csv", Records: 4},
	}
	if err := j.Record(ctx, c); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	got, err := j.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != StatusOK {
		t.Errorf("status = %q, want %q", got.Status, StatusOK)
	}
	if !got.StartedUTC.Equal(testStart) {
		t.Errorf("started = %v, want %v", got.StartedUTC, testStart)
	}
	if !got.FinishedUTC.Equal(testStart.Add(2 * time.Second)) {
		t.Errorf("finished = %v, want %v", got.FinishedUTC, testStart.Add(2*time.Second))
	}
	if got.Added != 3 || got.Modified != 1 || got.Unchanged != 5 || got.Dropped != 1 || got.ParseErrors != 2 {
		t.Errorf("counts = %+v, want added=3 modified=1 unchanged=5 dropped=1 parse_errors=2", got)
	}
	if len(got.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(got.Outputs))
	}
	if got.Outputs[0].Entity != "stock" || got.Outputs[0].Records != 4 {
		t.Errorf("output = %+v, want stock with 4 records", got.Outputs[0])
	}
}

func TestRecord_Idempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	c := createTestCycle("tok-1", testStart, StatusOK)
	c.Outputs = []Output{{Entity: "stock", Path: "/out/a.csv", Records: 1}}

	if err := j.Record(ctx, c); err != nil {
		t.Fatalf("first Record() failed: %v", err)
	}
	if err := j.Record(ctx, c); err != nil {
		t.Fatalf("second Record() failed: %v", err)
	}

	var cycles, outputs int
	if err := j.db.QueryRow("SELECT COUNT(*) FROM cycles").Scan(&cycles); err != nil {
		t.Fatalf("count cycles: %v", err)
	}
	if err := j.db.QueryRow("SELECT COUNT(*) FROM outputs").Scan(&outputs); err != nil {
		t.Fatalf("count outputs: %v", err)
	}
	if cycles != 1 {
		t.Errorf("cycles = %d, want 1", cycles)
	}
	if outputs != 1 {
		t.Errorf("outputs = %d, want 1", outputs)
	}
}

func TestRecord_InvalidStatus(t *testing.T) {
	j := createTestJournal(t)

	c := createTestCycle("tok-1", testStart, Status("exploded"))
	if err := j.Record(context.Background(), c); err == nil {
		t.Fatal("Record() accepted an invalid status")
	}
}

func TestList_NewestFirst(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c := createTestCycle(fmt.Sprintf("tok-%d", i), testStart.Add(time.Duration(i)*time.Minute), StatusOK)
		if err := j.Record(ctx, c); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	cycles, err := j.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("len = %d, want 3", len(cycles))
	}
	for i, want := range []string{"tok-2", "tok-1", "tok-0"} {
		if cycles[i].Token != want {
			t.Errorf("cycles[%d].Token = %q, want %q", i, cycles[i].Token, want)
		}
	}
}

func TestList_Limit(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c := createTestCycle(fmt.Sprintf("tok-%d", i), testStart.Add(time.Duration(i)*time.Minute), StatusOK)
		if err := j.Record(ctx, c); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	cycles, err := j.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("len = %d, want 2", len(cycles))
	}
	if cycles[0].Token != "tok-4" {
		t.Errorf("newest = %q, want tok-4", cycles[0].Token)
	}
}

func TestList_FilterStatus(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	if err := j.Record(ctx, createTestCycle("tok-ok", testStart, StatusOK)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	failed := createTestCycle("tok-bad", testStart.Add(time.Minute), StatusFailed)
	failed.Error = "source unavailable"
	if err := j.Record(ctx, failed); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	cycles, err := j.List(ctx, Filter{Status: StatusFailed})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cycles) != 1 || cycles[0].Token != "tok-bad" {
		t.Fatalf("got %+v, want only tok-bad", cycles)
	}
	if cycles[0].Error != "source unavailable" {
		t.Errorf("error = %q, want %q", cycles[0].Error, "source unavailable")
	}
}

func TestList_FilterSince(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	if err := j.Record(ctx, createTestCycle("tok-old", testStart, StatusOK)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := j.Record(ctx, createTestCycle("tok-new", testStart.Add(time.Hour), StatusOK)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	cycles, err := j.List(ctx, Filter{Since: testStart.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cycles) != 1 || cycles[0].Token != "tok-new" {
		t.Fatalf("got %+v, want only tok-new", cycles)
	}
}

func TestList_FilterEntity(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	a := createTestCycle("tok-a", testStart, StatusOK)
	a.Outputs = []Output{{Entity: "stock", Path: "/out/stock_1.csv", Records: 1}}
	b := createTestCycle("tok-b", testStart.Add(time.Minute), StatusOK)
	b.Outputs = []Output{{Entity: "transactions", Path: "/out/transactions_1.csv", Records: 1}}
	for _, c := range []Cycle{a, b} {
		if err := j.Record(ctx, c); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	cycles, err := j.List(ctx, Filter{Entity: "stock"})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cycles) != 1 || cycles[0].Token != "tok-a" {
		t.Fatalf("got %+v, want only tok-a", cycles)
	}
}

func TestList_FilterDryRun(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	real := createTestCycle("tok-real", testStart, StatusOK)
	dry := createTestCycle("tok-dry", testStart.Add(time.Minute), StatusOK)
	dry.DryRun = true
	for _, c := range []Cycle{real, dry} {
		if err := j.Record(ctx, c); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	isDry := true
	cycles, err := j.List(ctx, Filter{DryRun: &isDry})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(cycles) != 1 || cycles[0].Token != "tok-dry" {
		t.Fatalf("got %+v, want only tok-dry", cycles)
	}
	if !cycles[0].DryRun {
		t.Error("DryRun flag not round-tripped")
	}
}

func TestList_Empty(t *testing.T) {
	j := createTestJournal(t)

	cycles, err := j.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if cycles == nil {
		t.Fatal("List() returned nil, want empty slice")
	}
	if len(cycles) != 0 {
		t.Fatalf("len = %d, want 0", len(cycles))
	}
}

func TestGet_NotFound(t *testing.T) {
	j := createTestJournal(t)

	_, err := j.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := j1.Record(context.Background(), createTestCycle("tok-1", testStart, StatusOK)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := j1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer j2.Close()

	got, err := j2.Get(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if got.Token != "tok-1" {
		t.Errorf("token = %q, want tok-1", got.Token)
	}
}

func TestOpen_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	// Lay down a database the way schema version 1 did, before the
	// unchanged column existed.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw database: %v", err)
	}
	stmts := []string{
		`CREATE TABLE cycles (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			token        TEXT    NOT NULL UNIQUE,
			started_utc  TEXT    NOT NULL,
			finished_utc TEXT    NOT NULL,
			status       TEXT    NOT NULL CHECK (status IN ('ok', 'partial', 'failed')),
			dry_run      INTEGER NOT NULL DEFAULT 0,
			sources      INTEGER NOT NULL DEFAULT 0,
			added        INTEGER NOT NULL DEFAULT 0,
			modified     INTEGER NOT NULL DEFAULT 0,
			removed      INTEGER NOT NULL DEFAULT 0,
			dropped      INTEGER NOT NULL DEFAULT 0,
			parse_errors INTEGER NOT NULL DEFAULT 0,
			error        TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE outputs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_token TEXT    NOT NULL REFERENCES cycles(token) ON DELETE CASCADE,
			entity      TEXT    NOT NULL,
			path        TEXT    NOT NULL,
			records     INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT INTO cycles (token, started_utc, finished_utc, status, added)
			VALUES ('tok-old', '2026-03-14T08:00:00Z', '2026-03-14T08:00:02Z', 'ok', 2)`,
		`PRAGMA user_version = 1`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("prepare v1 database: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw database: %v", err)
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on a v1 database failed: %v", err)
	}
	defer j.Close()
	ctx := context.Background()

	old, err := j.Get(ctx, "tok-old")
	if err != nil {
		t.Fatalf("Get() of pre-migration row failed: %v", err)
	}
	if old.Added != 2 || old.Unchanged != 0 {
		t.Errorf("pre-migration row = %+v, want added=2 unchanged=0", old)
	}

	if err := j.Record(ctx, createTestCycle("tok-new", testStart, StatusOK)); err != nil {
		t.Fatalf("Record() after migration failed: %v", err)
	}
	got, err := j.Get(ctx, "tok-new")
	if err != nil {
		t.Fatalf("Get() after migration failed: %v", err)
	}
	if got.Unchanged != 5 {
		t.Errorf("unchanged = %d, want 5", got.Unchanged)
	}
}
