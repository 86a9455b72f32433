package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"assets", "sync_sessions"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, p := range settings {
		got, err := s.pragma(ctx, p.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != p.want {
			t.Errorf("PRAGMA %s = %q, want %q", p.name, got, p.want)
		}
	}

	got, err := s.pragma(ctx, "user_version")
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprint(schemaVersion()); got != want {
		t.Errorf("user_version = %s, want %s", got, want)
	}
}

func TestOpen_UpgradesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	// Roll the file back to the pre-index layout.
	if _, err := s.db.Exec("DROP INDEX idx_sync_sessions_solution_seq"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	var name string
	if err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sync_sessions_solution_seq'",
	).Scan(&name); err != nil {
		t.Errorf("index not recreated: %v", err)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion()+1)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if s, err := Open(path); err == nil {
		s.Close()
		t.Fatal("Open() accepted a database from a newer schema")
	} else if !strings.Contains(err.Error(), "newer") {
		t.Errorf("error = %v, want a schema version complaint", err)
	}
}

func TestOpen_MigrationCreatesIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sync_sessions_solution_seq'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("session index missing: %v", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v", err)
	}
}

func TestPutRecords_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestRecord(kind.DocumentAttributes, "doc")
	b := createTestRecord(kind.SourceText, "text")

	n, err := s.PutRecords(ctx, []Record{a, b})
	if err != nil {
		t.Fatalf("PutRecords() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	n, err = s.PutRecords(ctx, []Record{a, b})
	if err != nil {
		t.Fatalf("second PutRecords() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("re-inserted = %d, want 0", n)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestPutRecords_Empty(t *testing.T) {
	s := createTestStore(t)
	n, err := s.PutRecords(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("PutRecords(nil) = %d, %v", n, err)
	}
}

func TestPutRecords_CancelledContextWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.PutRecords(ctx, []Record{createTestRecord(kind.SourceText, "x")}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	count, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Count() = %d after cancelled write, want 0", count)
	}
}

func TestGetAndHas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := createTestRecord(kind.ProjectAttributes, "project")

	if _, err := s.PutRecords(ctx, []Record{r}); err != nil {
		t.Fatal(err)
	}

	data, ok, err := s.Get(ctx, r.Checksum)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(data) != "project" {
		t.Errorf("Get() data = %q", data)
	}

	has, err := s.Has(ctx, r.Checksum)
	if err != nil || !has {
		t.Errorf("Has() = %v, %v", has, err)
	}

	absent := checksum.Create([]byte("absent"))
	if _, ok, err := s.Get(ctx, absent); err != nil || ok {
		t.Errorf("Get(absent) = %v, %v", ok, err)
	}
	if has, err := s.Has(ctx, absent); err != nil || has {
		t.Errorf("Has(absent) = %v, %v", has, err)
	}
}

func TestMissing_PreservesOrderAndDedupes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	stored := createTestRecord(kind.SourceText, "stored")
	if _, err := s.PutRecords(ctx, []Record{stored}); err != nil {
		t.Fatal(err)
	}

	x := checksum.Create([]byte("x"))
	y := checksum.Create([]byte("y"))
	got, err := s.Missing(ctx, []checksum.Checksum{y, stored.Checksum, x, y})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != y || got[1] != x {
		t.Errorf("Missing() = %v, want [y x]", got)
	}
}

func TestFetch_ChunksLargeRequests(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const total = maxVariables*2 + 7
	records := make([]Record, total)
	sums := make([]checksum.Checksum, total)
	for i := range records {
		records[i] = createTestRecord(kind.SourceText, string(rune('a'+i%26))+string(rune(i)))
		sums[i] = records[i].Checksum
	}
	if _, err := s.PutRecords(ctx, records); err != nil {
		t.Fatal(err)
	}

	got, err := s.Fetch(ctx, append(sums, checksum.Create([]byte("absent"))))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != total {
		t.Errorf("Fetch() returned %d, want %d", len(got), total)
	}
	for _, r := range records {
		if string(got[r.Checksum]) != string(r.Data) {
			t.Fatalf("Fetch() data mismatch for %s", r.Checksum.Short())
		}
	}
}

func TestSessions_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root1 := checksum.Create([]byte("root-1"))
	root2 := checksum.Create([]byte("root-2"))

	for _, sess := range []Session{
		{ID: "b", Root: root2, Solution: "Sample", Seq: 2, Requested: 3, Fetched: 2, Skipped: 1},
		{ID: "a", Root: root1, Solution: "Sample", Seq: 1, Requested: 14, Fetched: 14},
		{ID: "c", Root: root1, Solution: "Other", Seq: 3},
	} {
		if err := s.WriteSession(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}
	// Duplicate id is ignored.
	if err := s.WriteSession(ctx, Session{ID: "a", Root: root2, Solution: "Sample", Seq: 9}); err != nil {
		t.Fatal(err)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Sessions() returned %d", len(sessions))
	}
	for i, want := range []string{"a", "b", "c"} {
		if sessions[i].ID != want {
			t.Errorf("Sessions()[%d].ID = %q, want %q", i, sessions[i].ID, want)
		}
	}
	if sessions[0].Root != root1 || sessions[0].Requested != 14 {
		t.Errorf("Sessions()[0] = %+v", sessions[0])
	}

	latest, ok, err := s.LatestSession(ctx, "Sample")
	if err != nil || !ok {
		t.Fatalf("LatestSession() = %v, %v", ok, err)
	}
	if latest.ID != "b" || latest.Root != root2 || latest.Skipped != 1 {
		t.Errorf("LatestSession() = %+v", latest)
	}

	if _, ok, err := s.LatestSession(ctx, "Unknown"); err != nil || ok {
		t.Errorf("LatestSession(Unknown) = %v, %v", ok, err)
	}

	seq, err := s.MaxSessionSeq(ctx)
	if err != nil || seq != 3 {
		t.Errorf("MaxSessionSeq() = %d, %v", seq, err)
	}
}

func TestSessions_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	sessions, err := s.Sessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sessions == nil {
		t.Error("Sessions() returned nil, want empty slice")
	}

	seq, err := s.MaxSessionSeq(context.Background())
	if err != nil || seq != 0 {
		t.Errorf("MaxSessionSeq() on empty = %d, %v", seq, err)
	}
}
