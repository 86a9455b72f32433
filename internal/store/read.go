package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/assetsync/internal/checksum"
)

// Has reports whether sum is stored.
func (s *Store) Has(ctx context.Context, sum checksum.Checksum) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE checksum = ?`, sum.Bytes()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has %s: %w", sum.Short(), err)
	}
	return true, nil
}

// Get returns the wire bytes of sum. The boolean is false when sum is not
// stored.
func (s *Store) Get(ctx context.Context, sum checksum.Checksum) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM assets WHERE checksum = ?`, sum.Bytes()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", sum.Short(), err)
	}
	return data, true, nil
}

// Missing returns the checksums of sums that are not stored, in input
// order, without duplicates.
func (s *Store) Missing(ctx context.Context, sums []checksum.Checksum) ([]checksum.Checksum, error) {
	present, err := s.Fetch(ctx, sums)
	if err != nil {
		return nil, err
	}
	seen := checksum.NewSet()
	var out []checksum.Checksum
	for _, sum := range sums {
		if _, ok := present[sum]; ok || seen.Has(sum) {
			continue
		}
		seen.Add(sum)
		out = append(out, sum)
	}
	return out, nil
}

// Fetch returns the wire bytes of every stored checksum in sums. Absent
// checksums are omitted. Fetch satisfies materialize.Fetcher.
func (s *Store) Fetch(ctx context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error) {
	out := make(map[checksum.Checksum][]byte, len(sums))
	for start := 0; start < len(sums); start += maxVariables {
		end := min(start+maxVariables, len(sums))
		if err := s.fetchChunk(ctx, sums[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) fetchChunk(ctx context.Context, sums []checksum.Checksum, out map[checksum.Checksum][]byte) error {
	args := make([]any, len(sums))
	for i, sum := range sums {
		args[i] = sum.Bytes()
	}
	query := `SELECT checksum, data FROM assets WHERE checksum IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(sums)), ",") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw, data []byte
		if err := rows.Scan(&raw, &data); err != nil {
			return fmt.Errorf("scan asset: %w", err)
		}
		sum, err := checksum.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("scan asset: %w", err)
		}
		out[sum] = data
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate assets: %w", err)
	}
	return nil
}

// Count returns the number of stored assets.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return n, nil
}

// Sessions returns every recorded session.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no sessions exist.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root, solution, seq, requested, fetched, skipped
		FROM sync_sessions
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the session with the highest seq for solution.
// The boolean is false when the solution was never synced.
func (s *Store) LatestSession(ctx context.Context, solution string) (Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root, solution, seq, requested, fetched, skipped
		FROM sync_sessions
		WHERE solution = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, solution)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// MaxSessionSeq returns the highest recorded session seq, or 0.
func (s *Store) MaxSessionSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM sync_sessions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max session seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess Session
		root []byte
	)
	if err := row.Scan(&sess.ID, &root, &sess.Solution, &sess.Seq, &sess.Requested, &sess.Fetched, &sess.Skipped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sum, err := checksum.FromBytes(root)
	if err != nil {
		return Session{}, fmt.Errorf("scan session %s: %w", sess.ID, err)
	}
	sess.Root = sum
	return sess, nil
}
