package store

import (
	"context"
	"fmt"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
)

// Record is one stored checksum node.
type Record struct {
	Checksum checksum.Checksum
	Kind     kind.Kind
	Data     []byte // wire bytes as produced by asset.Marshal
}

// Session is one completed pull of a solution root.
type Session struct {
	ID        string
	Root      checksum.Checksum
	Solution  string
	Seq       int64
	Requested int
	Fetched   int
	Skipped   int
}

// PutRecords inserts records in one transaction, in the given order, and
// returns how many were new. Uses ON CONFLICT(checksum) DO NOTHING for
// idempotency. Callers order children before parents.
func (s *Store) PutRecords(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("put records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets (checksum, kind, data)
		VALUES (?, ?, ?)
		ON CONFLICT(checksum) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("put records: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.Checksum.Bytes(), int(r.Kind), r.Data)
		if err != nil {
			return 0, fmt.Errorf("put record %s: %w", r.Checksum.Short(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("put record %s: rows affected: %w", r.Checksum.Short(), err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("put records: commit: %w", err)
	}
	return inserted, nil
}

// WriteSession records a completed sync session.
// Uses ON CONFLICT(id) DO NOTHING - rewriting a session id is ignored.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_sessions
		(id, root, solution, seq, requested, fetched, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Root.Bytes(),
		sess.Solution,
		sess.Seq,
		sess.Requested,
		sess.Fetched,
		sess.Skipped,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
