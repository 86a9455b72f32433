package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record whose checksum is derived from data.
// The store does not verify wire framing, so any bytes will do.
func createTestRecord(k kind.Kind, data string) Record {
	return Record{
		Checksum: checksum.CreateForKind(k.Byte(), []byte(data)),
		Kind:     k,
		Data:     []byte(data),
	}
}
