package blobstore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// gcRunner periodically rewrites the value log.
type gcRunner struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	r := &gcRunner{stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				err := db.RunValueLogGC(ratio)
				// ErrNoRewrite just means there was nothing to collect.
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
					logger.Warn("blob store value log GC failed", "error", err)
				}
			}
		}
	}()
	return r
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}
