package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// StartGC runs Badger value-log garbage collection on a fixed interval until
// the context is cancelled. Badger never reclaims value-log space on its own,
// so long-lived clients should keep this running.
func (s *Store) StartGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Repeat while a rewrite happened; each call rewrites at
				// most one value-log file.
				for {
					err := s.db.RunValueLogGC(0.5)
					if errors.Is(err, badger.ErrNoRewrite) {
						break
					}
					if err != nil {
						s.log.Warn("value log gc failed", zap.Error(err))
						break
					}
					s.log.Debug("value log file reclaimed")
				}
			}
		}
	}()
}
