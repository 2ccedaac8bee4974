package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartSoftDeleteCleaner purges nodes that were removed more than retention
// ago, checking every interval until ctx is done.
func StartSoftDeleteCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purge(ctx, db, retention, log)
			}
		}
	}()
}

func purge(ctx context.Context, db *sql.DB, retention time.Duration, log *zap.Logger) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := db.ExecContext(ctx, `
		DELETE FROM nodes
		 WHERE deleted = true
		   AND updated_at < $1
	`, cutoff)
	if err != nil {
		log.Error("failed to purge removed nodes", zap.Error(err))
		return
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("purged removed nodes", zap.Int64("removed", rows))
	}
}
