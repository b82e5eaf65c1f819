package connectivity

import (
	"context"
	"database/sql"
	"time"
)

// Watch polls PRAGMA data_version every interval and reloads the routes when
// it changes. It performs an initial Reload and blocks until ctx is done.
//
//	go router.Watch(ctx, db, time.Second)
//
// data_version only moves for writes made through other connections, so
// the pool must hold more than one connection for in-process Admin writes
// to be seen.
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload failed", "error", err)
	}
	var lastVersion int64
	db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&lastVersion)

	r.logger.Info("connectivity: watcher started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("connectivity: watcher stopped")
			return
		case <-ticker.C:
			var ver int64
			if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
				r.logger.Warn("connectivity: data_version poll failed", "error", err)
				continue
			}
			if ver == lastVersion {
				continue
			}
			r.logger.Info("connectivity: change detected, reloading",
				"old_version", lastVersion, "new_version", ver)
			if err := r.Reload(ctx, db); err != nil {
				r.logger.Error("connectivity: reload failed", "error", err)
			}
			lastVersion = ver
		}
	}
}
