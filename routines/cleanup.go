package routines

import (
	"context"
	"log/slog"
	"time"

	"github.com/CorrelAid/registration_uploader/inits"
	"github.com/CorrelAid/registration_uploader/models"
	"github.com/hashicorp/go-memdb"
)

// StartCleanupRoutine drops expired sessions every interval until ctx is done.
func StartCleanupRoutine(ctx context.Context, db *memdb.MemDB, interval time.Duration) {
	CleanupExpired(db, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			CleanupExpired(db, now)
		}
	}
}

// CleanupExpired deletes sessions whose expiry is before now and returns how
// many were removed.
func CleanupExpired(db *memdb.MemDB, now time.Time) int {
	txn := db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(inits.SessionTable, "expiry")
	if err != nil {
		slog.Error("session cleanup: iterate", "error", err)
		return 0
	}

	var expired []*models.Session
	for obj := it.Next(); obj != nil; obj = it.Next() {
		session := obj.(*models.Session)
		expiry, err := time.Parse(time.RFC3339, session.Expiry)
		if err != nil {
			slog.Warn("session cleanup: bad expiry, dropping", "session", session.ID, "expiry", session.Expiry)
			expired = append(expired, session)
			continue
		}
		if expiry.Before(now) {
			expired = append(expired, session)
		}
	}

	for _, session := range expired {
		if err := txn.Delete(inits.SessionTable, session); err != nil {
			slog.Error("session cleanup: delete", "session", session.ID, "error", err)
			return 0
		}
		slog.Debug("deleted expired session", "session", session.ID)
	}

	txn.Commit()
	if len(expired) > 0 {
		slog.Info("session cleanup", "removed", len(expired))
	}
	return len(expired)
}
