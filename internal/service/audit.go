package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/models"
)

// auditor appends moderation log entries inside the caller's transaction.
// Transient failures are retried on a savepoint until timeout; anything else,
// or running out of time, fails the whole transaction so the mutation it
// records is rolled back with it.
type auditor struct {
	timeout  time.Duration
	interval time.Duration
}

func (a auditor) append(ctx context.Context, tx *gorm.DB, entry *models.ModerationLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(a.interval), 1)
	// The first attempt takes the token, so every retry waits a full interval.
	limiter.Reserve()

	for attempt := 1; ; attempt++ {
		// Nested transaction: gorm wraps it in a savepoint. The insert itself
		// runs under the retry deadline so a hung attempt cannot outlive it.
		err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.WithContext(ctx).Create(entry).Error
		})
		if err == nil {
			return nil
		}
		if !apperr.IsTransient(err) {
			return apperr.FromDB(err, "failed to write moderation log")
		}

		slog.Warn("moderation log append failed, retrying",
			"action", entry.ActionType, "attempt", attempt, "err", err)
		if werr := limiter.Wait(ctx); werr != nil {
			return apperr.Unavailable(err, "moderation log unavailable, action was not applied")
		}
	}
}
