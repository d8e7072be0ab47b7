package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// queryLogger reports failed and slow statements. Missing rows are expected
// lookups and are not logged.
type queryLogger struct {
	logger *zap.Logger
	slow   time.Duration
}

var _ bun.QueryHook = (*queryLogger)(nil)

func newQueryLogger(logger *zap.Logger, slow time.Duration) *queryLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &queryLogger{logger: logger.Named("sql"), slow: slow}
}

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Warn("query failed",
			zap.String("operation", event.Operation()),
			zap.String("query", event.Query),
			zap.Duration("elapsed", elapsed),
			zap.Error(event.Err),
		)
	case h.slow > 0 && elapsed >= h.slow:
		h.logger.Info("slow query",
			zap.String("operation", event.Operation()),
			zap.String("query", event.Query),
			zap.Duration("elapsed", elapsed),
		)
	}
}
