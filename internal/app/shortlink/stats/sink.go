package stats

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink 是事件批量落地的目标。
type Sink interface {
	Write(ctx context.Context, batch []Event) error
}

// LogSink 把事件写成结构化日志。
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ctx context.Context, batch []Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, e := range batch {
		logger.InfoContext(ctx, "link event",
			"kind", e.Kind,
			"code", e.Code,
			"owner_id", e.OwnerID,
			"click_count", e.ClickCount,
			"click_limit", e.ClickLimit,
			"reason", e.Reason,
			"at", e.At,
		)
	}
	return nil
}

// PostgresSink 批量写入 link_events 表（表结构见 persist/migrations）。
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

var linkEventColumns = []string{"kind", "code", "owner_id", "url", "click_count", "click_limit", "reason", "occurred_at"}

func (s *PostgresSink) Write(ctx context.Context, batch []Event) error {
	_, err := s.db.CopyFrom(ctx, pgx.Identifier{"link_events"}, linkEventColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			e := batch[i]
			return []any{string(e.Kind), e.Code, e.OwnerID, e.URL, e.ClickCount, e.ClickLimit, e.Reason, e.At}, nil
		}),
	)
	return err
}
