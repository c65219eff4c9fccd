package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"krat.local/internal/platform/cache"
	"krat.local/internal/platform/config"
	"krat.local/internal/platform/db"
)

// Open 按 SNAPSHOT_BACKEND 创建快照后端。返回的 closer 释放连接池/客户端，backend 为 none 时返回 nil。
func Open(ctx context.Context, cfg config.Config) (Snapshotter, func(), error) {
	switch cfg.SnapshotBackend {
	case "none", "":
		return nil, func() {}, nil

	case "file":
		return instrumented{backend: "file", next: NewFileSnapshotter(cfg.SnapshotFile)}, func() {}, nil

	case "postgres":
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pool, err := db.New(dbCtx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(dbCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		res, err := Migrate(dbCtx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("snapshot schema ready", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		return instrumented{backend: "postgres", next: NewPostgresSnapshotter(pool)}, pool.Close, nil

	case "redis":
		rdb, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closer := func() {
			if err := rdb.Close(); err != nil {
				slog.Error("redis close failed", "err", err)
			}
		}
		return instrumented{backend: "redis", next: NewRedisSnapshotter(rdb, cfg.SnapshotRedisKey)}, closer, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
}
