package persist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"krat.local/internal/app/shortlink"
)

// PostgresSnapshotter 每次保存都在一个事务里整表替换，读到的一定是某一次完整的保存。
type PostgresSnapshotter struct {
	db *pgxpool.Pool
}

func NewPostgresSnapshotter(db *pgxpool.Pool) *PostgresSnapshotter {
	return &PostgresSnapshotter{db: db}
}

func (p *PostgresSnapshotter) Save(ctx context.Context, snap Snapshot) error {
	dbctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := p.db.Begin(dbctx)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer tx.Rollback(dbctx) //事务提交成功后 rollback 会无效/返回错误，可忽略

	if _, err := tx.Exec(dbctx, `TRUNCATE snapshot_links, snapshot_users`); err != nil {
		return err
	}

	if _, err := tx.CopyFrom(dbctx, pgx.Identifier{"snapshot_users"}, []string{"id", "name", "created_at"},
		pgx.CopyFromSlice(len(snap.Users), func(i int) ([]any, error) {
			u := snap.Users[i]
			return []any{u.ID, u.Name, u.CreatedAt}, nil
		}),
	); err != nil {
		return err
	}

	if _, err := tx.CopyFrom(dbctx, pgx.Identifier{"snapshot_links"},
		[]string{"code", "url", "owner_id", "created_at", "expires_at", "click_limit", "click_count"},
		pgx.CopyFromSlice(len(snap.Links), func(i int) ([]any, error) {
			l := snap.Links[i]
			return []any{l.Code, l.URL, l.OwnerID, l.CreatedAt, l.ExpiresAt, l.ClickLimit, l.ClickCount}, nil
		}),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(dbctx,
		`INSERT INTO snapshot_meta (id, version, saved_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, saved_at = EXCLUDED.saved_at`,
		currentVersion, snap.SavedAt); err != nil {
		return err
	}

	return tx.Commit(dbctx)
}

func (p *PostgresSnapshotter) Load(ctx context.Context) (Snapshot, error) {
	dbctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := p.db.BeginTx(dbctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback(dbctx)

	var snap Snapshot
	if err := tx.QueryRow(dbctx, `SELECT version, saved_at FROM snapshot_meta WHERE id = 1`).
		Scan(&snap.Version, &snap.SavedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, err
	}

	rows, err := tx.Query(dbctx, `SELECT id, name, created_at FROM snapshot_users ORDER BY created_at`)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Users, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortlink.User, error) {
		var u shortlink.User
		err := row.Scan(&u.ID, &u.Name, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return Snapshot{}, err
	}

	rows, err = tx.Query(dbctx,
		`SELECT code, url, owner_id, created_at, expires_at, click_limit, click_count FROM snapshot_links ORDER BY created_at`)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Links, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortlink.Link, error) {
		var l shortlink.Link
		err := row.Scan(&l.Code, &l.URL, &l.OwnerID, &l.CreatedAt, &l.ExpiresAt, &l.ClickLimit, &l.ClickCount)
		return l, err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
