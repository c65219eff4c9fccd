package persist

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"krat.local/internal/app/shortlink"
	"krat.local/internal/platform/metrics"
	"krat.local/internal/platform/migrate"
)

// 快照格式版本，格式变化时递增
const currentVersion = 1

var ErrNoSnapshot = errors.New("no snapshot saved")

// Snapshot 是进程边界上保存/恢复的全部状态。
type Snapshot struct {
	Version int
	SavedAt time.Time
	Users   []shortlink.User
	Links   []shortlink.Link
}

// Snapshotter 保存和读取快照。Load 在从未保存过时返回 ErrNoSnapshot。
type Snapshotter interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate 创建快照表和事件表。
func Migrate(ctx context.Context, db *pgxpool.Pool) (*migrate.Result, error) {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return migrate.Up(ctx, db, migrate.Options{FS: sub})
}

type userRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type linkRecord struct {
	Code       string    `json:"code"`
	URL        string    `json:"url"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	ClickLimit int       `json:"click_limit"`
	ClickCount int       `json:"click_count"`
}

type document struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	Users   []userRecord `json:"users"`
	Links   []linkRecord `json:"links"`
}

// Encode 把快照编码成带版本号的 JSON 文档，file 和 redis 后端共用。
func Encode(snap Snapshot) ([]byte, error) {
	doc := document{
		Version: currentVersion,
		SavedAt: snap.SavedAt.UTC(),
		Users:   make([]userRecord, 0, len(snap.Users)),
		Links:   make([]linkRecord, 0, len(snap.Links)),
	}
	for _, u := range snap.Users {
		doc.Users = append(doc.Users, userRecord{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt.UTC()})
	}
	for _, l := range snap.Links {
		doc.Links = append(doc.Links, linkRecord{
			Code:       l.Code,
			URL:        l.URL,
			OwnerID:    l.OwnerID,
			CreatedAt:  l.CreatedAt.UTC(),
			ExpiresAt:  l.ExpiresAt.UTC(),
			ClickLimit: l.ClickLimit,
			ClickCount: l.ClickCount,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func Decode(data []byte) (Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version > currentVersion {
		return Snapshot{}, fmt.Errorf("decode snapshot: unsupported version %d", doc.Version)
	}
	snap := Snapshot{
		Version: doc.Version,
		SavedAt: doc.SavedAt,
		Users:   make([]shortlink.User, 0, len(doc.Users)),
		Links:   make([]shortlink.Link, 0, len(doc.Links)),
	}
	for _, u := range doc.Users {
		snap.Users = append(snap.Users, shortlink.User{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt})
	}
	for _, l := range doc.Links {
		snap.Links = append(snap.Links, shortlink.Link{
			Code:       l.Code,
			URL:        l.URL,
			OwnerID:    l.OwnerID,
			CreatedAt:  l.CreatedAt,
			ExpiresAt:  l.ExpiresAt,
			ClickLimit: l.ClickLimit,
			ClickCount: l.ClickCount,
		})
	}
	return snap, nil
}

// instrumented 给任意后端加上耗时指标。
type instrumented struct {
	backend string
	next    Snapshotter
}

func (i instrumented) Save(ctx context.Context, snap Snapshot) error {
	start := time.Now()
	defer func() {
		metrics.SnapshotDurationSeconds.WithLabelValues(i.backend, "save").Observe(time.Since(start).Seconds())
	}()
	return i.next.Save(ctx, snap)
}

func (i instrumented) Load(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	defer func() {
		metrics.SnapshotDurationSeconds.WithLabelValues(i.backend, "load").Observe(time.Since(start).Seconds())
	}()
	return i.next.Load(ctx)
}
