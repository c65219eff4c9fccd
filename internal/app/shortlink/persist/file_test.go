package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"krat.local/internal/app/shortlink"
	"krat.local/internal/platform/config"
)

func sampleSnapshot() Snapshot {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return Snapshot{
		SavedAt: now,
		Users: []shortlink.User{
			{ID: "6f1c2c1e-8f4e-4d43-9d55-0d2b8d1f0a11", Name: "alice", CreatedAt: now.Add(-time.Hour)},
		},
		Links: []shortlink.Link{
			{
				Code:       "krat.ko/AbC12345",
				URL:        "http://example.com",
				OwnerID:    "6f1c2c1e-8f4e-4d43-9d55-0d2b8d1f0a11",
				CreatedAt:  now.Add(-time.Minute),
				ExpiresAt:  now.Add(time.Hour),
				ClickLimit: 5,
				ClickCount: 2,
			},
		},
	}
}

func assertSameSnapshot(t *testing.T, got, want Snapshot) {
	t.Helper()
	if got.Version != currentVersion {
		t.Fatalf("Version: got %d, want %d", got.Version, currentVersion)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Fatalf("SavedAt: got %v, want %v", got.SavedAt, want.SavedAt)
	}
	if len(got.Users) != len(want.Users) || len(got.Links) != len(want.Links) {
		t.Fatalf("sizes: got %d users/%d links, want %d/%d", len(got.Users), len(got.Links), len(want.Users), len(want.Links))
	}
	if got.Users[0].ID != want.Users[0].ID || got.Users[0].Name != want.Users[0].Name {
		t.Fatalf("user: got %+v, want %+v", got.Users[0], want.Users[0])
	}
	g, w := got.Links[0], want.Links[0]
	if g.Code != w.Code || g.URL != w.URL || g.OwnerID != w.OwnerID || g.ClickLimit != w.ClickLimit || g.ClickCount != w.ClickCount {
		t.Fatalf("link: got %+v, want %+v", g, w)
	}
	if !g.ExpiresAt.Equal(w.ExpiresAt) || !g.CreatedAt.Equal(w.CreatedAt) {
		t.Fatalf("link times: got %v/%v, want %v/%v", g.CreatedAt, g.ExpiresAt, w.CreatedAt, w.ExpiresAt)
	}
}

func TestFileSnapshotter_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	f := NewFileSnapshotter(path)
	want := sampleSnapshot()

	if err := f.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameSnapshot(t, got, want)

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileSnapshotter_MissingFile(t *testing.T) {
	f := NewFileSnapshotter(filepath.Join(t.TempDir(), "nothing.json"))
	if _, err := f.Load(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Load: got %v, want %v", err, ErrNoSnapshot)
	}
}

func TestFileSnapshotter_RejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "users": [], "links": []}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileSnapshotter(path).Load(context.Background()); err == nil {
		t.Fatal("Load: expected error for unsupported version")
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, closer, err := Open(ctx, config.Config{SnapshotBackend: "none"})
	if err != nil || s != nil {
		t.Fatalf("none: got %v, %v", s, err)
	}
	closer()

	s, closer, err = Open(ctx, config.Config{SnapshotBackend: "file", SnapshotFile: filepath.Join(t.TempDir(), "d.json")})
	if err != nil || s == nil {
		t.Fatalf("file: got %v, %v", s, err)
	}
	closer()
	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("file Load: got %v, want %v", err, ErrNoSnapshot)
	}

	if _, _, err := Open(ctx, config.Config{SnapshotBackend: "tape"}); err == nil {
		t.Fatal("unknown backend: expected error")
	}
}
