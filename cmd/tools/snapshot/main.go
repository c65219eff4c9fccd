package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"krat.local/internal/app/shortlink/persist"
	"krat.local/internal/platform/config"
)

// 读取当前配置的快照后端，打印成 JSON 或者复制到一个文件。
//
//	go run ./cmd/tools/snapshot
//	go run ./cmd/tools/snapshot -out backup.json
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
}

// run 返回错误而不是直接退出，保证连接池和客户端在退出前被关闭。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "copy the snapshot into this JSON file instead of printing it")
	backend := fs.String("backend", "", "override SNAPSHOT_BACKEND (file, postgres, redis)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Load()
	if *backend != "" {
		cfg.SnapshotBackend = *backend
	}

	src, closeSrc, err := persist.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSrc()
	if src == nil {
		return errors.New("snapshot backend is none, nothing to read")
	}

	snap, err := src.Load(ctx)
	if errors.Is(err, persist.ErrNoSnapshot) {
		return fmt.Errorf("backend %s has no snapshot", cfg.SnapshotBackend)
	}
	if err != nil {
		return err
	}

	if *out != "" {
		if err := persist.NewFileSnapshotter(*out).Save(ctx, snap); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "copied %d users and %d links to %s\n", len(snap.Users), len(snap.Links), *out)
		return nil
	}

	data, err := persist.Encode(snap)
	if err != nil {
		return err
	}
	_, err = stdout.Write(append(data, '\n'))
	return err
}
