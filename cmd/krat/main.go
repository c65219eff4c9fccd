package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"krat.local/internal/app/shortlink"
	slcache "krat.local/internal/app/shortlink/cache"
	"krat.local/internal/app/shortlink/console"
	"krat.local/internal/app/shortlink/expiry"
	"krat.local/internal/app/shortlink/persist"
	"krat.local/internal/app/shortlink/repo"
	"krat.local/internal/app/shortlink/stats"
	"krat.local/internal/platform/config"
	"krat.local/internal/platform/db"
	"krat.local/internal/platform/httpserver"
	"krat.local/internal/platform/metrics"
	"krat.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	if created, err := config.EnsureFile(".env"); err != nil {
		log.Printf("write default .env: %v", err)
	} else if created {
		log.Printf("created .env with default settings")
	}
	cfg := config.Load()

	// stdout 留给交互会话，日志走 stderr
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h).With("service", cfg.ServiceName))

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 快照后端
	snapshots, closeSnapshots, err := persist.Open(stopCtx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSnapshots()

	usersRepo := repo.NewUsersRepo()
	linksRepo := repo.NewLinksRepo(cfg.StoreShards)
	// 预期容量来自配置，1% 误判率
	bloomFilter := slcache.NewBloomFilter(cfg.CodeFilterCapacity, 0.01)
	codes := shortlink.NewCodeGenerator(shortlink.CodeOptions{
		Prefix:      cfg.CodePrefix,
		Length:      cfg.CodeLength,
		MaxAttempts: cfg.CodeMaxAttempts,
	}, linksRepo, bloomFilter)
	scheduler := expiry.NewScheduler()

	// 事件：Kafka 或者进程内 channel，最终落到 sink
	var sink stats.Sink = stats.LogSink{Logger: slog.Default().With("component", "events")}
	if cfg.EventsSink == "postgres" {
		dbCtx, cancel := context.WithTimeout(stopCtx, 5*time.Second)
		pool, errDB := db.New(dbCtx, cfg.DBDSN)
		if errDB != nil {
			cancel()
			log.Fatal(errDB)
		}
		if _, err := persist.Migrate(dbCtx, pool); err != nil {
			cancel()
			log.Fatal(err)
		}
		cancel()
		defer pool.Close()
		sink = stats.NewPostgresSink(pool)
	}

	var pipeline stats.Collector
	var runConsumer func(context.Context)
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 传递链接事件", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		pipeline = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer := stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, sink)
		defer kafkaConsumer.Close()
		runConsumer = kafkaConsumer.Run
	} else {
		slog.Info("使用 Channel 传递链接事件", "sink", cfg.EventsSink)
		channelCollector := stats.NewChannelCollector(cfg.EventBuffer)
		pipeline = channelCollector
		runConsumer = stats.NewConsumer(channelCollector, sink).Run
	}

	limits := shortlink.Limits{MaxLifetimeSeconds: cfg.MaxLifetimeSeconds, MaxClickLimit: cfg.MaxClickLimit}

	// 会话需要服务，服务的事件又要发到会话，先建一个转发器
	notices := &noticeRelay{}
	collector := stats.Fanout{notices, pipeline}
	svc := shortlink.NewService(linksRepo, codes, scheduler, collector, limits)
	session := console.New(os.Stdin, os.Stdout, svc, usersRepo)
	notices.set(session)
	go session.PrintNotices()

	if snapshots != nil {
		restore(stopCtx, snapshots, usersRepo, svc)
	}

	consumerDone := make(chan struct{})
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go func() {
		defer close(consumerDone)
		runConsumer(consumerCtx)
	}()

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Run(schedulerCtx, svc.HandleExpiry)

	// admin 关闭时 adminErr 保持 nil，select 不会选中它
	var adminErr chan error
	if cfg.AdminEnabled {
		adminErr = make(chan error, 1)
		handler := adminHandler(cfg, linksRepo, scheduler)
		if cfg.TracingEnabled {
			handler = otelhttp.NewHandler(handler, "admin")
		}
		adminSrv := httpserver.New(cfg, handler)
		go func() {
			adminErr <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
		}()
	}

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- session.Run(stopCtx)
	}()

	select {
	case err := <-sessionDone:
		if err != nil {
			slog.Error("console session failed", "err", err)
		}
	case <-stopCtx.Done():
		slog.Info("shutdown signal received")
	case err := <-adminErr:
		if err != nil {
			slog.Error("admin server failed", "err", err)
		}
	}
	stop()
	stopScheduler()

	if snapshots != nil {
		save(snapshots, cfg.ShutdownTimeout, usersRepo, svc)
	}

	// 关闭 collector 后 consumer 会把剩余事件写完再退出
	collector.Close()
	if cfg.KafkaEnabled {
		stopConsumer()
	}
	select {
	case <-consumerDone:
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("event consumer did not finish in time")
		stopConsumer()
	}

	if cfg.AdminEnabled {
		select {
		case <-adminErr:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
	}
	slog.Info("bye")
}

func restore(ctx context.Context, snapshots persist.Snapshotter, users *repo.UsersRepo, svc *shortlink.Service) {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	snap, err := snapshots.Load(loadCtx)
	if errors.Is(err, persist.ErrNoSnapshot) {
		slog.Info("no snapshot, starting empty")
		return
	}
	if err != nil {
		slog.Error("snapshot load failed, starting empty", "err", err)
		return
	}
	restoredUsers := users.Restore(snap.Users)
	restored, dropped := svc.Restore(ctx, snap.Links)
	slog.Info("snapshot restored",
		"saved_at", snap.SavedAt,
		"users", restoredUsers,
		"links", restored,
		"links_dropped", dropped,
	)
}

func save(snapshots persist.Snapshotter, timeout time.Duration, users *repo.UsersRepo, svc *shortlink.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	snap := persist.Snapshot{
		SavedAt: time.Now(),
		Users:   users.All(),
		Links:   svc.Snapshot(),
	}
	if err := snapshots.Save(ctx, snap); err != nil {
		slog.Error("snapshot save failed", "err", err)
		return
	}
	slog.Info("snapshot saved", "users", len(snap.Users), "links", len(snap.Links))
}

// adminHandler 只监听本机：指标、就绪状态、版本和可选的 pprof。
func adminHandler(cfg config.Config, links *repo.LinksRepo, scheduler *expiry.Scheduler) http.Handler {
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"live_links":       links.Len(),
			"pending_expiries": scheduler.Pending(),
		})
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return adminMux
}
