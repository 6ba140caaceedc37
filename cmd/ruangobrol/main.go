package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/ruangobrol/backend/internal/auth"
	"github.com/ruangobrol/backend/internal/cache"
	"github.com/ruangobrol/backend/internal/chat"
	"github.com/ruangobrol/backend/internal/config"
	"github.com/ruangobrol/backend/internal/conversations"
	"github.com/ruangobrol/backend/internal/delivery"
	"github.com/ruangobrol/backend/internal/jobs"
	"github.com/ruangobrol/backend/internal/media"
	"github.com/ruangobrol/backend/internal/messages"
	"github.com/ruangobrol/backend/internal/presence"
	"github.com/ruangobrol/backend/internal/push"
	"github.com/ruangobrol/backend/internal/storage/postgres"
	"github.com/ruangobrol/backend/internal/storage/sqlite"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/ruangobrol/backend/internal/unread"
	"github.com/ruangobrol/backend/internal/users"
)

func main() {
	migrate := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using environment")
	}
	cfg := config.MustLoad()

	db, err := openDB(context.Background(), cfg, *migrate)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if *migrate {
		slog.Info("migration completed")
		return
	}

	rdb := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()); err != nil {
		// the core degrades to store reads without the cache but every
		// request would pay for it; refuse to start half-blind
		log.Fatalf("redis: %v", err)
	}

	st := store.New(db)
	registry := presence.NewRegistry(rdb)
	counter := unread.NewCounter(st, rdb)
	hub := chat.NewHub(st, registry)

	var gateway push.Gateway
	if cfg.FCMCredentialsFile != "" {
		gw, err := push.NewFCMGateway(context.Background(), cfg.FCMCredentialsFile)
		if err != nil {
			log.Fatalf("fcm: %v", err)
		}
		gateway = gw
	} else {
		slog.Warn("FCM_CREDENTIALS_FILE not set, push notifications are log-only")
		gateway = push.NewLogGateway()
	}
	dispatcher := push.NewDispatcher(st, gateway)

	engine := delivery.NewEngine(st, counter, hub, registry, dispatcher)

	reconciler := unread.NewReconciler(counter, time.Duration(cfg.UnreadSyncWindowMin)*time.Minute)
	runner := jobs.NewRunner(
		jobs.Job{
			Name:     "unread-sync",
			Interval: time.Duration(cfg.UnreadSyncIntervalMin) * time.Minute,
			Run:      reconciler.Run,
		},
		jobs.Job{
			Name:     "nearby-sweep",
			Interval: time.Duration(cfg.NearbySweepIntervalMin) * time.Minute,
			Run: func(ctx context.Context) error {
				n, err := st.SweepExpiredNearby(ctx, time.Now())
				if n > 0 {
					slog.Info("expired nearby chats cleaned up", "count", n)
				}
				return err
			},
		},
	)
	runner.Start()
	defer runner.Stop()

	r := gin.Default()
	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api")
	users.RegisterPublic(api.Group("/user"), st, cfg)

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))
	users.RegisterProtected(protected.Group("/user"), st)
	conversations.Register(protected.Group("/chat"), conversations.Service{
		Store:     st,
		Engine:    engine,
		Counter:   counter,
		NearbyTTL: time.Duration(cfg.NearbyTTLHours) * time.Hour,
	})
	messages.Register(protected.Group("/chat"), messages.Service{
		Engine:   engine,
		Uploader: &media.DiskUploader{Dir: cfg.UploadDir, BaseURL: "/uploads"},
	})
	chat.RegisterWS(r.Group(""), hub, cfg.JWTSecret)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func openDB(ctx context.Context, cfg config.Config, migrate bool) (*sql.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		conn, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := conn.Migrate(""); err != nil {
				return nil, err
			}
		}
		return conn.Db, nil
	default:
		conn, err := sqlite.New(cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := conn.Migrate(""); err != nil {
				return nil, err
			}
		}
		return conn.Db, nil
	}
}
