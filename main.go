package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devspace-backend/config"
	"devspace-backend/devspace"
	"devspace-backend/events"
	"devspace-backend/handler"
	"devspace-backend/internal/health"
	"devspace-backend/internal/telemetry"
	"devspace-backend/log"
	"devspace-backend/mail"
	"devspace-backend/profile"
	"devspace-backend/push"
	"devspace-backend/ratelimit"
	"devspace-backend/search"
	"devspace-backend/store"
	"devspace-backend/upload"
	"devspace-backend/watch"
	"go.uber.org/zap"
)

const healthInterval = 30 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("invalid configuration:", err)
		os.Exit(1)
	}
	log.EnsureLogger(cfg.Logging.Level)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		log.Logger.Warn("tracing disabled", zap.Error(err))
	}

	client, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		log.Logger.Fatal("failed connecting to database", zap.Error(err))
	}
	st := store.New(client, cfg.Mongo.Database)
	if err := st.EnsureIndexes(ctx); err != nil {
		log.Logger.Fatal("failed creating indexes", zap.Error(err))
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx, nil) }

	hub := push.NewHub(cfg.Push.InactiveTimeout, nil)
	go hub.Run(ctx, cfg.Push.SweepInterval)

	socket := push.NewSocketServer(hub)
	go func() {
		if err := socket.Serve(); err != nil {
			log.Logger.Error("socket server stopped", zap.Error(err))
		}
	}()
	defer socket.Close()

	dispatchers := devspace.Dispatchers{}
	if cfg.Rabbit.URL != "" {
		evts, err := events.Connect(ctx, cfg.Rabbit.URL)
		if err != nil {
			log.Logger.Fatal("failed connecting to rabbitmq", zap.Error(err))
		}
		defer evts.Close()

		consumed, err := evts.Consume(ctx)
		if err != nil {
			log.Logger.Fatal("failed consuming devspace events", zap.Error(err))
		}
		go events.Forward(ctx, consumed, hub)
		dispatchers = append(dispatchers, evts)
	} else {
		dispatchers = append(dispatchers, hub)
	}
	if cfg.Mailgun.Domain != "" && cfg.Mailgun.APIKey != "" {
		mailer := mail.NewMailgun(cfg.Mailgun.Domain, cfg.Mailgun.APIKey, cfg.Mailgun.From)
		dispatchers = append(dispatchers, mail.NewNotifier(mailer, st.Users))
	}

	engine := devspace.NewEngine(st.Devspaces, st.Users, dispatchers, devspace.Options{
		MaxTeamSize:    cfg.Devspace.MaxTeamSize,
		MaxOutstanding: cfg.Devspace.MaxOutstanding,
		MaxRetries:     cfg.Devspace.MaxRetries,
	})

	profileCooldown := ratelimit.NewCooldown(cfg.Cooldown.Profile, nil)
	statusCooldown := ratelimit.NewCooldown(cfg.Cooldown.Status, nil)
	searchCooldown := ratelimit.NewCooldown(cfg.Cooldown.Search, nil)
	go pruneCooldowns(ctx, cfg.Push.SweepInterval, profileCooldown, statusCooldown, searchCooldown)

	ai := search.NewOpenAI(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.EmbeddingModel, cfg.LLM.ChatModel)
	profiles := profile.NewService(st.Users, st.Statuses, st.Devspaces, ai, profile.Limits{
		Profile: profileCooldown,
		Status:  statusCooldown,
	})
	searcher := search.NewService(st.Users, ai, ai, searchCooldown)

	var uploads handler.Uploader
	if cfg.S3.Bucket != "" {
		u, err := upload.New(ctx, cfg.S3.Region, cfg.S3.Bucket)
		if err != nil {
			log.Logger.Warn("photo uploads disabled", zap.Error(err))
		} else {
			uploads = u
		}
	}

	watcher := watch.NewWatcher(st.Users, hub)
	go func() {
		if err := watcher.Run(ctx, st.Users.Collection(), st.Statuses.Collection()); err != nil {
			log.Logger.Error("change streams stopped", zap.Error(err))
		}
	}()

	hs := health.NewServer()
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Logger.Fatal("failed to listen", zap.Error(err))
	}
	go func() {
		if err := hs.Serve(lis); err != nil {
			log.Logger.Error("couldn't serve grpc health", zap.Error(err))
		}
	}()
	go checkHealth(ctx, hs, ping)

	srv := &http.Server{
		Addr: cfg.ServerAddr(),
		Handler: handler.NewRouter(handler.Deps{
			Devspace:       engine,
			Profiles:       profiles,
			Search:         searcher,
			Uploads:        uploads,
			Socket:         socket,
			Health:         ping,
			JWTKey:         []byte(cfg.Auth.JWTKey),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Logger.Info(fmt.Sprintf("Listening on: %s", cfg.ServerAddr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Fatal("couldn't serve http", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Logger.Warn("http shutdown", zap.Error(err))
	}
	hs.Stop()
	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Logger.Warn("database disconnect", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func pruneCooldowns(ctx context.Context, interval time.Duration, cooldowns ...*ratelimit.Cooldown) {
	if interval <= 0 {
		interval = push.DefaultSweepInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, c := range cooldowns {
				c.Prune()
			}
		}
	}
}

func checkHealth(ctx context.Context, hs *health.Server, ping health.Pinger) {
	hs.Check(ctx, ping)

	t := time.NewTicker(healthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hs.Check(ctx, ping)
		}
	}
}
