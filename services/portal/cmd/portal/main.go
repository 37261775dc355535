package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BillK181/wedding-website/internal/sessiontoken"
	"github.com/BillK181/wedding-website/internal/util"
	"github.com/BillK181/wedding-website/pkg/ai"
	"github.com/BillK181/wedding-website/pkg/directory"
	"github.com/BillK181/wedding-website/pkg/queue"
	"github.com/BillK181/wedding-website/services/portal/internal/app"
	"github.com/BillK181/wedding-website/services/portal/internal/briefing"
	"github.com/BillK181/wedding-website/services/portal/internal/config"
	"github.com/BillK181/wedding-website/services/portal/internal/server"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	defaultPath := config.ConfigPath
	if v := os.Getenv("PORTAL_CONFIG"); v != "" {
		defaultPath = v
	}
	configPath := flag.String("config", defaultPath, "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

// run wires the portal and serves until a signal arrives. Every resource it
// opens is closed by a deferred call before it returns.
func run(configPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		return err
	}
	purgeInterval, err := config.ParseDuration("sessionPurgeInterval", cfg.SessionPurgeInterval)
	if err != nil {
		return err
	}
	genTimeout, err := config.ParseDuration("generationTimeout", cfg.GenerationTimeout)
	if err != nil {
		return err
	}

	guests, closeGuests, err := newGuestStore(cfg)
	if err != nil {
		return fmt.Errorf("init guest store: %w", err)
	}
	defer closeGuests()

	dir, err := directory.Load(cfg.GuestListPath)
	if err != nil {
		return fmt.Errorf("load guest list %s: %w", cfg.GuestListPath, err)
	}
	facts, err := briefing.Load(cfg.BriefingPath)
	if err != nil {
		return fmt.Errorf("load briefing %s: %w", cfg.BriefingPath, err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	sessions, closeSessions, err := newSessionStore(cfg, guests, redisClient, sessionTTL)
	if err != nil {
		return fmt.Errorf("init %s session store: %w", cfg.SessionStore, err)
	}
	defer closeSessions()

	generator := ai.NewLazyGenerator(func() (ai.ChatGenerator, error) {
		return ai.NewGenerator(ai.Config{
			Provider: cfg.GenerationProvider,
			BaseURL:  cfg.GenerationBaseURL,
			APIKey:   cfg.GenerationAPIKey,
			Model:    cfg.GenerationModel,
		})
	})

	var rsvpStream *queue.RSVPStream
	appCfg := app.Config{
		Directory:         dir,
		Guests:            guests,
		Sessions:          sessions,
		Generator:         generator,
		Facts:             facts,
		AdminName:         cfg.AdminName,
		GenerationTimeout: genTimeout,
	}
	if redisClient != nil {
		rsvpStream, err = queue.NewRSVPStream(redisClient, queue.RSVPStreamConfig{Stream: cfg.RSVPStream})
		if err != nil {
			return fmt.Errorf("init rsvp stream: %w", err)
		}
		appCfg.Events = rsvpStream
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	added, err := appCore.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed guests: %w", err)
	}
	slog.Info("guest list loaded", "listed", dir.Len(), "added", added)

	sessionCodec, err := sessiontoken.NewCodec(cfg.SessionSecret, "session", sessionTTL)
	if err != nil {
		return fmt.Errorf("init session cookie signer: %w", err)
	}
	flashCodec, err := sessiontoken.NewCodec(cfg.SessionSecret, "flash", 5*time.Minute)
	if err != nil {
		return fmt.Errorf("init flash cookie signer: %w", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	limiter, err := newLoginLimiter(cfg, redisClient)
	if err != nil {
		return fmt.Errorf("init login limiter: %w", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		SessionCodec:   sessionCodec,
		FlashCodec:     flashCodec,
		LoginLimiter:   limiter.Limiter,
		TrustedProxies: trusted,
		CookieSecure:   cfg.CookieSecure,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: genTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("portal server listening", "addr", addr, "sessions", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if limiter.Run != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}
	if purger, ok := sessions.(sessionPurger); ok && purgeInterval > 0 {
		g.Go(func() error { return purgeSessions(gctx, purger, purgeInterval) })
	}
	if rsvpStream != nil {
		if err := rsvpStream.Start(gctx, 1, logRSVPEvent); err != nil {
			logger.Warn("rsvp stream consumer not started", "err", err)
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		return err
	}
	slog.Info("portal server stopped")
	return nil
}

func logRSVPEvent(_ context.Context, ev queue.RSVPEvent) error {
	slog.Info("rsvp_recorded",
		"guest_id", ev.GuestID,
		"guest", ev.GuestName,
		"status", ev.Status.Label(),
		"recorded_at", ev.RecordedAt,
	)
	return nil
}
