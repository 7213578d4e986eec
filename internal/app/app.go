package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/bot"
	"github.com/ibrohim2505/prokinobot/internal/broadcast"
	"github.com/ibrohim2505/prokinobot/internal/channels"
	"github.com/ibrohim2505/prokinobot/internal/config"
	"github.com/ibrohim2505/prokinobot/internal/content"
	"github.com/ibrohim2505/prokinobot/internal/db"
	"github.com/ibrohim2505/prokinobot/internal/delivery"
	"github.com/ibrohim2505/prokinobot/internal/directory"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/gate"
	relayhttp "github.com/ibrohim2505/prokinobot/internal/http"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/premium"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	"github.com/ibrohim2505/prokinobot/internal/store"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// startupTimeout bounds the Bot API and Redis calls made before serving.
	startupTimeout = 30 * time.Second
	// drainTimeout bounds how long queued updates may run after shutdown starts.
	drainTimeout = 15 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// Run boots the bot and blocks until ctx is cancelled. In-flight updates are drained
// before it returns.
func Run(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshSnapshot(ctx, conn); errRefresh != nil {
		return fmt.Errorf("app: load settings: %w", errRefresh)
	}

	client := messenger.NewTelegramClient(cfg.BotToken, messenger.WithBaseURL(cfg.APIBaseURL))
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()
	me, errMe := client.GetMe(startCtx)
	if errMe != nil {
		return fmt.Errorf("app: getMe: %w", errMe)
	}
	log.WithFields(log.Fields{"bot_id": me.ID, "username": me.Username}).Info("bot identity resolved")

	st := store.NewGormStore(conn)
	dir := directory.New(st, cfg.SuperadminID)
	if errSeed := dir.EnsureSuperadmin(ctx); errSeed != nil {
		return fmt.Errorf("app: seed superadmin: %w", errSeed)
	}

	sessions, markers, closeSessions, errSessions := openSessions(startCtx, cfg)
	if errSessions != nil {
		return errSessions
	}
	defer closeSessions()

	dispatcher := bot.NewDispatcher(buildRouter(cfg, conn, st, dir, client, me.ID, sessions, markers))
	session.NewSweeper(sessions, cfg.SessionTTL, cfg.SweepInterval).Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	httpOpts := relayhttp.Options{DB: conn}
	if cfg.Mode == config.ModeWebhook {
		httpOpts.Sink = dispatcher
		httpOpts.WebhookPath = cfg.Webhook.Path
		httpOpts.Secret = cfg.Webhook.Secret
		httpOpts.BaseContext = ctx
		if errHook := client.SetWebhook(startCtx, cfg.Webhook.URL, cfg.Webhook.Secret); errHook != nil {
			return fmt.Errorf("app: setWebhook: %w", errHook)
		}
		log.WithField("url", cfg.Webhook.URL).Info("webhook registered")
	} else if errDelete := client.DeleteWebhook(startCtx); errDelete != nil {
		return fmt.Errorf("app: deleteWebhook: %w", errDelete)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relayhttp.Serve(gctx, cfg.HTTPAddr, relayhttp.NewEngine(httpOpts))
	})
	if cfg.Mode != config.ModeWebhook {
		poller := bot.NewPoller(client, dispatcher, cfg.PollTimeout)
		g.Go(func() error { return poller.Run(gctx) })
	}
	log.WithField("mode", cfg.Mode).Info("prokinobot started")

	errRun := g.Wait()
	log.WithField("active", dispatcher.Active()).Info("draining in-flight updates")
	if !dispatcher.Shutdown(drainTimeout) {
		log.WithField("timeout", drainTimeout).Warn("drain timed out; remaining updates cancelled")
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
	log.Info("prokinobot stopped")
	return errRun
}

// openSessions picks the Redis backend when a URL is configured, memory otherwise.
func openSessions(ctx context.Context, cfg config.AppConfig) (session.Store, session.GateMarkers, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("using in-memory session store")
		return session.NewMemoryStore(), session.NewMemoryMarkers(), func() {}, nil
	}
	client, err := session.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("using redis session store")
	closeFn := func() {
		if errClose := client.Close(); errClose != nil {
			log.WithError(errClose).Warn("close redis client")
		}
	}
	return session.NewRedisStore(client, max(cfg.SessionTTL, 0)), session.NewRedisMarkers(client), closeFn, nil
}

func buildRouter(cfg config.AppConfig, conn *gorm.DB, st *store.GormStore, dir *directory.Directory, msg messenger.Messenger, botID int64, sessions session.Store, markers session.GateMarkers) *bot.Router {
	registry := content.NewRegistry(st)
	publisher := content.NewPublisher(registry, msg)
	settingsSvc := settings.NewService(conn)
	premiumSvc := premium.NewService(st, dir, msg)
	deliverer := delivery.New(registry, msg)

	engine := flow.NewEngine(sessions, dir,
		content.NewMovieAddFlow(publisher),
		broadcast.NewComposeFlow(broadcast.NewEngine(msg, cfg.BroadcastConcurrency), st),
		directory.NewAddAdminFlow(dir, st, msg),
		channels.NewConfigFlow(st, msg, botID),
		premium.NewPurchaseFlow(premiumSvc),
		settings.NewEditFlow(settingsSvc, msg, botID),
		content.NewLookupFlow(registry),
	)
	return bot.NewRouter(bot.Deps{
		Store:     st,
		Messenger: msg,
		Directory: dir,
		Engine:    engine,
		Gate:      gate.New(st, dir, msg, markers, deliverer),
		Publisher: publisher,
		Premium:   premiumSvc,
		Settings:  settingsSvc,
	})
}
