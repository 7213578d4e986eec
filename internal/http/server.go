// Package http serves the health check and the Bot API webhook receiver.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SecretHeader carries the webhook secret configured through setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const shutdownTimeout = 10 * time.Second

// Submitter accepts decoded updates.
type Submitter interface {
	Submit(ctx context.Context, upd messenger.Update)
}

// Options configures the engine.
type Options struct {
	DB *gorm.DB
	// Sink receives webhook updates. A nil Sink leaves the webhook route unregistered.
	Sink        Submitter
	WebhookPath string
	Secret      string
	// BaseContext is handed to the Sink in place of the request context, which ends
	// with the response.
	BaseContext context.Context
}

// NewEngine builds the gin engine.
func NewEngine(opts Options) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	health := &healthHandler{db: opts.DB}
	engine.GET("/healthz", health.Healthz)

	if opts.Sink != nil && opts.WebhookPath != "" {
		base := opts.BaseContext
		if base == nil {
			base = context.Background()
		}
		hook := &webhookHandler{sink: opts.Sink, secret: opts.Secret, ctx: base}
		engine.POST(opts.WebhookPath, hook.Receive)
	}
	return engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(started).String(),
		}).Debug("http request")
	}
}

type healthHandler struct {
	db *gorm.DB
}

// Healthz checks database connectivity.
func (h *healthHandler) Healthz(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type webhookHandler struct {
	sink   Submitter
	secret string
	ctx    context.Context
}

// Receive queues one update and acknowledges it at once. Processing errors never
// surface as HTTP errors, otherwise the Bot API would redeliver the update.
func (h *webhookHandler) Receive(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(h.secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}
	var upd messenger.Update
	if errBind := c.ShouldBindJSON(&upd); errBind != nil {
		log.WithError(errBind).Warn("webhook: malformed update")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}
	h.sink.Submit(h.ctx, upd)
	c.Status(http.StatusOK)
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return errShutdown
	}
	log.Info("http server stopped")
	return nil
}
