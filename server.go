package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/handlers"
	"github.com/mmdatafocus/erp_backend/middlewares"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/mmdatafocus/erp_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// RateLimiter is a fixed window counter per client IP.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// PubSubPushEnvelope is the body Pub/Sub sends to a push endpoint.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data,omitempty"`
		ID         string            `json:"message_id"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// decodePushEnvelope returns the posting event inside a push body. Data is
// base64 on the wire and json decodes it into the byte slice.
func decodePushEnvelope(body []byte) (config.PubSubMessage, string, error) {
	var env PubSubPushEnvelope
	var m config.PubSubMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return m, "", fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Message.Data, &m); err != nil {
		return m, env.Message.ID, fmt.Errorf("decode message data: %w", err)
	}
	if m.ReferenceType == "" || m.ReferenceId <= 0 {
		return m, env.Message.ID, errors.New("reference_type and reference_id are required")
	}
	if m.CorrelationId == "" {
		m.CorrelationId = env.Message.ID
	}
	return m, env.Message.ID, nil
}

func postingLockKey(m config.PubSubMessage) string {
	return fmt.Sprintf("lock:posting:%s:%d", m.ReferenceType, m.ReferenceId)
}

// withDocumentLock runs fn under a short redis lock on the document. The lock
// only spares redundant work between deliveries; the posting lock and the
// idempotency key inside ProcessMessage serialize posting on their own.
func withDocumentLock(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage, fn func() error) error {
	fields := logrus.Fields{
		"field":          "accountingPubSubHandler",
		"reference_type": m.ReferenceType,
		"reference_id":   m.ReferenceId,
		"record_id":      m.ID,
	}
	lock, ok, err := config.ObtainLock(ctx, postingLockKey(m), 30*time.Second)
	switch {
	case errors.Is(err, redislock.ErrNotObtained):
		logger.WithFields(fields).Warn("could not obtain redis lock; proceeding without redis lock")
	case err != nil:
		logger.WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
	case !ok:
		logger.WithFields(fields).Warn("redis lock not ready; proceeding without redis lock")
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				logger.WithFields(fields).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()
	}
	return fn()
}

func accountingPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "accountingPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		m, messageId, err := decodePushEnvelope(body)
		if err != nil {
			// Poisoned messages are acked so Pub/Sub stops redelivering them.
			config.LogError(logger, "server.go", "accountingPubSubHandler", "decodePushEnvelope", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), m.CorrelationId)
		processor := workflow.NewProcessor(config.GetDB(), logger)
		err = withDocumentLock(ctx, logger, m, func() error {
			return processor.ProcessMessage(ctx, m)
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "accountingPubSubHandler",
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     messageId,
				"correlation_id": m.CorrelationId,
			}).Error("pubsub processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}
		status, err := models.ReplayOutboxRecord(c.Request.Context(), req.RecordId)
		switch {
		case errors.Is(err, utils.ErrorForbidden), errors.Is(err, utils.ErrorUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"record_id":      req.RecordId,
			"status":         status,
			"correlation_id": cid,
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func readinessGate(c *gin.Context) {
	if c.Request.URL.Path == "/healthz" {
		c.Status(http.StatusNoContent)
		c.Abort()
		return
	}
	if config.GetDB() == nil || config.GetRedisDB() == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	c.Next()
}

func corsConfigFromEnv() cors.Config {
	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist; an empty one denies all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		if corsConfig.AllowOrigins == nil {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

func int64FromEnv(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(readinessGate)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(cors.New(corsConfigFromEnv()))
	// Registered ahead of the session middleware: push requests carry a
	// Pub/Sub OIDC bearer token, not a user session.
	r.POST("/pubsub", accountingPubSubHandler())

	// RATE_LIMIT_ENABLED=true, RATE_LIMIT_WINDOW_SECONDS=60, RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64FromEnv("RATE_LIMIT_MAX_REQUESTS", 600)
		window := time.Duration(int64FromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(NewRateLimiter(limit, window).RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.LoaderMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/internal/ops/outbox/replay", middlewares.RequireUser(), outboxReplayHandler())
	handlers.Register(r)
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The port opens before dependencies connect; the readiness gate answers
	// 503 until they do.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if config.PubSubConfigured() {
		go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
		if os.Getenv("PUBSUB_SUBSCRIPTION") != "" {
			if err := RunAccountingWorkflow(workerCtx); err != nil {
				config.LogError(logger, "server.go", "main", "RunAccountingWorkflow", nil, err)
			}
		}
	}
	if config.OutboxDirectProcessing() {
		go NewOutboxDirectProcessor(db, logger).Run(workerCtx)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/api/v1")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Workers stop first so no new posting starts while requests drain.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that recorded gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// NewRateLimiter uses the shared redis client once it is connected.
func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) redisClient() *redis.Client {
	if rl.client != nil {
		return rl.client
	}
	return config.GetRedisDB()
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.redisClient()
	if client == nil {
		c.Next()
		return
	}
	key := "RateLimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
