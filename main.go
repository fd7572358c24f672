package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/chat"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/notifications"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	notifier := notifications.NewNotifier(cfg.AMQPURL, cfg.AMQPExchange)
	defer notifier.Close()

	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	hub := ws.NewHub()
	presence := ws.NewPresence()
	typing := ws.NewTypingTracker()

	pipeline := chat.NewPipeline(convRepo, messageRepo, notifier, hub)
	gateway := ws.NewGateway(hub, presence, typing, verifier, convRepo, pipeline)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/ws", gateway.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
