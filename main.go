package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"presence-service/internal/auth"
	"presence-service/internal/db"
	"presence-service/internal/handlers"
	"presence-service/internal/middleware"
	"presence-service/internal/observability"
	"presence-service/internal/rabbitmq"
	"presence-service/internal/repositories"
	"presence-service/internal/telemetry"
	"presence-service/internal/ws"
)

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if endpoint := getEnv("OTLP_ENDPOINT", ""); endpoint != "" {
		shutdown, err := telemetry.SetupTracing(context.Background(), "presence-service", getEnv("ENVIRONMENT", "dev"), endpoint)
		if err != nil {
			log.Fatalf("failed to set up tracing: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	amqpURL := getEnv("AMQP_URL", "")
	if amqpURL != "" {
		eventsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("EVENTS_EXCHANGE", "platform.events"))
		if err != nil {
			log.Printf("events publisher disabled: %v", err)
		} else {
			observability.SetPublisher(eventsPublisher)
			defer eventsPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "platform.audit"))
	defer auditPublisher.Close()
	if mode := rabbitmq.PublisherMode(auditPublisher); mode == "noop" {
		log.Printf("audit publisher mode=%s reason=%q", mode, rabbitmq.PublisherNoopReason(auditPublisher))
	} else {
		log.Printf("audit publisher mode=%s", mode)
	}

	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, getEnv("AUDIT_ROUTING_KEY", "audit.presence"), "presence-service", getEnv("ENVIRONMENT", "dev"))

	verifier := auth.NewJWTVerifier(getEnv("JWT_SECRET", "change-me-in-production"))
	userRepo := repositories.NewUserStatusRepo(database)

	authTimeout, err := time.ParseDuration(getEnv("WS_AUTH_TIMEOUT", "30s"))
	if err != nil {
		log.Fatalf("invalid WS_AUTH_TIMEOUT: %v", err)
	}

	hub := ws.NewHub()
	observability.RegisterRoomGauge(hub.RoomCount)
	wsHandler := ws.NewHandler(hub, verifier, userRepo, authTimeout)
	presenceHandler := handlers.NewPresenceHandler(hub, auditEmitter)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("presence-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/presence/online", authMiddleware, presenceHandler.ListOnline)
	router.GET("/presence/rooms", authMiddleware, presenceHandler.ListRooms)
	router.GET("/presence/rooms/:room_id", authMiddleware, presenceHandler.RoomOccupants)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
