package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"chat-client/internal/api"
	"chat-client/internal/config"
	"chat-client/internal/handlers"
	"chat-client/internal/ledger"
	"chat-client/internal/middleware"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/realtime"
	"chat-client/internal/session"
	"chat-client/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := setupTracing(cfg.OTLPAddr)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing()

	ledgerDB, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Fatalf("failed to open ledger: %v", err)
	}
	tombstones, err := ledger.New(ledgerDB, cfg.UndoGrace)
	if err != nil {
		log.Fatalf("failed to load ledger: %v", err)
	}
	defer tombstones.Close()

	backend := api.NewClient(cfg.BackendURL, cfg.AuthToken, cfg.HTTPTimeout)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.EventExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))
	emitter := telemetry.NewAuditEmitter(publisher, cfg.AuditExchange, "chat-client", cfg.Env)

	sessions := session.NewManager(func(conversationID string) (session.Config, error) {
		sessionCfg := session.Config{
			ConversationID: conversationID,
			SelfID:         cfg.UserID,
			Backend:        backend,
			Ledger:         tombstones,
			Audit:          emitter,
		}
		if cfg.RealtimeMode == "amqp" {
			consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.EventExchange, conversationID)
			if err != nil {
				return session.Config{}, err
			}
			sessionCfg.Source = consumer
			return sessionCfg, nil
		}
		ws := realtime.NewWSSource(cfg.BackendWS, cfg.AuthToken, conversationID)
		sessionCfg.Source = ws
		sessionCfg.Presence = ws
		return sessionCfg, nil
	})
	defer sessions.CloseAll()

	conversationHandler := handlers.NewConversationHandler(sessions)

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-client"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(cfg.LocalToken)
	apiRoutes := router.Group("/", authMiddleware)
	conversationHandler.Register(apiRoutes)

	handlers.RegisterDebugRoutes(router, emitter, sessions, cfg.Debug)

	log.Printf("chat client listening on %s (realtime=%s)", cfg.ListenAddr, cfg.RealtimeMode)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// setupTracing wires the OTLP exporter when an endpoint is configured; with
// no endpoint, spans stay in-process no-ops.
func setupTracing(otlpAddr string) (func(), error) {
	if otlpAddr == "" {
		return func() {}, nil
	}

	conn, err := grpc.NewClient(otlpAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.Printf("trace provider shutdown: %v", err)
		}
		conn.Close()
	}, nil
}
