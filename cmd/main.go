package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chatmatch/backend/internal/api/handler"
	"chatmatch/backend/internal/auth"
	"chatmatch/backend/internal/chathub"
	"chatmatch/backend/internal/config"
	"chatmatch/backend/internal/events"
	"chatmatch/backend/internal/localization"
	"chatmatch/backend/internal/metrics"
	"chatmatch/backend/internal/storage"
	"chatmatch/backend/internal/telegram"
	"chatmatch/backend/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupDependencies connects the optional backends. Either return value may be nil.
func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client) {
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			log.Fatalf("Failed to connect PostgreSQL: %v", err)
		}
	} else {
		log.Println("WARNING: DATABASE_URL not set, users are kept in memory and nothing is archived")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
	}
	return db, rdb
}

// restoreArchive prepares the archive for a fresh engine: sessions left open
// by the previous process are closed and message ids continue where they
// stopped.
func restoreArchive(ctx context.Context, s *storage.Service, engine *chathub.Engine) {
	if err := s.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	closed, err := s.CloseStaleSessions(ctx, time.Now())
	if err != nil {
		log.Fatalf("Failed to close stale sessions: %v", err)
	}
	if closed > 0 {
		log.Printf("INFO: closed %d sessions left open by a previous run", closed)
	}
	last, err := s.MaxMessageID(ctx)
	if err != nil {
		log.Fatalf("Failed to read message sequence: %v", err)
	}
	engine.Relay.SeedSequence(last)
}

func main() {
	log.Println("Starting chat matchmaking backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Settings{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.OTELServiceName,
		Environment: cfg.Env,
		SampleRatio: 1,
	})
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}

	// 1. Backends
	db, rdb := setupDependencies(ctx, cfg)
	store := storage.NewStorageService(db, rdb)
	if err := store.ResetPresence(ctx); err != nil {
		log.Printf("WARNING: failed to reset presence set: %v", err)
	}

	// 2. Engine and its sinks
	engine := chathub.NewEngine()
	hub := chathub.NewHub(engine)
	engine.AddSink(hub)
	engine.AddSink(metrics.NewCollector(prometheus.DefaultRegisterer))

	var users auth.UserRepository = storage.NewMemoryUsers()
	if db != nil {
		restoreArchive(ctx, store, engine)
		users = store
	}
	if db != nil || rdb != nil {
		engine.AddSink(store)
	}

	var kafkaPub *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		engine.AddSink(kafkaPub)
	}

	authSvc := auth.NewService(users, engine, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL))

	// 3. Telegram transport
	var bot *telegram.BotService
	if cfg.TelegramToken != "" {
		l, err := localization.Default()
		if err != nil {
			log.Fatalf("Failed to load translations: %v", err)
		}
		bot, err = telegram.NewBotService(cfg.TelegramToken, engine, hub, authSvc, l)
		if err != nil {
			log.Fatalf("Failed to start Telegram bot: %v", err)
		}
	} else {
		log.Println("INFO: TELEGRAM_BOT_TOKEN not set, Telegram transport disabled")
	}

	// 4. Background goroutines
	go engine.Run(ctx)
	go hub.Run(ctx)
	if bot != nil {
		go bot.Run(ctx)
	}

	// 5. HTTP
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(engine, hub, authSvc)
	h.AllowedOrigins = cfg.AllowedOrigins
	r := handler.NewRouter(h)

	server := &http.Server{
		Addr:           cfg.AppPort,
		Handler:        otelhttp.NewHandler(r, "http"),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("INFO: listening on %s", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP shutdown: %v", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			log.Printf("ERROR: closing Kafka writer: %v", err)
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("ERROR: flushing traces: %v", err)
	}
}
