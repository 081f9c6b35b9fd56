package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/ai"
	"github.com/suPer8Hu/agencore/internal/chat"
	"github.com/suPer8Hu/agencore/internal/config"
	"github.com/suPer8Hu/agencore/internal/db"
	"github.com/suPer8Hu/agencore/internal/httpapi"
	"github.com/suPer8Hu/agencore/internal/httpapi/handlers"
	"github.com/suPer8Hu/agencore/internal/logging"
	"github.com/suPer8Hu/agencore/internal/payments"
	"github.com/suPer8Hu/agencore/internal/session"
	"github.com/suPer8Hu/agencore/internal/store/rabbitmq"
	"github.com/suPer8Hu/agencore/internal/store/redisstore"
)

func modelFor(cfg config.Config) string {
	switch cfg.AIProvider {
	case "openrouter":
		return cfg.OpenRouterModel
	case "ollama":
		return cfg.OllamaModel
	default:
		return cfg.OpenAIModel
	}
}

func newGenerator(ctx context.Context, cfg config.Config) *ai.Generator {
	reg := ai.NewDefaultRegistry(ai.BackendSettings{
		Options:           ai.Options{MaxTokens: cfg.AIMaxTokens, Temperature: cfg.AITemperature},
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIModel:       cfg.OpenAIModel,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterModel:   cfg.OpenRouterModel,
		OpenRouterSiteURL: cfg.OpenRouterSiteURL,
		OpenRouterAppName: cfg.OpenRouterAppName,
		OllamaBaseURL:     cfg.OllamaBaseURL,
		OllamaModel:       cfg.OllamaModel,
	})
	model := modelFor(cfg)
	provider, err := ai.ProviderFor(ctx, reg, cfg.AIProvider, model)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.AIProvider).Strs("known", reg.Names()).Msg("ai provider")
	}
	if provider == nil {
		log.Warn().Str("provider", cfg.AIProvider).Msg("ai backend not configured, chat will explain instead of answering")
	}

	var opts []ai.GeneratorOption
	if cfg.ChatContextTokenBudget > 0 {
		opts = append(opts, ai.WithTokenBudget(ai.NewTokenCounter(model), cfg.ChatContextTokenBudget))
	}
	return ai.NewGenerator(provider, int64(cfg.AIMaxConcurrency), opts...)
}

// newActivitySink returns the configured sink and a closer for it.
func newActivitySink(cfg config.Config, dbSink *activity.GormSink) (activity.Sink, func()) {
	if cfg.ActivitySink != "rabbitmq" {
		return dbSink, func() {}
	}
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit publisher")
	}
	return pub, func() { _ = pub.Close() }
}

func newRateLimiter(ctx context.Context, cfg config.Config) session.RateLimiter {
	if cfg.RedisAddr == "" || cfg.ChatRateLimit <= 0 {
		return nil
	}
	rds := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisstore.Ping(ctx, rds); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, chat rate limit disabled")
		_ = rds.Close()
		return nil
	}
	return redisstore.NewRateLimiter(rds, "agencore:chat", cfg.ChatRateLimit, cfg.ChatRateWindow)
}

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	catalog, err := agents.LoadFile(cfg.AgentsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("agents catalog")
	}
	agentReg, err := agents.NewRegistry(catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("agents registry")
	}

	h := handlers.NewHandler(gdb, cfg, agentReg)
	h.Generator = newGenerator(ctx, cfg)
	h.Payments = payments.NewStripe(cfg.PaymentsAPIBaseURL, cfg.PaymentsSecretKey)

	sink, closeSink := newActivitySink(cfg, h.ActivityLog)
	recorder := activity.NewLogger(sink, cfg.ActivityQueueSize)
	h.Activity = recorder
	h.ActivityStats = recorder.Stats

	h.Core = session.NewCore(session.Deps{
		Agents:        agentReg,
		Entitlements:  h.Entitlements,
		Conversations: chat.NewRepo(gdb),
		Generator:     h.Generator,
		Activity:      recorder,
		RateLimiter:   newRateLimiter(ctx, cfg),
		HistoryLimit:  cfg.ChatContextWindowSize,
	})
	h.Sessions = session.NewRegistry()
	ws := session.NewServer(h.Core, h.Sessions, session.ServerConfig{
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		PendingRequests: cfg.WSPendingRequests,
		PingInterval:    cfg.WSPingInterval,
		WriteTimeout:    cfg.WSWriteTimeout,
		AllowedOrigins:  cfg.WSAllowedOrigins,
		JWTSecret:       cfg.JWTSecret,
		RequireAuth:     cfg.WSRequireAuth,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("ai_provider", cfg.AIProvider).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("open_channels", h.Sessions.Count()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// hijacked websocket connections are not tracked by Shutdown
		h.Sessions.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := recorder.Close(drainCtx); err != nil {
		log.Warn().Err(err).Msg("activity drain")
	}
	closeSink()
	log.Info().Interface("activity", recorder.Stats()).Msg("bye")
}
