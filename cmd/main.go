package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/adapters/audio"
	"github.com/satriahrh/kundli/server/adapters/llm"
	memstore "github.com/satriahrh/kundli/server/adapters/memory"
	"github.com/satriahrh/kundli/server/adapters/mongo"
	"github.com/satriahrh/kundli/server/adapters/persona"
	rtclient "github.com/satriahrh/kundli/server/adapters/realtime"
	"github.com/satriahrh/kundli/server/adapters/userstate"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/api"
	"github.com/satriahrh/kundli/server/internal/auth"
	"github.com/satriahrh/kundli/server/internal/config"
	"github.com/satriahrh/kundli/server/internal/instruction"
	"github.com/satriahrh/kundli/server/internal/memory"
	"github.com/satriahrh/kundli/server/internal/realtime"
	"github.com/satriahrh/kundli/server/internal/saga"
	"github.com/satriahrh/kundli/server/internal/saga/settlement"
	"github.com/satriahrh/kundli/server/internal/websocket"
	"github.com/satriahrh/kundli/server/usecase"
)

type stores struct {
	conversations repositories.ConversationStore
	wallet        repositories.Wallet
	profiles      repositories.AstrologyProfiles
	close         func(ctx context.Context)
}

func main() {
	// Initialize logger
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize adapters
	catalog := persona.LoadFile(cfg.PersonaFile, logger)
	logger.Info("Persona catalog loaded", zap.Int("personas", catalog.Len()))

	backend, err := newStateBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize user state backend", zap.Error(err))
	}
	states := userstate.NewStore(ctx, backend, logger)

	st, err := newStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize stores", zap.Error(err))
	}

	chat, err := llm.New(ctx, llm.Options{
		Provider:    cfg.ChatProvider,
		OpenAIKey:   cfg.OpenAIAPIKey,
		OpenAIURL:   cfg.OpenAIBaseURL,
		OpenAIModel: cfg.ChatModel,
		GeminiKey:   cfg.GeminiAPIKey,
		GeminiModel: cfg.GeminiModel,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize chat provider", zap.Error(err))
	}

	mem := memory.New(cfg.MemoryCapacity)
	synth := instruction.NewSynthesizer(catalog, states, mem, st.profiles, cfg.DefaultVoice, logger)
	codec := audio.NewCodec(cfg.FFmpegPath, logger)

	// Settlement saga
	sagaManager := saga.NewManager(logger)
	go logSagaEvents(ctx, sagaManager, logger)
	settler := settlement.NewService(sagaManager, st.conversations, st.wallet, cfg.RatePerMinute, logger)

	// Initialize usecase services
	registry := realtime.NewRegistry(realtime.Dependencies{
		Dialer:        rtclient.NewDialer(cfg.RealtimeURL, cfg.OpenAIAPIKey, cfg.RealtimeModel, logger),
		Synthesizer:   synth,
		Codec:         codec,
		States:        states,
		Conversations: st.conversations,
		Settler:       settler,
		Config: realtime.Config{
			Temperature:        cfg.Temperature,
			VADThreshold:       cfg.VADThreshold,
			TranscriptionModel: cfg.TranscriptionModel,
			TurnTimeout:        cfg.TurnTimeout,
			ResponseFormat:     cfg.ResponseFormat,
			DefaultPersonaID:   cfg.DefaultPersonaID,
		},
		Logger: logger,
	})

	text := usecase.NewTextConsultation(synth, chat, states, st.conversations, usecase.TextConsultationOptions{
		DefaultPersonaID: cfg.DefaultPersonaID,
		Temperature:      cfg.ChatTemperature,
		MaxTokens:        cfg.ChatMaxTokens,
	}, logger)

	sweeper := usecase.NewConversationSweeper(st.conversations, settler, registry.HoldsConversation, cfg.IdleTimeout, cfg.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start conversation sweeper", zap.Error(err))
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	hub := websocket.NewHub(registry, issuer, logger)
	go hub.Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Hub:           hub,
		Issuer:        issuer,
		Catalog:       catalog,
		Text:          text,
		Conversations: st.conversations,
		ServiceKey:    cfg.ServiceAPIKey,
		Logger:        logger,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("chatProvider", cfg.ChatProvider),
		zap.String("stateBackend", cfg.StateBackend),
		zap.String("storeBackend", cfg.StoreBackend))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	sweeper.Stop()
	registry.Shutdown()
	if err := states.Close(); err != nil {
		logger.Error("Failed to close user state store", zap.Error(err))
	}
	st.close(shutdownCtx)
	cancel()

	logger.Info("Server exited")
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("APP_ENV") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newStateBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.UserStateBackend, error) {
	if cfg.StateBackend == config.StateBackendRedis {
		return userstate.NewRedisBackend(ctx, cfg.RedisURL, cfg.RedisPrefix, logger)
	}
	return userstate.NewFileBackend(cfg.StatePath, logger), nil
}

func newStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreBackend != config.StoreBackendMongo {
		logger.Warn("Using in-memory conversation store; data is lost on restart")
		return &stores{
			conversations: memstore.NewConversationStore(),
			wallet:        memstore.NewWallet(nil),
			profiles:      memstore.NewAstrologyProfiles(),
			close:         func(context.Context) {},
		}, nil
	}

	client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDB, logger)
	if err != nil {
		return nil, err
	}
	return &stores{
		conversations: mongo.NewConversationRepository(client.Database, logger),
		wallet:        mongo.NewWalletRepository(client.Database, logger),
		profiles:      mongo.NewAstrologyProfileRepository(client.Database, logger),
		close:         func(ctx context.Context) { client.Close(ctx) },
	}, nil
}

func logSagaEvents(ctx context.Context, m *saga.Manager, logger *zap.Logger) {
	events := m.EventChannel()
	for {
		select {
		case ev := <-events:
			logger.Debug("Saga event",
				zap.String("sagaID", string(ev.SagaID)),
				zap.String("stepID", string(ev.StepID)),
				zap.String("type", ev.Type))
		case <-ctx.Done():
			return
		}
	}
}
