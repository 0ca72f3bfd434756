package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"chunker/app/agent"
	"chunker/app/api"
	"chunker/app/middleware"
	"chunker/chunking"
	"chunker/config"
	"chunker/extract"
	"chunker/model"
	"chunker/store"
	"chunker/types"
)

const shutdownTimeout = 5 * time.Second

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Chunker   *chunking.Chunker
	Extractor api.Extractor
	Store     store.DBStorer
	Config    api.ConfigReader
}

// NewApp builds the fiber application with all routes registered.
func NewApp(d Deps, logger *slog.Logger) *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          api.ErrorHandler,
			DisableStartupMessage: true,
			BodyLimit:             64 * 1024 * 1024,
		})
		checkHandler   = api.NewCheckHandler()
		processHandler = api.NewProcessHandler(d.Chunker, logger)
		fileHandler    = api.NewFileHandler(d.Extractor)
		configHandler  = api.NewConfigHandler(d.Store, d.Config)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)

	app.Use(middleware.RequestLogger(logger, "/check"))

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/process/", processHandler.HandleProcess)
	apiv1.Post("/process/stream", processHandler.HandleStream)
	apiv1.Post("/process/chunk", processHandler.HandleChunk)
	apiv1.Post("/process/upload_file", fileHandler.HandleUpload)
	apiv1.Get("/config", configHandler.HandleGetConfig)
	apiv1.Post("/config", configHandler.HandleSetConfig)

	return app
}

type Server struct {
	cfg    config.Server
	logger *slog.Logger
}

func NewServer(cfg config.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	st, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	deps, err := s.buildDeps(st)
	if err != nil {
		return err
	}
	app := NewApp(deps, s.logger)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.ServerAddr)
		errCh <- app.Listen(s.cfg.ServerAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) openStore(ctx context.Context) (store.DBStorer, error) {
	if !s.cfg.HasStore() {
		s.logger.Warn("PG_HOST not set, keeping config and embeddings in memory")
		return store.NewMemoryStore(), nil
	}

	pool, err := store.NewPostgresStore(ctx, s.cfg.ConnString(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("error to connect to Postgres database: %w", err)
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error to create tables: %w", err)
	}
	return pool, nil
}

func (s *Server) buildDeps(st store.DBStorer) (Deps, error) {
	llm := agent.New(types.LLMConfig{Url: s.cfg.LLMURL, Model: s.cfg.LLMModel}, s.cfg.LLMTimeout, st, s.logger)

	var embedder chunking.Embedder
	if s.cfg.EmbeddingURL != "" && s.cfg.EmbeddingModel != "" {
		ollama := model.NewOllamaEmbedder(s.cfg.EmbeddingURL, s.cfg.EmbeddingModel, s.logger)
		embedder = model.NewCachedEmbedder(ollama, s.cfg.EmbeddingModel, st, s.logger)
	} else {
		s.logger.Warn("embedding model not configured, semantic chunking falls back to fixed size")
	}

	var vision model.VisionModel
	if s.cfg.VisionURL != "" && s.cfg.VisionModel != "" {
		vision = model.NewLLaVA(s.cfg.VisionURL, s.cfg.VisionModel, s.logger)
	} else {
		s.logger.Warn("vision model not configured, images cannot be captioned")
	}

	var tokens *chunking.TokenCounter
	if s.cfg.TokenizerEncoding != "" {
		tc, err := chunking.NewTokenCounter(s.cfg.TokenizerEncoding)
		if err != nil {
			s.logger.Warn("tokenizer not loaded, token counts stay absent", "encoding", s.cfg.TokenizerEncoding, "error", err)
		} else {
			tokens = tc
		}
	}

	extractor := extract.New(vision, extract.Options{
		ConcurrencyLimit: s.cfg.VLMConcurrencyLimit,
		CropTop:          s.cfg.PDFCropTop,
		CropBottom:       s.cfg.PDFCropBottom,
	}, s.logger)

	return Deps{
		Chunker:   chunking.New(embedder, llm, tokens, s.logger),
		Extractor: extractor,
		Store:     st,
		Config:    llm,
	}, nil
}
