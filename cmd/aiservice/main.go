package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fitflow/fitflow-backend/internal/api"
	"github.com/fitflow/fitflow-backend/internal/cache"
	"github.com/fitflow/fitflow-backend/internal/config"
	"github.com/fitflow/fitflow-backend/internal/core"
	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
	"github.com/fitflow/fitflow-backend/internal/store"
	"github.com/fitflow/fitflow-backend/internal/youtube"
)

func main() {
	cfg := config.LoadConfig()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Command line flag for corpus seeding
	seedFile := flag.String("seed", "", "Replace the knowledge corpus with the sources in this YAML file and exit")
	flag.Parse()

	ctx := context.Background()

	// The corpus is optional: without it retrieval is always empty.
	var corpus core.Corpus
	var ingest *core.IngestService
	if cfg.CorpusDatabaseURL != "" {
		corpusStore, err := store.NewSQLiteStore(cfg.CorpusDatabaseURL)
		if err != nil {
			logging.Fatal().Err(err).Str("dsn", cfg.CorpusDatabaseURL).Msg("Failed to open corpus database")
		}
		defer corpusStore.Close()
		corpus = corpusStore
		ingest = core.NewIngestService(corpusStore)
	} else {
		logging.Warn().Msg("CORPUS_DATABASE_URL is not set, recommendations run without reference material")
	}

	if *seedFile != "" {
		if ingest == nil {
			logging.Fatal().Msg("Seeding requires CORPUS_DATABASE_URL")
		}
		n, err := ingest.SeedFromFile(ctx, *seedFile)
		if err != nil {
			logging.Fatal().Err(err).Str("file", *seedFile).Msg("Corpus seeding failed")
		}
		logging.Info().Int("sources", n).Msg("Corpus seeding complete. Exiting.")
		return
	}

	synonyms, err := core.LoadSynonyms(cfg.SynonymsPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.SynonymsPath).Msg("Failed to load synonym table")
	}

	// A missing key is reported per request rather than at startup.
	var model core.TextModel
	if cfg.GeminiAPIKey != "" {
		gemini, err := core.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize Gemini client")
		}
		defer gemini.Close()
		model = gemini
	} else {
		logging.Warn().Msg("GEMINI_API_KEY is not set, generation requests will fail")
	}

	videoClient, err := youtube.NewClient(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize YouTube client")
	}

	recommendCache := cache.New(time.Duration(cfg.RecommendCacheTTLMinutes) * time.Minute)
	defer recommendCache.Close()
	if err := metrics.RegisterCache("recommend", recommendCache.Stats); err != nil {
		logging.Warn().Err(err).Msg("Failed to register cache metrics")
	}

	llmService := core.NewLLMService(model)
	retrieval := core.NewRetrievalService(corpus, synonyms)
	ragService := core.NewRAGService(retrieval, core.NewRerankService(llmService), core.RAGOptions{
		UseLogTags: cfg.RetrievalUseLogTags,
	})
	recommendService := core.NewRecommendService(ragService, llmService, core.RecommendOptions{
		Cache: recommendCache,
		Group: &singleflight.Group{},
	})

	handler := api.NewAIHandler(recommendService, retrieval, core.NewVideoService(videoClient), ingest)
	router := api.NewAIRouter(handler, api.AIRouterConfig{
		InternalAPIKey:     cfg.InternalAPIKey,
		RateLimitPerMinute: cfg.AIRateLimitPerMinute,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.AIServicePort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", serverAddr).Str("model", cfg.GeminiModel).Bool("corpus", corpus != nil).Msg("Starting AI service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("Shutting down AI service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("AI service forced to shutdown")
	}
	logging.Info().Msg("AI service exiting gracefully")
}
