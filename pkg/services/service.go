// Package services assembles the RAG components into one service object the
// HTTP layer depends on.
package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/thegovind/adaptiverag-work/pkg/agents"
	"github.com/thegovind/adaptiverag-work/pkg/config"
	"github.com/thegovind/adaptiverag-work/pkg/llm"
	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// RAGService owns every long-lived component: the LLM client, the vector
// index, the ingestion pipeline, the session store and the agent
// orchestrator.
type RAGService struct {
	Config       *config.Config
	LLMClient    *llm.Client
	TokenTracker *llm.TokenUsageTracker
	Index        rag.SearchIndex
	Sessions     rag.SessionStore
	Pipeline     *rag.IngestionPipeline
	Orchestrator *agents.Orchestrator

	logger *slog.Logger
}

// NewRAGService builds the full component graph from configuration. The
// vector index and Redis are optional; everything else always starts.
func NewRAGService(cfg *config.Config) (*RAGService, error) {
	logger := slog.Default().With("component", "rag-service")

	tracker := llm.NewTokenUsageTracker(1000)
	client := llm.NewClient(&llm.ClientConfig{
		BaseURL:        cfg.LLMBaseURL,
		APIKey:         cfg.LLMAPIKey,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.LLMTimeout,
		Cooldown:       cfg.LLMCooldown,
	}, tracker)

	var index rag.SearchIndex
	if cfg.EnableWeaviate {
		wi, err := rag.NewWeaviateIndex(&rag.WeaviateConfig{
			Host:       cfg.WeaviateHost,
			Scheme:     cfg.WeaviateScheme,
			APIKey:     cfg.WeaviateAPIKey,
			ClassName:  cfg.WeaviateClass,
			AutoSchema: true,
		})
		if err != nil {
			// Retrieval degrades to the mock corpus; ingestion will report
			// indexing failures per document.
			logger.Warn("Vector index unavailable", "error", err)
		} else {
			index = wi
		}
	}

	var sessions rag.SessionStore
	if cfg.UseRedisSessions {
		store, err := rag.NewRedisSessionStore(&rag.RedisSessionStoreConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDatabase,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis session store: %w", err)
		}
		sessions = store
	} else {
		sessions = rag.NewMemorySessionStore()
	}

	chunker, err := rag.NewChunkingService(&rag.ChunkingConfig{
		ChunkSize:           cfg.ChunkSize,
		ChunkOverlap:        cfg.ChunkOverlap,
		MinChunkLen:         50,
		ParagraphCharBudget: 1000,
		ParagraphOverlap:    2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunking service: %w", err)
	}

	extractor := rag.NewDocumentExtractor(nil)
	embedder := rag.NewEmbeddingService(client, nil)
	scorer := rag.NewCredibilityScorer(client)

	pipeline := rag.NewIngestionPipeline(
		&rag.PipelineConfig{
			ProcessingTimeout:  cfg.ProcessingTimeout,
			SessionGracePeriod: 60 * time.Second,
			FallbackChunkSize:  1000,
			DeleteUploads:      true,
		},
		extractor, chunker, embedder, scorer, pipelineIndex(index), sessions,
	)

	retriever := agents.NewRetrieverAgent(index, client)
	agentic := agents.NewAgenticRetriever(retriever, client)
	verifier := agents.NewVerifierAgent(scorer)
	writer := agents.NewWriterAgent(client, agents.EmissionPolicy{
		TokenDelay:  cfg.TokenDelay,
		SourceDelay: cfg.SourceDelay,
	})
	curator := agents.NewCuratorAgent(extractor, embedder, pipelineIndex(index))

	orchestrator, err := agents.NewOrchestrator(retriever, agentic, verifier, writer, curator)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	logger.Info("RAG service initialized",
		"weaviate_enabled", index != nil,
		"redis_sessions", cfg.UseRedisSessions,
		"llm_configured", cfg.LLMBaseURL != "")

	return &RAGService{
		Config:       cfg,
		LLMClient:    client,
		TokenTracker: tracker,
		Index:        index,
		Sessions:     sessions,
		Pipeline:     pipeline,
		Orchestrator: orchestrator,
		logger:       logger,
	}, nil
}

// pipelineIndex substitutes a null index when Weaviate is not configured so
// the pipeline and curator can run without nil checks.
func pipelineIndex(index rag.SearchIndex) rag.SearchIndex {
	if index != nil {
		return index
	}
	return nullIndex{}
}
