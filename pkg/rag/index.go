package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// IndexStats summarizes what the vector index currently holds.
type IndexStats struct {
	TotalChunks int            `json:"total_chunks"`
	ByCompany   map[string]int `json:"by_company"`
}

// SearchQuery describes one retrieval request against the index.
type SearchQuery struct {
	Query       string    `json:"query"`
	QueryVector []float32 `json:"-"`
	Limit       int       `json:"limit"`
	HybridAlpha float64   `json:"hybrid_alpha"`
	Company     string    `json:"company,omitempty"`
}

// SearchIndex is the vector index surface the pipeline and agents depend on.
type SearchIndex interface {
	UpsertChunks(ctx context.Context, chunks []Chunk, meta DocumentMetadata, credibility float64) (int, error)
	Search(ctx context.Context, query SearchQuery) ([]RetrievedDocument, error)
	Stats(ctx context.Context) (*IndexStats, error)
	Healthy(ctx context.Context) bool
}

// WeaviateConfig holds connection settings for the vector index.
type WeaviateConfig struct {
	Host       string        `json:"host"`
	Scheme     string        `json:"scheme"`
	APIKey     string        `json:"api_key,omitempty"`
	ClassName  string        `json:"class_name"`
	Timeout    time.Duration `json:"timeout"`
	AutoSchema bool          `json:"auto_schema"`
}

// getDefaultWeaviateConfig returns default configuration for the index.
func getDefaultWeaviateConfig() *WeaviateConfig {
	return &WeaviateConfig{
		Host:       "localhost:8080",
		Scheme:     "http",
		ClassName:  "FilingChunk",
		Timeout:    30 * time.Second,
		AutoSchema: true,
	}
}

// WeaviateIndex stores filing chunks in Weaviate with externally supplied
// embeddings and serves hybrid keyword/vector retrieval over them.
type WeaviateIndex struct {
	client *weaviate.Client
	config *WeaviateConfig
	logger *slog.Logger
}

// NewWeaviateIndex connects to Weaviate and, when auto-schema is enabled,
// ensures the filing chunk class exists.
func NewWeaviateIndex(config *WeaviateConfig) (*WeaviateIndex, error) {
	if config == nil {
		config = getDefaultWeaviateConfig()
	}
	if config.Scheme == "" {
		config.Scheme = "http"
	}
	if config.ClassName == "" {
		config.ClassName = "FilingChunk"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	var authConfig auth.Config
	if config.APIKey != "" {
		authConfig = auth.ApiKey{Value: config.APIKey}
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:       config.Host,
		Scheme:     config.Scheme,
		AuthConfig: authConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	wi := &WeaviateIndex{
		client: client,
		config: config,
		logger: slog.Default().With("component", "weaviate-index"),
	}

	if config.AutoSchema {
		if err := wi.ensureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return wi, nil
}

// ensureSchema creates the filing chunk class, tolerating an existing one.
func (wi *WeaviateIndex) ensureSchema(ctx context.Context) error {
	filingChunkClass := &models.Class{
		Class:       wi.config.ClassName,
		Description: "Chunked SEC filing content with externally generated embeddings",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "Chunk text",
				IndexFilterable: &[]bool{true}[0],
				IndexSearchable: &[]bool{true}[0],
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Originating filename",
				IndexFilterable: &[]bool{true}[0],
			},
			{
				Name:            "company",
				DataType:        []string{"text"},
				Description:     "Issuer company name",
				IndexFilterable: &[]bool{true}[0],
			},
			{
				Name:            "documentType",
				DataType:        []string{"text"},
				Description:     "Filing type such as 10-K or 10-Q",
				IndexFilterable: &[]bool{true}[0],
			},
			{
				Name:            "year",
				DataType:        []string{"int"},
				Description:     "Filing year",
				IndexFilterable: &[]bool{true}[0],
			},
			{
				Name:        "chunkIndex",
				DataType:    []string{"int"},
				Description: "Position of the chunk within its document",
			},
			{
				Name:            "credibility",
				DataType:        []string{"number"},
				Description:     "Document-level credibility score",
				IndexFilterable: &[]bool{true}[0],
			},
			{
				Name:        "embeddingModel",
				DataType:    []string{"text"},
				Description: "Model that produced the stored vector",
			},
		},
	}

	err := wi.client.Schema().ClassCreator().WithClass(filingChunkClass).Do(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create %s class: %w", wi.config.ClassName, err)
		}
		wi.logger.Info("Index class already exists", "class", wi.config.ClassName)
	} else {
		wi.logger.Info("Created index class", "class", wi.config.ClassName)
	}
	return nil
}

// objectID derives a deterministic Weaviate UUID from a chunk ID so
// re-ingesting a document overwrites its previous chunks.
func objectID(chunkID string) string {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// UpsertChunks writes embedded chunks into the index. Chunks without an
// embedding are skipped. Individual insert failures are logged and do not
// abort the rest of the batch; the returned count is the number actually
// indexed.
func (wi *WeaviateIndex) UpsertChunks(ctx context.Context, chunks []Chunk, meta DocumentMetadata, credibility float64) (int, error) {
	indexed := 0
	var lastErr error

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}

		properties := map[string]interface{}{
			"content":        chunk.Content,
			"source":         chunk.Source,
			"company":        meta.Company,
			"documentType":   meta.DocumentType,
			"year":           meta.Year,
			"chunkIndex":     chunk.ChunkIndex,
			"credibility":    credibility,
			"embeddingModel": chunk.EmbeddingModel,
		}

		_, err := wi.client.Data().Creator().
			WithClassName(wi.config.ClassName).
			WithID(objectID(chunk.ID)).
			WithProperties(properties).
			WithVector(chunk.Embedding).
			Do(ctx)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				indexed++
				continue
			}
			wi.logger.Warn("Failed to index chunk", "chunk_id", chunk.ID, "error", err)
			lastErr = err
			continue
		}
		indexed++
	}

	if indexed == 0 && lastErr != nil {
		return 0, &IndexingError{Err: lastErr}
	}

	wi.logger.Info("Chunks indexed",
		"class", wi.config.ClassName,
		"company", meta.Company,
		"indexed", indexed,
		"total", len(chunks))

	return indexed, nil
}

// Search runs a hybrid keyword/vector query and maps the hits to retrieved
// documents.
func (wi *WeaviateIndex) Search(ctx context.Context, query SearchQuery) ([]RetrievedDocument, error) {
	if query.Query == "" {
		return nil, fmt.Errorf("search query text cannot be empty")
	}
	if query.Limit == 0 {
		query.Limit = 10
	}
	if query.HybridAlpha == 0 {
		query.HybridAlpha = 0.7 // 70% vector, 30% keyword
	}

	hybrid := wi.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query.Query).
		WithAlpha(float32(query.HybridAlpha))
	if len(query.QueryVector) > 0 {
		hybrid = hybrid.WithVector(query.QueryVector)
	}

	gql := wi.client.GraphQL().Get().
		WithClassName(wi.config.ClassName).
		WithHybrid(hybrid)

	if query.Company != "" {
		gql = gql.WithWhere(filters.Where().
			WithPath([]string{"company"}).
			WithOperator(filters.Equal).
			WithValueText(query.Company))
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "company"},
		{Name: "documentType"},
		{Name: "year"},
		{Name: "credibility"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "score"},
		}},
	}

	result, err := gql.
		WithFields(fields...).
		WithLimit(query.Limit).
		Do(ctx)
	if err != nil {
		wi.logger.Error("Index search failed", "error", err, "query", query.Query)
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	var docs []RetrievedDocument
	if result.Data != nil {
		if data, ok := result.Data["Get"].(map[string]interface{}); ok {
			if items, ok := data[wi.config.ClassName].([]interface{}); ok {
				for _, item := range items {
					if itemMap, ok := item.(map[string]interface{}); ok {
						docs = append(docs, wi.parseHit(itemMap))
					}
				}
			}
		}
	}

	wi.logger.Info("Index search completed", "query", query.Query, "results", len(docs))
	return docs, nil
}

// parseHit converts one GraphQL result item to a RetrievedDocument.
func (wi *WeaviateIndex) parseHit(item map[string]interface{}) RetrievedDocument {
	doc := RetrievedDocument{RetrievalLayer: "weaviate"}

	if val, ok := item["content"].(string); ok {
		doc.Content = val
	}
	if val, ok := item["source"].(string); ok {
		doc.Source = val
	}
	if val, ok := item["company"].(string); ok {
		doc.Company = val
	}
	if val, ok := item["year"].(float64); ok {
		doc.Year = int(val)
	}

	if additional, ok := item["_additional"].(map[string]interface{}); ok {
		if id, ok := additional["id"].(string); ok {
			doc.ID = id
		}
		switch score := additional["score"].(type) {
		case float64:
			doc.Score = score
		case string:
			fmt.Sscanf(score, "%f", &doc.Score)
		}
	}

	return doc
}

// Stats aggregates chunk counts overall and per company.
func (wi *WeaviateIndex) Stats(ctx context.Context) (*IndexStats, error) {
	result, err := wi.client.GraphQL().Aggregate().
		WithClassName(wi.config.ClassName).
		WithGroupBy("company").
		WithFields(
			graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats query failed: %w", err)
	}

	stats := &IndexStats{ByCompany: make(map[string]int)}
	if result.Data != nil {
		if agg, ok := result.Data["Aggregate"].(map[string]interface{}); ok {
			if groups, ok := agg[wi.config.ClassName].([]interface{}); ok {
				for _, group := range groups {
					groupMap, ok := group.(map[string]interface{})
					if !ok {
						continue
					}
					company := ""
					if gb, ok := groupMap["groupedBy"].(map[string]interface{}); ok {
						company, _ = gb["value"].(string)
					}
					count := 0
					if meta, ok := groupMap["meta"].(map[string]interface{}); ok {
						if c, ok := meta["count"].(float64); ok {
							count = int(c)
						}
					}
					if company != "" {
						stats.ByCompany[company] = count
					}
					stats.TotalChunks += count
				}
			}
		}
	}

	return stats, nil
}

// Healthy probes Weaviate readiness.
func (wi *WeaviateIndex) Healthy(ctx context.Context) bool {
	ready, err := wi.client.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}
