package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// EmbeddingClient generates embedding vectors for batches of text.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingModel() string
}

// EmbeddingConfig holds configuration for the embedding service
type EmbeddingConfig struct {
	BatchSize       int           `json:"batch_size"`
	RequestInterval time.Duration `json:"request_interval"`
	CacheEnabled    bool          `json:"cache_enabled"`
	CacheMaxEntries int           `json:"cache_max_entries"`
	PerItemRetry    bool          `json:"per_item_retry"`
	RequestTimeout  time.Duration `json:"request_timeout"`
}

// getDefaultEmbeddingConfig returns default configuration for the embedding service
func getDefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		BatchSize:       5,
		RequestInterval: 100 * time.Millisecond,
		CacheEnabled:    true,
		CacheMaxEntries: 10000,
		PerItemRetry:    true,
		RequestTimeout:  30 * time.Second,
	}
}

// EmbeddingMetrics tracks embedding throughput and cache behavior
type EmbeddingMetrics struct {
	TotalChunks     int64     `json:"total_chunks"`
	EmbeddedChunks  int64     `json:"embedded_chunks"`
	SkippedChunks   int64     `json:"skipped_chunks"`
	CacheHits       int64     `json:"cache_hits"`
	CacheMisses     int64     `json:"cache_misses"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	mutex           sync.RWMutex
}

// EmbeddingService generates embeddings for chunks in small batches. A batch
// failure degrades to per-item requests so one bad chunk does not sink the
// rest of the document.
type EmbeddingService struct {
	config  *EmbeddingConfig
	client  EmbeddingClient
	cache   *embeddingCache
	limiter *rateLimiter
	logger  *slog.Logger
	metrics *EmbeddingMetrics
}

// NewEmbeddingService creates an embedding service backed by client. Passing
// a nil config uses defaults.
func NewEmbeddingService(client EmbeddingClient, config *EmbeddingConfig) *EmbeddingService {
	if config == nil {
		config = getDefaultEmbeddingConfig()
	}

	var cache *embeddingCache
	if config.CacheEnabled {
		cache = newEmbeddingCache(config.CacheMaxEntries)
	}

	return &EmbeddingService{
		config:  config,
		client:  client,
		cache:   cache,
		limiter: newRateLimiter(config.RequestInterval),
		logger:  slog.Default().With("component", "embedding-service"),
		metrics: &EmbeddingMetrics{LastProcessedAt: time.Now()},
	}
}

// GenerateEmbeddingsForChunks fills in the Embedding and EmbeddingModel
// fields of chunks in place and returns how many chunks were embedded.
// Chunks whose embedding could not be generated are left without a vector.
func (es *EmbeddingService) GenerateEmbeddingsForChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	start := time.Now()
	model := es.client.EmbeddingModel()
	embedded := 0

	for batchStart := 0; batchStart < len(chunks); batchStart += es.config.BatchSize {
		batchEnd := batchStart + es.config.BatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		pending, texts := es.collectPending(batch, model)
		if len(pending) == 0 {
			embedded += len(batch)
			continue
		}

		if err := es.limiter.wait(ctx); err != nil {
			return embedded, err
		}

		vectors, err := es.client.CreateEmbeddings(ctx, texts)
		if err == nil && len(vectors) == len(pending) {
			for i, idx := range pending {
				batch[idx].Embedding = vectors[i]
				batch[idx].EmbeddingModel = model
				es.cachePut(batch[idx].Content, vectors[i])
			}
			embedded += len(batch)
			continue
		}

		es.logger.Warn("Batch embedding failed, retrying per item",
			"batch_start", batchStart, "batch_size", len(pending), "error", err)

		if !es.config.PerItemRetry {
			es.recordSkipped(len(pending))
			embedded += len(batch) - len(pending)
			continue
		}

		for _, idx := range pending {
			vecs, itemErr := es.client.CreateEmbeddings(ctx, []string{batch[idx].Content})
			if itemErr != nil || len(vecs) != 1 {
				es.logger.Warn("Skipping chunk after embedding failure",
					"chunk_id", batch[idx].ID, "error", itemErr)
				es.recordSkipped(1)
				continue
			}
			batch[idx].Embedding = vecs[0]
			batch[idx].EmbeddingModel = model
			es.cachePut(batch[idx].Content, vecs[0])
			embedded++
		}
		embedded += len(batch) - len(pending)
	}

	es.metrics.mutex.Lock()
	es.metrics.TotalChunks += int64(len(chunks))
	es.metrics.EmbeddedChunks += int64(embedded)
	es.metrics.LastProcessedAt = time.Now()
	es.metrics.mutex.Unlock()

	es.logger.Info("Embedding generation completed",
		"chunks", len(chunks),
		"embedded", embedded,
		"model", model,
		"duration", time.Since(start))

	return embedded, nil
}

// collectPending resolves cached embeddings and returns the batch indexes
// that still need an API call, with their texts.
func (es *EmbeddingService) collectPending(batch []Chunk, model string) ([]int, []string) {
	var pending []int
	var texts []string
	for i := range batch {
		if vec, ok := es.cacheGet(batch[i].Content); ok {
			batch[i].Embedding = vec
			batch[i].EmbeddingModel = model
			continue
		}
		pending = append(pending, i)
		texts = append(texts, batch[i].Content)
	}
	return pending, texts
}

func (es *EmbeddingService) cacheGet(content string) ([]float32, bool) {
	if es.cache == nil {
		return nil, false
	}
	vec, ok := es.cache.get(content)
	es.metrics.mutex.Lock()
	if ok {
		es.metrics.CacheHits++
	} else {
		es.metrics.CacheMisses++
	}
	es.metrics.mutex.Unlock()
	return vec, ok
}

func (es *EmbeddingService) cachePut(content string, vec []float32) {
	if es.cache != nil {
		es.cache.put(content, vec)
	}
}

func (es *EmbeddingService) recordSkipped(n int) {
	es.metrics.mutex.Lock()
	es.metrics.SkippedChunks += int64(n)
	es.metrics.mutex.Unlock()
}

// GetMetrics returns a copy of the current embedding metrics.
func (es *EmbeddingService) GetMetrics() EmbeddingMetrics {
	es.metrics.mutex.RLock()
	defer es.metrics.mutex.RUnlock()
	return EmbeddingMetrics{
		TotalChunks:     es.metrics.TotalChunks,
		EmbeddedChunks:  es.metrics.EmbeddedChunks,
		SkippedChunks:   es.metrics.SkippedChunks,
		CacheHits:       es.metrics.CacheHits,
		CacheMisses:     es.metrics.CacheMisses,
		LastProcessedAt: es.metrics.LastProcessedAt,
	}
}

// embeddingCache is a bounded in-memory cache keyed by content hash.
type embeddingCache struct {
	mu         sync.RWMutex
	entries    map[string][]float32
	maxEntries int
}

func newEmbeddingCache(maxEntries int) *embeddingCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &embeddingCache{
		entries:    make(map[string][]float32),
		maxEntries: maxEntries,
	}
}

func cacheKey(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (c *embeddingCache) get(content string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.entries[cacheKey(content)]
	return vec, ok
}

func (c *embeddingCache) put(content string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		// Evict an arbitrary entry to stay bounded.
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[cacheKey(content)] = vec
}

// rateLimiter spaces outbound embedding requests by a fixed interval.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (rl *rateLimiter) wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	next := rl.last.Add(rl.interval)
	if next.Before(now) {
		next = now
	}
	rl.last = next
	rl.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
