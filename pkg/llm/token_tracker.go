package llm

import (
	"sync"
	"time"
)

// ServiceType identifies which backend surface consumed tokens.
type ServiceType string

const (
	ServiceChat      ServiceType = "chat"
	ServiceEmbedding ServiceType = "embedding"
)

// OperationType identifies what kind of call consumed tokens.
type OperationType string

const (
	OperationCompletion OperationType = "completion"
	OperationStreaming  OperationType = "streaming"
	OperationEmbedding  OperationType = "embedding"
)

// TokenUsageRecord is one recorded backend call.
type TokenUsageRecord struct {
	Timestamp        time.Time     `json:"timestamp"`
	Service          ServiceType   `json:"service"`
	Operation        OperationType `json:"operation"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
}

// modelPricing is USD per 1K tokens, split into prompt and completion rates.
type modelPricing struct {
	prompt     float64
	completion float64
}

var pricingTable = map[string]modelPricing{
	"gpt-4o":                 {prompt: 0.0025, completion: 0.01},
	"gpt-4o-mini":            {prompt: 0.00015, completion: 0.0006},
	"gpt-4.1":                {prompt: 0.002, completion: 0.008},
	"gpt-4.1-mini":           {prompt: 0.0004, completion: 0.0016},
	"text-embedding-3-small": {prompt: 0.00002},
	"text-embedding-3-large": {prompt: 0.00013},
}

// TokenUsageSummary aggregates recorded usage.
type TokenUsageSummary struct {
	TotalRecords     int                   `json:"total_records"`
	TotalTokens      int                   `json:"total_tokens"`
	PromptTokens     int                   `json:"prompt_tokens"`
	CompletionTokens int                   `json:"completion_tokens"`
	EstimatedCostUSD float64               `json:"estimated_cost_usd"`
	ByService        map[ServiceType]int   `json:"by_service"`
	ByModel          map[string]int        `json:"by_model"`
	ByOperation      map[OperationType]int `json:"by_operation"`
	Recent           []TokenUsageRecord    `json:"recent,omitempty"`
}

// TokenUsageTracker accumulates per-call token usage with estimated cost.
// It keeps a bounded history so long-running servers do not grow without
// limit.
type TokenUsageTracker struct {
	mu         sync.RWMutex
	records    []TokenUsageRecord
	maxRecords int
}

// NewTokenUsageTracker creates a tracker keeping at most maxRecords entries.
func NewTokenUsageTracker(maxRecords int) *TokenUsageTracker {
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &TokenUsageTracker{maxRecords: maxRecords}
}

// Record stores one backend call's usage.
func (t *TokenUsageTracker) Record(service ServiceType, operation OperationType, model string, usage Usage) {
	record := TokenUsageRecord{
		Timestamp:        time.Now(),
		Service:          service,
		Operation:        operation,
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		EstimatedCostUSD: estimateCost(model, usage),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, record)
	if len(t.records) > t.maxRecords {
		t.records = t.records[len(t.records)-t.maxRecords:]
	}
}

func estimateCost(model string, usage Usage) float64 {
	pricing, ok := pricingTable[model]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*pricing.prompt +
		float64(usage.CompletionTokens)/1000*pricing.completion
}

// Summary aggregates all recorded usage, including the most recent calls up
// to recentLimit.
func (t *TokenUsageTracker) Summary(recentLimit int) TokenUsageSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := TokenUsageSummary{
		ByService:   make(map[ServiceType]int),
		ByModel:     make(map[string]int),
		ByOperation: make(map[OperationType]int),
	}

	for _, r := range t.records {
		summary.TotalRecords++
		summary.TotalTokens += r.TotalTokens
		summary.PromptTokens += r.PromptTokens
		summary.CompletionTokens += r.CompletionTokens
		summary.EstimatedCostUSD += r.EstimatedCostUSD
		summary.ByService[r.Service] += r.TotalTokens
		summary.ByModel[r.Model] += r.TotalTokens
		summary.ByOperation[r.Operation] += r.TotalTokens
	}

	if recentLimit > 0 && len(t.records) > 0 {
		start := len(t.records) - recentLimit
		if start < 0 {
			start = 0
		}
		summary.Recent = append([]TokenUsageRecord(nil), t.records[start:]...)
	}

	return summary
}

// Reset clears all recorded usage.
func (t *TokenUsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
}
