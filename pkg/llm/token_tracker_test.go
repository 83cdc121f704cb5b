package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerSummaryAggregates(t *testing.T) {
	tracker := NewTokenUsageTracker(100)
	tracker.Record(ServiceChat, OperationCompletion, "gpt-4o-mini",
		Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	tracker.Record(ServiceChat, OperationStreaming, "gpt-4o-mini",
		Usage{PromptTokens: 20, CompletionTokens: 30, TotalTokens: 50})
	tracker.Record(ServiceEmbedding, OperationEmbedding, "text-embedding-3-small",
		Usage{PromptTokens: 40, TotalTokens: 40})

	summary := tracker.Summary(2)

	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 240, summary.TotalTokens)
	assert.Equal(t, 160, summary.PromptTokens)
	assert.Equal(t, 80, summary.CompletionTokens)
	assert.Equal(t, 200, summary.ByService[ServiceChat])
	assert.Equal(t, 40, summary.ByService[ServiceEmbedding])
	assert.Equal(t, 200, summary.ByModel["gpt-4o-mini"])
	assert.Equal(t, 150, summary.ByOperation[OperationCompletion])
	assert.Len(t, summary.Recent, 2)
	assert.Equal(t, OperationEmbedding, summary.Recent[1].Operation)
}

func TestTrackerCostEstimate(t *testing.T) {
	tracker := NewTokenUsageTracker(10)
	tracker.Record(ServiceChat, OperationCompletion, "gpt-4o-mini",
		Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000})

	summary := tracker.Summary(0)
	assert.InDelta(t, 0.00015+0.0006, summary.EstimatedCostUSD, 1e-9)
}

func TestTrackerUnknownModelCostsZero(t *testing.T) {
	tracker := NewTokenUsageTracker(10)
	tracker.Record(ServiceChat, OperationCompletion, "experimental-model",
		Usage{PromptTokens: 5000, CompletionTokens: 5000, TotalTokens: 10000})

	summary := tracker.Summary(0)
	assert.Zero(t, summary.EstimatedCostUSD)
	assert.Equal(t, 10000, summary.TotalTokens)
}

func TestTrackerBoundedHistory(t *testing.T) {
	tracker := NewTokenUsageTracker(5)
	for i := 0; i < 20; i++ {
		tracker.Record(ServiceChat, OperationCompletion, fmt.Sprintf("model-%d", i),
			Usage{TotalTokens: 1})
	}

	summary := tracker.Summary(10)
	assert.Equal(t, 5, summary.TotalRecords)
	assert.Len(t, summary.Recent, 5)
	assert.Equal(t, "model-19", summary.Recent[4].Model)
	assert.Equal(t, "model-15", summary.Recent[0].Model)
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTokenUsageTracker(10)
	tracker.Record(ServiceChat, OperationCompletion, "gpt-4o", Usage{TotalTokens: 5})
	tracker.Reset()

	summary := tracker.Summary(5)
	assert.Zero(t, summary.TotalRecords)
	assert.Empty(t, summary.Recent)
}
