package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thegovind/adaptiverag-work/pkg/llm"
	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// Mode selects an agent pipeline for a chat request.
type Mode string

const (
	ModeFastRAG        Mode = "fast-rag"
	ModeAgenticRAG     Mode = "agentic-rag"
	ModeDeepResearch   Mode = "deep-research-rag"
	ModeContextAware   Mode = "context-aware-generation"
	ModeQAVerification Mode = "qa-verification"
	ModeAdaptiveKB     Mode = "adaptive-kb-management"
)

// planStep names one agent invocation inside a mode's plan.
type planStep string

const (
	stepRetriever planStep = "retriever"
	stepAgentic   planStep = "agentic"
	stepVerifier  planStep = "verifier"
	stepWriter    planStep = "writer"
	stepCurator   planStep = "curator"
)

// planTable maps each mode to its agent sequence. Unknown modes use
// defaultPlan.
var planTable = map[Mode][]planStep{
	ModeFastRAG:        {stepRetriever, stepWriter},
	ModeAgenticRAG:     {stepAgentic, stepWriter},
	ModeDeepResearch:   {stepRetriever, stepVerifier, stepAgentic, stepWriter},
	ModeContextAware:   {stepRetriever, stepWriter},
	ModeQAVerification: {stepRetriever, stepVerifier, stepWriter},
	ModeAdaptiveKB:     {stepCurator},
}

var defaultPlan = []planStep{stepRetriever, stepWriter}

var knownSteps = map[planStep]bool{
	stepRetriever: true,
	stepAgentic:   true,
	stepVerifier:  true,
	stepWriter:    true,
	stepCurator:   true,
}

// ValidatePlanTable checks that every plan references only known steps and
// ends in a step that produces output. It runs at startup so a bad table
// refuses to boot instead of failing on the first request.
func ValidatePlanTable() error {
	for mode, plan := range planTable {
		if len(plan) == 0 {
			return fmt.Errorf("mode %q has an empty plan", mode)
		}
		for _, step := range plan {
			if !knownSteps[step] {
				return fmt.Errorf("mode %q references unknown step %q", mode, step)
			}
		}
		last := plan[len(plan)-1]
		if last != stepWriter && last != stepCurator {
			return fmt.Errorf("mode %q plan does not end in an output step", mode)
		}
	}
	return nil
}

// PlanFor returns the agent sequence for mode, falling back to the default
// retrieval plan for unknown modes.
func PlanFor(mode Mode) []planStep {
	if plan, ok := planTable[mode]; ok {
		return plan
	}
	return defaultPlan
}

// ChatTurn is one prior exchange supplied by the client alongside a new
// question.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatInput carries one chat invocation through the plan. VerificationLevel
// and History are optional; an empty level means "basic".
type ChatInput struct {
	Query             string
	Mode              Mode
	VerificationLevel string
	History           []ChatTurn
}

// ModeResult is the outcome of one orchestrated chat request.
type ModeResult struct {
	Mode             Mode       `json:"mode"`
	Answer           string     `json:"answer"`
	Citations        []Citation `json:"citations,omitempty"`
	QueryRewrites    []string   `json:"query_rewrites,omitempty"`
	TokenUsage       *llm.Usage `json:"token_usage,omitempty"`
	RetrievalMethod  string     `json:"retrieval_method,omitempty"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	Success          bool       `json:"success"`
}

// Orchestrator sequences agents according to the plan for the requested
// mode.
type Orchestrator struct {
	retriever *RetrieverAgent
	agentic   *AgenticRetriever
	verifier  *VerifierAgent
	writer    *WriterAgent
	curator   *CuratorAgent
	logger    *slog.Logger
}

// NewOrchestrator wires the agents together and validates the plan table.
func NewOrchestrator(
	retriever *RetrieverAgent,
	agentic *AgenticRetriever,
	verifier *VerifierAgent,
	writer *WriterAgent,
	curator *CuratorAgent,
) (*Orchestrator, error) {
	if err := ValidatePlanTable(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		retriever: retriever,
		agentic:   agentic,
		verifier:  verifier,
		writer:    writer,
		curator:   curator,
		logger:    slog.Default().With("component", "orchestrator"),
	}, nil
}

// RunStream executes the plan for the input's mode, emitting answer
// fragments through emit as they are produced, and returns the collected
// result.
func (o *Orchestrator) RunStream(ctx context.Context, in ChatInput, emit func(string)) (*ModeResult, error) {
	start := time.Now()
	plan := PlanFor(in.Mode)

	o.logger.Info("Running chat plan", "mode", in.Mode, "steps", len(plan), "query", in.Query)

	result := &ModeResult{Mode: in.Mode}
	var docs []rag.RetrievedDocument

	for _, step := range plan {
		switch step {
		case stepRetriever:
			retrieved, method := o.retriever.Retrieve(ctx, in.Query, 10)
			docs = mergeDocuments(docs, retrieved)
			result.RetrievalMethod = method

		case stepAgentic:
			retrieved, rewrites, method := o.agentic.Retrieve(ctx, in.Query, 10)
			docs = mergeDocuments(docs, retrieved)
			result.QueryRewrites = rewrites
			if result.RetrievalMethod == "" {
				result.RetrievalMethod = method
			}

		case stepVerifier:
			docs = o.verifier.Verify(ctx, docs, in.Query)

		case stepWriter:
			written, err := o.writer.Synthesize(ctx, in.Query, in.History, docs, emit)
			if err != nil {
				return nil, fmt.Errorf("answer synthesis failed: %w", err)
			}
			result.Answer = written.Answer
			result.Citations = written.Citations
			result.TokenUsage = written.Usage

		case stepCurator:
			var narration strings.Builder
			o.curator.StreamIngest(ctx, strings.TrimSpace(in.Query), func(line string) {
				narration.WriteString(line)
				if emit != nil {
					emit(line)
				}
			})
			result.Answer = narration.String()
		}
	}

	if in.Mode == ModeDeepResearch && result.Answer != "" {
		level := in.VerificationLevel
		if level == "" {
			level = "basic"
		}
		note := fmt.Sprintf("\n\nThis response has been enhanced with %s verification using additional sources.", level)
		result.Answer += note
		if emit != nil {
			emit(note)
		}
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.Success = result.Answer != ""

	o.logger.Info("Chat plan completed",
		"mode", in.Mode,
		"retrieval_method", result.RetrievalMethod,
		"documents", len(docs),
		"duration_ms", result.ProcessingTimeMs)

	return result, nil
}

// Process runs the plan without streaming and returns the final result.
func (o *Orchestrator) Process(ctx context.Context, in ChatInput) (*ModeResult, error) {
	return o.RunStream(ctx, in, nil)
}

// mergeDocuments appends newly retrieved documents, dropping IDs already
// present, and re-ranks the combined set.
func mergeDocuments(existing, incoming []rag.RetrievedDocument) []rag.RetrievedDocument {
	if len(existing) == 0 {
		return incoming
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.ID] = true
	}
	for _, d := range incoming {
		if !seen[d.ID] {
			seen[d.ID] = true
			existing = append(existing, d)
		}
	}
	return RankDocuments(existing)
}
