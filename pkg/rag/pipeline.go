package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// StatusFunc receives stage transitions and progress updates from the
// pipeline. A nil StatusFunc is valid and discards updates.
type StatusFunc func(stage ProcessingStage, progress int, message string)

func (f StatusFunc) report(stage ProcessingStage, progress int, message string) {
	if f != nil {
		f(stage, progress, message)
	}
}

// PipelineConfig holds configuration for the ingestion pipeline
type PipelineConfig struct {
	ProcessingTimeout  time.Duration `json:"processing_timeout"`
	SessionGracePeriod time.Duration `json:"session_grace_period"`
	FallbackChunkSize  int           `json:"fallback_chunk_size"`
	DeleteUploads      bool          `json:"delete_uploads"`
}

// getDefaultPipelineConfig returns default configuration for the pipeline
func getDefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ProcessingTimeout:  5 * time.Minute,
		SessionGracePeriod: 60 * time.Second,
		FallbackChunkSize:  1000,
		DeleteUploads:      true,
	}
}

// IngestionPipeline runs uploaded filings through extraction, metadata
// inference, credibility assessment, chunking, embedding and indexing.
//
// The pipeline is deliberately forgiving: only input validation failures are
// returned as errors. Anything that breaks after validation degrades to a
// simpler processing path and is reported in the result status instead of
// failing the upload.
type IngestionPipeline struct {
	config    *PipelineConfig
	extractor *DocumentExtractor
	chunker   *ChunkingService
	embedder  *EmbeddingService
	scorer    *CredibilityScorer
	index     SearchIndex
	store     SessionStore
	logger    *slog.Logger
}

// NewIngestionPipeline wires the pipeline components together. Passing a nil
// config uses defaults.
func NewIngestionPipeline(
	config *PipelineConfig,
	extractor *DocumentExtractor,
	chunker *ChunkingService,
	embedder *EmbeddingService,
	scorer *CredibilityScorer,
	index SearchIndex,
	store SessionStore,
) *IngestionPipeline {
	if config == nil {
		config = getDefaultPipelineConfig()
	}
	return &IngestionPipeline{
		config:    config,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		scorer:    scorer,
		index:     index,
		store:     store,
		logger:    slog.Default().With("component", "ingestion-pipeline"),
	}
}

// ProcessDocument runs the full pipeline over one file. The returned error is
// non-nil only for validation failures; all later failures are folded into
// the result status.
func (p *IngestionPipeline) ProcessDocument(ctx context.Context, filePath, filename string, status StatusFunc) (*ProcessingResult, error) {
	start := time.Now()

	status.report(StageValidation, ProgressForStage(StageValidation), "Validating uploaded file")
	if err := p.validate(filePath, filename); err != nil {
		status.report(StageError, 0, err.Error())
		return nil, err
	}
	status.report(StageValidation, 10, "File validated")

	status.report(StageExtraction, ProgressForStage(StageExtraction), "Extracting document content")
	doc, err := p.extractor.Extract(ctx, filePath, filename)
	if err != nil {
		p.logger.Warn("Extraction failed, switching to fallback processing",
			"filename", filename, "error", err)
		return p.processFallback(ctx, filePath, filename, status, start), nil
	}
	status.report(StageExtraction, 25, fmt.Sprintf("Extracted %d characters", len(doc.Content)))

	status.report(StageMetadata, ProgressForStage(StageMetadata), "Extracting filing metadata")
	meta := ExtractMetadata(filename, doc.Content)
	status.report(StageMetadata, 35, fmt.Sprintf("Identified %s %s (%d)", meta.Company, meta.DocumentType, meta.Year))

	status.report(StageAssessment, ProgressForStage(StageAssessment), "Assessing document credibility")
	credibility := p.scorer.StructuralScore(doc)
	status.report(StageAssessment, 45, fmt.Sprintf("Credibility score %.2f", credibility))

	status.report(StageChunking, ProgressForStage(StageChunking), "Chunking document")
	var chunks []Chunk
	if len(doc.Structure.Paragraphs) > 0 && !doc.Structure.Synthetic {
		chunks = p.chunker.ChunkParagraphs(doc.Structure.Paragraphs, filename)
	} else {
		chunks = p.chunker.ChunkDocument(doc.Content, filename)
	}
	status.report(StageChunking, 60, fmt.Sprintf("Created %d chunks", len(chunks)))

	if len(chunks) == 0 {
		result := &ProcessingResult{
			Status:         "error_but_handled",
			Filename:       filename,
			ProcessingTime: time.Since(start).Seconds(),
			Metadata:       p.resultMetadata(meta, credibility, doc, ""),
			Error:          "no usable chunks produced",
		}
		status.report(StageError, 0, result.Error)
		return result, nil
	}

	status.report(StageEmbeddings, ProgressForStage(StageEmbeddings), "Generating embeddings")
	embedded, err := p.embedder.GenerateEmbeddingsForChunks(ctx, chunks)
	if err != nil {
		p.logger.Warn("Embedding generation aborted", "filename", filename, "error", err)
	}
	status.report(StageEmbeddings, 80, fmt.Sprintf("Embedded %d of %d chunks", embedded, len(chunks)))

	model := ""
	for _, c := range chunks {
		if c.EmbeddingModel != "" {
			model = c.EmbeddingModel
			break
		}
	}

	if embedded == 0 {
		result := &ProcessingResult{
			Status:         "error_but_handled",
			Filename:       filename,
			ChunksCreated:  len(chunks),
			ProcessingTime: time.Since(start).Seconds(),
			Metadata:       p.resultMetadata(meta, credibility, doc, model),
			Error:          "no chunks could be embedded",
		}
		status.report(StageError, 0, result.Error)
		return result, nil
	}

	status.report(StageIndexing, ProgressForStage(StageIndexing), "Indexing chunks")
	indexed, err := p.index.UpsertChunks(ctx, chunks, meta, credibility)
	if err != nil {
		// Chunks and embeddings exist; losing the index write is degraded,
		// not fatal.
		p.logger.Warn("Indexing failed", "filename", filename, "error", err)
		result := &ProcessingResult{
			Status:         "error_but_handled",
			Filename:       filename,
			ChunksCreated:  len(chunks),
			ProcessingTime: time.Since(start).Seconds(),
			Metadata:       p.resultMetadata(meta, credibility, doc, model),
			Error:          err.Error(),
		}
		status.report(StageError, 0, result.Error)
		return result, nil
	}
	status.report(StageIndexing, 95, fmt.Sprintf("Indexed %d chunks", indexed))

	status.report(StageCompleted, ProgressForStage(StageCompleted), "Processing completed")

	p.logger.Info("Document processed",
		"filename", filename,
		"company", meta.Company,
		"chunks_created", len(chunks),
		"chunks_indexed", indexed,
		"duration", time.Since(start))

	return &ProcessingResult{
		Status:         "success",
		Filename:       filename,
		ChunksCreated:  len(chunks),
		ChunksIndexed:  indexed,
		ProcessingTime: time.Since(start).Seconds(),
		Metadata:       p.resultMetadata(meta, credibility, doc, model),
	}, nil
}

func (p *IngestionPipeline) validate(filePath, filename string) error {
	if !SupportedExtension(filename) {
		return &ValidationError{Filename: filename, Reason: "unsupported file type, expected .pdf, .html or .htm"}
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return &ValidationError{Filename: filename, Reason: fmt.Sprintf("file unreadable: %v", err)}
	}
	if info.Size() == 0 {
		return &ValidationError{Filename: filename, Reason: "file is empty"}
	}
	return nil
}

func (p *IngestionPipeline) resultMetadata(meta DocumentMetadata, credibility float64, doc *ExtractedDocument, model string) ResultMetadata {
	rm := ResultMetadata{
		Company:        meta.Company,
		DocumentType:   meta.DocumentType,
		Year:           meta.Year,
		Credibility:    credibility,
		EmbeddingModel: model,
	}
	if doc != nil {
		rm.PageCount = len(doc.Structure.Pages)
		rm.TableCount = len(doc.Structure.Tables)
		rm.Synthetic = doc.Structure.Synthetic
	}
	return rm
}

// processFallback is the degraded path used when structured extraction
// fails: pull whatever text is reachable, cut it into fixed-size chunks and
// index on a best-effort basis.
func (p *IngestionPipeline) processFallback(ctx context.Context, filePath, filename string, status StatusFunc, start time.Time) *ProcessingResult {
	status.report(StageExtraction, ProgressForStage(StageExtraction), "Structured extraction failed, using basic text extraction")

	content, err := p.extractor.ExtractBasic(filePath, filename)
	if err != nil || content == "" {
		msg := "no text content could be recovered"
		if err != nil {
			msg = err.Error()
		}
		status.report(StageError, 0, msg)
		return &ProcessingResult{
			Status:         "error_but_handled",
			Filename:       filename,
			ProcessingTime: time.Since(start).Seconds(),
			Metadata:       ResultMetadata{FallbackUsed: true},
			Error:          msg,
		}
	}

	meta := ExtractMetadata(filename, content)
	status.report(StageChunking, ProgressForStage(StageChunking), "Chunking recovered text")

	var chunks []Chunk
	size := p.config.FallbackChunkSize
	for i := 0; i*size < len(content); i++ {
		end := (i + 1) * size
		if end > len(content) {
			end = len(content)
		}
		text := strings.TrimSpace(content[i*size : end])
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         ChunkID(filename, i, text),
			Content:    text,
			Source:     filename,
			ChunkIndex: i,
		})
	}
	status.report(StageChunking, 60, fmt.Sprintf("Created %d fallback chunks", len(chunks)))

	indexed := 0
	if len(chunks) > 0 {
		status.report(StageEmbeddings, ProgressForStage(StageEmbeddings), "Generating embeddings for fallback chunks")
		if _, err := p.embedder.GenerateEmbeddingsForChunks(ctx, chunks); err != nil {
			p.logger.Warn("Fallback embedding failed", "filename", filename, "error", err)
		}

		status.report(StageIndexing, ProgressForStage(StageIndexing), "Indexing fallback chunks")
		indexed, err = p.index.UpsertChunks(ctx, chunks, meta, 0.5)
		if err != nil {
			p.logger.Warn("Fallback indexing failed", "filename", filename, "error", err)
		}
	}

	status.report(StageCompleted, ProgressForStage(StageCompleted), "Fallback processing completed")

	p.logger.Info("Document processed via fallback path",
		"filename", filename,
		"chunks_created", len(chunks),
		"chunks_indexed", indexed,
		"duration", time.Since(start))

	return &ProcessingResult{
		Status:         "success_fallback",
		Filename:       filename,
		ChunksCreated:  len(chunks),
		ChunksIndexed:  indexed,
		ProcessingTime: time.Since(start).Seconds(),
		Metadata: ResultMetadata{
			Company:      meta.Company,
			DocumentType: meta.DocumentType,
			Year:         meta.Year,
			Credibility:  0.5,
			FallbackUsed: true,
		},
	}
}

// RunSession executes the pipeline in the background for a tracked session.
// It owns the uploaded file and removes it when processing ends, and it
// schedules the session for cleanup once a grace period has passed.
func (p *IngestionPipeline) RunSession(sessionID, filePath, filename string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ProcessingTimeout)
	defer cancel()

	defer func() {
		if p.config.DeleteUploads {
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("Failed to remove uploaded file", "path", filePath, "error", err)
			}
		}
		p.store.DeleteAfter(sessionID, p.config.SessionGracePeriod)
	}()

	start := time.Now()
	sink := StatusFunc(func(stage ProcessingStage, progress int, message string) {
		err := p.store.Update(ctx, sessionID, func(session *ProcessingSession) {
			session.Stage = stage
			session.Progress = progress
			session.AppendMessage(message)
		})
		if err != nil {
			p.logger.Warn("Session update failed", "session_id", sessionID, "error", err)
		}
	})

	result, err := p.ProcessDocument(ctx, filePath, filename, sink)
	if err != nil {
		uerr := p.store.Update(context.Background(), sessionID, func(session *ProcessingSession) {
			session.Stage = StageError
			session.Progress = 0
			session.Error = err.Error()
		})
		if uerr != nil {
			p.logger.Warn("Session error update failed", "session_id", sessionID, "error", uerr)
		}
		return
	}

	uerr := p.store.Update(context.Background(), sessionID, func(session *ProcessingSession) {
		if result.Status == "error_but_handled" {
			session.Stage = StageError
			session.Progress = 0
			session.Error = result.Error
			return
		}
		session.Stage = StageCompleted
		session.Progress = ProgressForStage(StageCompleted)
		session.Summary = &ProcessingSummary{
			ChunksCreated:   result.ChunksCreated,
			ChunksIndexed:   result.ChunksIndexed,
			Credibility:     result.Metadata.Credibility,
			Company:         result.Metadata.Company,
			DocumentType:    result.Metadata.DocumentType,
			Year:            result.Metadata.Year,
			EmbeddingModel:  result.Metadata.EmbeddingModel,
			ProcessingTimeS: time.Since(start).Seconds(),
		}
	})
	if uerr != nil {
		p.logger.Warn("Session completion update failed", "session_id", sessionID, "error", uerr)
	}
}
