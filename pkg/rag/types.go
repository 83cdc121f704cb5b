package rag

import "time"

// ProcessingStage identifies a step of the ingestion pipeline. Stages are
// reported to clients through processing sessions and mapped to a coarse
// progress percentage.
type ProcessingStage string

const (
	StageValidation ProcessingStage = "VALIDATION"
	StageExtraction ProcessingStage = "EXTRACTION"
	StageMetadata   ProcessingStage = "METADATA"
	StageAssessment ProcessingStage = "ASSESSMENT"
	StageChunking   ProcessingStage = "CHUNKING"
	StageEmbeddings ProcessingStage = "EMBEDDINGS"
	StageIndexing   ProcessingStage = "INDEXING"
	StageCompleted  ProcessingStage = "COMPLETED"
	StageError      ProcessingStage = "ERROR"
)

// stageProgress maps each stage to the progress percentage reported when the
// stage begins. The pipeline interpolates within a stage's range as work
// advances.
var stageProgress = map[ProcessingStage]int{
	StageValidation: 0,
	StageExtraction: 15,
	StageMetadata:   30,
	StageAssessment: 40,
	StageChunking:   50,
	StageEmbeddings: 70,
	StageIndexing:   85,
	StageCompleted:  100,
	StageError:      0,
}

// ProgressForStage returns the baseline progress percentage for a stage.
func ProgressForStage(stage ProcessingStage) int {
	if p, ok := stageProgress[stage]; ok {
		return p
	}
	return 0
}

// Chunk represents a piece of a processed document ready for embedding and
// indexing.
type Chunk struct {
	ID             string                 `json:"id"`
	Content        string                 `json:"content"`
	Source         string                 `json:"source"`
	ChunkIndex     int                    `json:"chunk_index"`
	TokenCount     int                    `json:"token_count"`
	Embedding      []float32              `json:"embedding,omitempty"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// PageInfo captures per-page structure recovered from a document.
type PageInfo struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
}

// TableInfo describes a table detected in a document.
type TableInfo struct {
	PageNumber int        `json:"page_number"`
	RowCount   int        `json:"row_count"`
	ColCount   int        `json:"col_count"`
	Cells      [][]string `json:"cells,omitempty"`
}

// ParagraphInfo is a paragraph with an optional structural role such as
// "title" or "sectionHeading".
type ParagraphInfo struct {
	Content    string `json:"content"`
	Role       string `json:"role,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

// StructureInfo aggregates the structural view of an extracted document.
// Synthetic is set when the structure was approximated from plain text
// rather than recovered by a layout analyzer.
type StructureInfo struct {
	Pages      []PageInfo      `json:"pages"`
	Tables     []TableInfo     `json:"tables"`
	Paragraphs []ParagraphInfo `json:"paragraphs"`
	Synthetic  bool            `json:"synthetic"`
}

// ExtractedDocument is the output of the extraction stage: full text plus
// whatever structure could be recovered, and metadata captured along the way.
type ExtractedDocument struct {
	Content   string                 `json:"content"`
	Structure StructureInfo          `json:"structure"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentMetadata holds the filing attributes inferred from a document's
// name and content.
type DocumentMetadata struct {
	Company      string `json:"company"`
	DocumentType string `json:"document_type"`
	Year         int    `json:"year"`
	Filename     string `json:"filename"`
}

// RetrievedDocument is a search hit enriched by the downstream agents.
type RetrievedDocument struct {
	ID             string  `json:"id"`
	Content        string  `json:"content"`
	Source         string  `json:"source"`
	Company        string  `json:"company"`
	Year           int     `json:"year"`
	Score          float64 `json:"score"`
	RerankerScore  float64 `json:"reranker_score,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Verified       bool    `json:"verified,omitempty"`
	RetrievalLayer string  `json:"retrieval_layer,omitempty"`
}

// SessionMessage is one line of human-readable progress narration attached to
// a processing session.
type SessionMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// ProcessingSummary carries the final counters of a completed ingestion run.
type ProcessingSummary struct {
	ChunksCreated   int     `json:"chunks_created"`
	ChunksIndexed   int     `json:"chunks_indexed"`
	Credibility     float64 `json:"credibility"`
	Company         string  `json:"company"`
	DocumentType    string  `json:"document_type"`
	Year            int     `json:"year"`
	EmbeddingModel  string  `json:"embedding_model,omitempty"`
	ProcessingTimeS float64 `json:"processing_time_s"`
}

// maxSessionMessages bounds the narration kept on a session; older lines are
// dropped as new ones arrive.
const maxSessionMessages = 20

// ProcessingSession tracks the state of one background ingestion run. It is
// persisted through a SessionStore and polled by the progress stream.
// MessageSeq counts every narration line ever appended, so readers can tell
// how many lines they missed after older ones were trimmed.
type ProcessingSession struct {
	SessionID  string             `json:"session_id"`
	Filename   string             `json:"filename"`
	Stage      ProcessingStage    `json:"stage"`
	Progress   int                `json:"progress"`
	Messages   []SessionMessage   `json:"messages"`
	MessageSeq int                `json:"message_seq"`
	Summary    *ProcessingSummary `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// AppendMessage adds a narration line, keeping only the most recent
// maxSessionMessages.
func (s *ProcessingSession) AppendMessage(text string) {
	s.Messages = append(s.Messages, SessionMessage{Timestamp: time.Now(), Text: text})
	if len(s.Messages) > maxSessionMessages {
		s.Messages = s.Messages[len(s.Messages)-maxSessionMessages:]
	}
	s.MessageSeq++
}

// Terminal reports whether the session reached a final stage.
func (s *ProcessingSession) Terminal() bool {
	return s.Stage == StageCompleted || s.Stage == StageError
}

// ResultMetadata describes how a document was handled end to end.
type ResultMetadata struct {
	Company        string  `json:"company"`
	DocumentType   string  `json:"document_type"`
	Year           int     `json:"year"`
	Credibility    float64 `json:"credibility"`
	PageCount      int     `json:"page_count"`
	TableCount     int     `json:"table_count"`
	Synthetic      bool    `json:"synthetic_structure"`
	EmbeddingModel string  `json:"embedding_model,omitempty"`
	FallbackUsed   bool    `json:"fallback_used,omitempty"`
}

// ProcessingResult is the outcome of one document ingestion. Status is
// "success", "success_fallback" or "error_but_handled"; the pipeline boundary
// only returns an error for input validation failures.
type ProcessingResult struct {
	Status         string         `json:"status"`
	Filename       string         `json:"filename"`
	ChunksCreated  int            `json:"chunks_created"`
	ChunksIndexed  int            `json:"chunks_indexed"`
	ProcessingTime float64        `json:"processing_time"`
	Metadata       ResultMetadata `json:"metadata"`
	Error          string         `json:"error,omitempty"`
}
