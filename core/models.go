package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the identifier of a chunk from its owner, generation and position.
func ChunkID(recordID ID, generation uint64, sequence int) ID {
	return IDFromContent(strconv.FormatUint(uint64(recordID), 10) + "/" +
		strconv.FormatUint(generation, 10) + "/" + strconv.Itoa(sequence))
}

// Stage identifies one phase of the enrichment pipeline.
type Stage uint8

const (
	// StageAnalysis produces the summary and key points.
	StageAnalysis Stage = iota + 1
	// StageEmbedding produces the chunk set and its vectors.
	StageEmbedding
)

func (s Stage) String() string {
	switch s {
	case StageAnalysis:
		return "analysis"
	case StageEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// Record is a transcript flowing through the pipeline.
// Text is set once when the record is added and never modified afterwards.
type Record struct {
	Id         ID
	Title      string
	Text       string
	Analysis   StageState // processing_status of the analysis stage
	Embedding  StageState // embedding_status of the embedding stage
	Generation uint64     // Current chunk generation, 0 when no chunk set was ever promoted
	ChunkCount int
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// StageState is the per-stage slice of a record's state machine.
type StageState struct {
	Status    Status
	TaskID    string // Active task, empty unless Status is Pending or Processing
	Error     string // Message of the last failed run
	Attempts  int    // Provider attempts used by the last run
	UpdatedAt time.Time
}

// Stage returns a pointer to the state of the given stage, or nil for an unknown stage.
func (r *Record) Stage(stage Stage) *StageState {
	switch stage {
	case StageAnalysis:
		return &r.Analysis
	case StageEmbedding:
		return &r.Embedding
	default:
		return nil
	}
}

// HasContent reports whether the record carries any text to process.
func (r *Record) HasContent() bool {
	return strings.TrimSpace(r.Text) != ""
}

// Snapshot returns the externally visible status of the record.
func (r *Record) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		RecordID:         r.Id,
		ProcessingStatus: r.Analysis.Status,
		EmbeddingStatus:  r.Embedding.Status,
		AnalysisTaskID:   r.Analysis.TaskID,
		EmbeddingTaskID:  r.Embedding.TaskID,
		Error:            r.Analysis.Error,
		EmbeddingError:   r.Embedding.Error,
		ChunkCount:       r.ChunkCount,
		UpdatedAt:        r.UpdatedAt,
	}
}

// StatusSnapshot is what callers observe instead of raw pipeline errors.
type StatusSnapshot struct {
	RecordID         ID
	ProcessingStatus Status
	EmbeddingStatus  Status
	AnalysisTaskID   string
	EmbeddingTaskID  string
	Error            string
	EmbeddingError   string
	ChunkCount       int
	UpdatedAt        time.Time
}

// ActiveTaskID returns the task id of the given stage.
func (s StatusSnapshot) ActiveTaskID(stage Stage) string {
	if stage == StageEmbedding {
		return s.EmbeddingTaskID
	}
	return s.AnalysisTaskID
}

// Task is a unit of work handed from the gateway to a stage worker.
type Task struct {
	ID       string
	RecordID ID
	Stage    Stage
}

// KeyPointKind distinguishes plain insights from action items.
type KeyPointKind uint8

const (
	KeyPointInsight KeyPointKind = iota + 1
	KeyPointActionItem
)

func (k KeyPointKind) String() string {
	switch k {
	case KeyPointInsight:
		return "insight"
	case KeyPointActionItem:
		return "action_item"
	default:
		return "unknown"
	}
}

// KeyPoint is one structured item extracted from a transcript.
// Owner and Deadline are only meaningful for action items.
type KeyPoint struct {
	Kind     KeyPointKind
	Text     string
	Owner    string
	Deadline string
}

// Mentions reports whether the key point refers to term, ignoring case.
func (k KeyPoint) Mentions(term string) bool {
	term = strings.ToLower(term)
	for _, field := range []string{k.Text, k.Owner, k.Deadline} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// AnalysisResult is the output of a successful analysis run.
// A record owns at most one; a later successful run replaces it.
type AnalysisResult struct {
	RecordId   ID
	TaskID     string
	Title      string
	Summary    string
	KeyPoints  []KeyPoint
	InsertedAt time.Time
}

// ActionItems returns the key points that are action items, in order.
func (a *AnalysisResult) ActionItems() []KeyPoint {
	var items []KeyPoint
	for _, kp := range a.KeyPoints {
		if kp.Kind == KeyPointActionItem {
			items = append(items, kp)
		}
	}
	return items
}

// Chunk is a bounded span of a record's text with its embedding.
// Start and End are rune offsets into the record text.
type Chunk struct {
	Id         ID
	RecordId   ID
	Generation uint64
	Sequence   int
	Start      int
	End        int
	Text       string
	Vector     []float32
	InsertedAt time.Time
}

// ChunkMatch represents a chunk match from vector similarity search.
type ChunkMatch struct {
	Chunk *Chunk
	Score float32
}
