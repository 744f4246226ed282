package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Workspace is a resolved project root and the collection its points live in.
type Workspace struct {
	Root       string
	Collection string
	// Degraded is set when no project marker was found and the shared
	// global collection is used instead.
	Degraded bool
}

type UnitKind string

const (
	UnitFile     UnitKind = "file"
	UnitFunction UnitKind = "function"
	UnitClass    UnitKind = "class"
	UnitChunk    UnitKind = "chunk"
)

// CodeUnit is a contiguous span of source text extracted from one file.
type CodeUnit struct {
	FilePath    string // relative to the workspace root, slash separated
	Kind        UnitKind
	Name        string
	Language    string
	StartLine   int
	EndLine     int
	Offset      int
	Text        string
	ContentHash string
}

// Payload is the JSON document stored next to every vector.
type Payload struct {
	FilePath      string    `json:"file_path"`
	UnitKind      UnitKind  `json:"unit_kind"`
	ContentHash   string    `json:"content_hash"`
	Language      string    `json:"language"`
	IndexedAt     time.Time `json:"indexed_at"`
	WorkspaceRoot string    `json:"workspace_root,omitempty"`
	Name          string    `json:"name,omitempty"`
	StartLine     int       `json:"start_line,omitempty"`
	EndLine       int       `json:"end_line,omitempty"`
}

// Point is a persisted code unit.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SimilarityResult is a single nearest-neighbour match. Score is cosine
// similarity clamped to [0,1].
type SimilarityResult struct {
	ID      string
	Score   float64
	Payload Payload
}

// Distance is the similarity metric of a collection.
type Distance string

const Cosine Distance = "Cosine"

type CollectionInfo struct {
	Name        string
	Exists      bool
	VectorSize  int
	Distance    Distance
	PointsCount int64
}

type EventOp int

const (
	OpModify EventOp = iota
	OpDelete
)

func (o EventOp) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "modify"
}

// FileEvent is a filesystem notification for an absolute path.
type FileEvent struct {
	Path string
	Op   EventOp
}

type Decision string

const (
	Allow Decision = "ALLOW"
	Block Decision = "BLOCK"
)

// GuardRequest is the hook payload sent before a write is committed.
type GuardRequest struct {
	Tool           string     `json:"tool"`
	TargetFilePath string     `json:"target_file_path"`
	PendingContent string     `json:"pending_content"`
	Language       string     `json:"language"`
	Override       string     `json:"override,omitempty"`
	Cwd            string     `json:"cwd,omitempty"`
	ToolInput      *ToolInput `json:"tool_input,omitempty"`
}

// ToolInput is the nested form some hook dispatchers send instead of the
// flat fields.
type ToolInput struct {
	FilePath  string     `json:"file_path"`
	Content   string     `json:"content"`
	NewString string     `json:"new_string"`
	Edits     []ToolEdit `json:"edits,omitempty"`
}

type ToolEdit struct {
	NewString string `json:"new_string"`
}

type Evidence struct {
	FilePath string   `json:"file_path"`
	Score    float64  `json:"score"`
	UnitKind UnitKind `json:"unit_kind,omitempty"`
	Name     string   `json:"name,omitempty"`
	Language string   `json:"language,omitempty"`
}

type GuardResponse struct {
	Decision Decision   `json:"decision"`
	Evidence []Evidence `json:"evidence"`
	Reason   string     `json:"reason,omitempty"`
}

// IndexStats summarises indexer activity.
type IndexStats struct {
	FilesIndexed   int64
	FilesUnchanged int64
	FilesRemoved   int64
	FilesSkipped   int64
	UnitsEmbedded  int64
	UnitsReused    int64
	UnitsSkipped   int64
	Errors         int64
}

// Rel converts an absolute path under the workspace root to the
// slash-separated relative form stored in payloads.
func (w Workspace) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(w.Root, filepath.Clean(abs))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s is outside workspace %s", abs, w.Root)
	}
	return filepath.ToSlash(rel), nil
}

// Abs converts a stored relative path back to an absolute local path.
func (w Workspace) Abs(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}
