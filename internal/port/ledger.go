package port

// UnitRecord is what the indexer remembers about one stored point.
type UnitRecord struct {
	Hash string `json:"hash"`
	Kind string `json:"kind"`
}

// FileRecord maps point IDs of one file to their content hashes.
type FileRecord struct {
	Units   map[string]UnitRecord `json:"units"`
	ModTime int64                 `json:"mod_time"`
	Size    int64                 `json:"size"`
}

// Ledger is the indexer's private record of what has been written to the
// vector store. It is never shared with the guard.
type Ledger interface {
	GetFile(relPath string) (*FileRecord, error)
	PutFile(relPath string, rec *FileRecord) error
	DeleteFile(relPath string) error
	// ListFiles returns relative paths starting with prefix, in byte order.
	ListFiles(prefix string) ([]string, error)

	GetVector(model, hash string) ([]float32, error)
	PutVector(model, hash string, vector []float32) error

	Close() error
}
