package memstore

import (
	"sort"
	"strings"
	"sync"

	"dupguard/internal/port"
)

// MemoryLedger is a port.Ledger kept in maps. State is lost on exit, so
// every run re-embeds from scratch.
type MemoryLedger struct {
	mu      sync.RWMutex
	files   map[string]port.FileRecord
	vectors map[string][]float32
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		files:   make(map[string]port.FileRecord),
		vectors: make(map[string][]float32),
	}
}

var _ port.Ledger = (*MemoryLedger)(nil)

func (s *MemoryLedger) GetFile(relPath string) (*port.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[relPath]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *MemoryLedger) PutFile(relPath string, rec *port.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[relPath] = *cloneRecord(*rec)
	return nil
}

func (s *MemoryLedger) DeleteFile(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, relPath)
	return nil
}

func (s *MemoryLedger) ListFiles(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *MemoryLedger) GetVector(model, hash string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[model+":"+hash]
	if !ok {
		return nil, nil
	}
	return append([]float32(nil), v...), nil
}

func (s *MemoryLedger) PutVector(model, hash string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[model+":"+hash] = append([]float32(nil), vector...)
	return nil
}

func (s *MemoryLedger) Close() error {
	return nil
}

func cloneRecord(rec port.FileRecord) *port.FileRecord {
	out := rec
	if rec.Units != nil {
		out.Units = make(map[string]port.UnitRecord, len(rec.Units))
		for k, v := range rec.Units {
			out.Units[k] = v
		}
	}
	return &out
}
