package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"dupguard/internal/port"
)

var (
	bucketFiles   = []byte("files")
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
)

// BoltLedger is the indexer's local record of what it has written to the
// vector store, plus a content-addressed cache of embeddings.
type BoltLedger struct {
	db *bbolt.DB
}

func NewBoltLedger(path string) (*BoltLedger, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketFiles, bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLedger{db: db}, nil
}

var _ port.Ledger = (*BoltLedger)(nil)

// GetFile returns nil without error when the path has never been indexed.
func (s *BoltLedger) GetFile(relPath string) (*port.FileRecord, error) {
	var rec *port.FileRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(relPath))
		if data == nil {
			return nil
		}
		rec = &port.FileRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("read ledger record %s: %w", relPath, err)
	}
	return rec, nil
}

func (s *BoltLedger) PutFile(relPath string, rec *port.FileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(relPath), data)
	})
}

func (s *BoltLedger) DeleteFile(relPath string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(relPath))
	})
}

func (s *BoltLedger) ListFiles(prefix string) ([]string, error) {
	var paths []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFiles).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			paths = append(paths, string(k))
		}
		return nil
	})
	return paths, err
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

func vectorKey(model, hash string) []byte {
	return []byte(model + ":" + hash)
}

// GetVector returns nil without error on a cache miss.
func (s *BoltLedger) GetVector(model, hash string) ([]float32, error) {
	var vec []float32
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketVectors).Get(vectorKey(model, hash))
		if data == nil {
			return nil
		}
		var sv storedVector
		if err := json.Unmarshal(data, &sv); err != nil {
			return err
		}
		vec = sv.Vector
		return nil
	})
	return vec, err
}

func (s *BoltLedger) PutVector(model, hash string, vector []float32) error {
	data, err := json.Marshal(storedVector{Vector: vector})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Put(vectorKey(model, hash), data)
	})
}

// Counts returns the number of file records and cached vectors.
func (s *BoltLedger) Counts() (files, vectors int, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		files = tx.Bucket(bucketFiles).Stats().KeyN
		vectors = tx.Bucket(bucketVectors).Stats().KeyN
		return nil
	})
	return files, vectors, err
}

func (s *BoltLedger) Close() error {
	return s.db.Close()
}
