package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"dupguard/config"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

const openTimeout = 2 * time.Second

var (
	keySchemaVersion = []byte("schema_version")
	keyFingerprint   = []byte("fingerprint")
)

// SchemaInfo stores schema version and index fingerprint.
type SchemaInfo struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltLedger) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}
		if fp := b.Get(keyFingerprint); fp != nil {
			info.Fingerprint = string(fp)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltLedger) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyFingerprint, []byte(info.Fingerprint))
	})
}

// ComputeFingerprint hashes everything that decides which points the
// ledger describes. A change means the recorded hashes no longer match what
// is in the collection.
func ComputeFingerprint(cfg *config.Config, collection, model string, dimension int) string {
	relevant := struct {
		Collection   string `json:"collection"`
		Model        string `json:"model"`
		Dimension    int    `json:"dimension"`
		Provider     string `json:"provider"`
		ChunkLines   int    `json:"chunk_lines"`
		ChunkOverlap int    `json:"chunk_overlap"`
		MinUnitChars int    `json:"min_unit_chars"`
		MaxFileBytes int64  `json:"max_file_bytes"`
	}{
		Collection:   collection,
		Model:        model,
		Dimension:    dimension,
		Provider:     cfg.Embedding.Provider,
		ChunkLines:   cfg.Index.ChunkLines,
		ChunkOverlap: cfg.Index.ChunkOverlap,
		MinUnitChars: cfg.Index.MinUnitChars,
		MaxFileBytes: cfg.Index.MaxFileBytes,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration checks if migration or rebuild is needed.
func (s *BoltLedger) CheckMigration(fingerprint string) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("ledger created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.Fingerprint != "" && info.Fingerprint != fingerprint {
		result.NeedsRebuild = true
		result.Reason = "index configuration changed"
	}

	return result, nil
}

// Prepare brings the ledger up to date for fingerprint: it migrates the
// schema, clears all records when a rebuild is needed, and stores the new
// fingerprint. It reports whether records were cleared.
func (s *BoltLedger) Prepare(fingerprint string) (*MigrationResult, error) {
	result, err := s.CheckMigration(fingerprint)
	if err != nil {
		return nil, err
	}
	if result.NeedsRebuild {
		if err := s.Clear(); err != nil {
			return nil, err
		}
	} else if err := s.migrate(result.OldVersion); err != nil {
		return nil, err
	}
	err = s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion, Fingerprint: fingerprint})
	return result, err
}

func (s *BoltLedger) migrate(from int) error {
	for v := from; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}
	return nil
}

// runMigration runs a specific version migration.
func (s *BoltLedger) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		return nil
	case from == 1 && to == 2:
		// v1 keyed cached vectors by hash alone; they cannot be attributed
		// to a model, so they are dropped.
		return s.db.Update(func(tx *bbolt.Tx) error {
			return resetBucket(tx, bucketVectors)
		})
	default:
		return nil
	}
}

// Clear removes all file records and cached vectors (for rebuild).
func (s *BoltLedger) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketFiles, bucketVectors} {
			if err := resetBucket(tx, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func resetBucket(tx *bbolt.Tx, name []byte) error {
	if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
		return err
	}
	_, err := tx.CreateBucket(name)
	return err
}
