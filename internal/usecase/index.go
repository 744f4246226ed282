package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	dgfs "dupguard/internal/adapter/fs"
	"dupguard/internal/adapter/logging"
	"dupguard/internal/adapter/store"
	"dupguard/internal/adapter/telemetry"
	"dupguard/internal/adapter/vectorstore"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// IndexService keeps one workspace's collection in step with its file tree.
// HandleEvent must not run concurrently for the same path; the Dispatcher
// guarantees that.
type IndexService struct {
	ws        domain.Workspace
	store     *vectorstore.Client
	embedder  port.Embedder
	extractor port.Extractor
	ledger    port.Ledger
	walker    *dgfs.Walker
	logger    *zap.Logger

	filesIndexed   atomic.Int64
	filesUnchanged atomic.Int64
	filesRemoved   atomic.Int64
	filesSkipped   atomic.Int64
	unitsEmbedded  atomic.Int64
	unitsReused    atomic.Int64
	unitsSkipped   atomic.Int64
	errors         atomic.Int64
}

// NewIndexService creates a new index service.
func NewIndexService(
	ws domain.Workspace,
	store *vectorstore.Client,
	embedder port.Embedder,
	extractor port.Extractor,
	ledger port.Ledger,
	walker *dgfs.Walker,
	logger *zap.Logger,
) *IndexService {
	return &IndexService{
		ws:        ws,
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		ledger:    ledger,
		walker:    walker,
		logger:    logger,
	}
}

func (s *IndexService) Workspace() domain.Workspace {
	return s.ws
}

func (s *IndexService) Walker() *dgfs.Walker {
	return s.walker
}

// ledgerPreparer is implemented by ledgers that persist across runs.
type ledgerPreparer interface {
	Prepare(fingerprint string) (*store.MigrationResult, error)
}

// Prepare ensures the collection exists with the embedder's dimension and
// resets the ledger when fingerprint differs from the one it was built for.
func (s *IndexService) Prepare(ctx context.Context, fingerprint string) error {
	if err := s.store.EnsureCollection(ctx, s.ws.Collection, s.embedder.Dimension(), domain.Cosine); err != nil {
		return err
	}
	p, ok := s.ledger.(ledgerPreparer)
	if !ok {
		return nil
	}
	res, err := p.Prepare(fingerprint)
	if err != nil {
		return fmt.Errorf("prepare ledger: %w", err)
	}
	if res.NeedsRebuild || res.NeedsMigration {
		s.logger.Info("ledger updated",
			zap.Bool("rebuild", res.NeedsRebuild),
			zap.Int("from_version", res.OldVersion),
			zap.Int("to_version", res.NewVersion),
			zap.String("reason", res.Reason))
	}
	return nil
}

// HandleEvent applies one filesystem event. Paths outside the workspace are
// ignored. The returned error is for logging only; the caller moves on.
func (s *IndexService) HandleEvent(ctx context.Context, ev domain.FileEvent) error {
	rel, err := s.ws.Rel(ev.Path)
	if err != nil || rel == "." {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "indexer.file",
		attribute.String("file_path", rel),
		attribute.String("op", ev.Op.String()))
	defer span.End()

	if ev.Op == domain.OpDelete {
		err = s.removePath(ctx, rel)
	} else {
		err = s.indexFile(ctx, ev.Path, rel)
	}
	if err != nil {
		s.errors.Add(1)
		telemetry.RecordError(span, err)
		return fmt.Errorf("%s %s: %w", ev.Op, rel, err)
	}
	return nil
}

func (s *IndexService) indexFile(ctx context.Context, absPath, rel string) error {
	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return s.removePath(ctx, rel)
	}
	if err != nil {
		return err
	}
	if info.IsDir() || !s.walker.Match(rel) {
		s.filesSkipped.Add(1)
		return nil
	}

	prev, err := s.ledger.GetFile(rel)
	if err != nil {
		return err
	}
	if prev != nil && prev.ModTime == info.ModTime().UnixNano() && prev.Size == info.Size() {
		s.filesUnchanged.Add(1)
		return nil
	}

	content, err := dgfs.ReadFile(absPath)
	if err != nil {
		return err
	}
	units := s.extractor.Extract(rel, content, "")

	if prev == nil {
		// no record: clear points left behind by an earlier ledger
		if err := s.store.DeleteByPath(ctx, s.ws.Collection, rel); err != nil && !domain.IsCollectionNotFound(err) {
			return err
		}
		prev = &port.FileRecord{}
	}

	next := &port.FileRecord{
		Units:   make(map[string]port.UnitRecord, len(units)),
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}
	var points []domain.Point
	now := time.Now().UTC()

	for _, u := range units {
		id := vectorstore.PointID(rel, u.Kind, u.Offset)
		if _, dup := next.Units[id]; dup {
			continue
		}
		if old, ok := prev.Units[id]; ok && old.Hash == u.ContentHash {
			next.Units[id] = old
			s.unitsReused.Add(1)
			continue
		}

		vec, err := s.vectorFor(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.unitsSkipped.Add(1)
			s.logger.Warn("skipping unit",
				zap.String("file_path", rel),
				zap.Int("start_line", u.StartLine),
				zap.Error(err))
			continue
		}

		points = append(points, domain.Point{
			ID:     id,
			Vector: vec,
			Payload: domain.Payload{
				FilePath:      rel,
				UnitKind:      u.Kind,
				ContentHash:   u.ContentHash,
				Language:      u.Language,
				IndexedAt:     now,
				WorkspaceRoot: s.ws.Root,
				Name:          u.Name,
				StartLine:     u.StartLine,
				EndLine:       u.EndLine,
			},
		})
		next.Units[id] = port.UnitRecord{Hash: u.ContentHash, Kind: string(u.Kind)}
	}

	if len(points) > 0 {
		if err := s.store.Upsert(ctx, s.ws.Collection, points); err != nil {
			return err
		}
	}

	var stale []string
	for id := range prev.Units {
		if _, ok := next.Units[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.store.DeletePoints(ctx, s.ws.Collection, stale); err != nil {
			return err
		}
	}

	if err := s.ledger.PutFile(rel, next); err != nil {
		return err
	}
	// a delete of a parent directory runs on another worker and may have
	// listed the ledger before this record existed
	if _, err := os.Stat(absPath); errors.Is(err, fs.ErrNotExist) {
		return s.removePath(ctx, rel)
	}
	s.filesIndexed.Add(1)
	s.logger.Debug("indexed file",
		zap.String("file_path", rel),
		zap.Int("units", len(next.Units)),
		zap.Int("upserted", len(points)),
		zap.Int("removed", len(stale)))
	return nil
}

// vectorFor returns the cached embedding for the unit's content, embedding
// and caching it on a miss.
func (s *IndexService) vectorFor(ctx context.Context, u domain.CodeUnit) ([]float32, error) {
	model := s.embedder.ModelName()
	vec, err := s.ledger.GetVector(model, u.ContentHash)
	if err != nil {
		s.logger.Debug("vector cache read failed", zap.Error(err))
	}
	if len(vec) == s.embedder.Dimension() {
		return vec, nil
	}

	vec, err = s.embedder.Embed(ctx, u.Text, u.Language)
	if err != nil {
		return nil, err
	}
	s.unitsEmbedded.Add(1)
	if err := s.ledger.PutVector(model, u.ContentHash, vec); err != nil {
		s.logger.Debug("vector cache write failed", zap.Error(err))
	}
	return vec, nil
}

// removePath deletes the points of rel, or of every recorded file under rel
// when it was a directory. rel itself is always cleared, recorded or not, so
// points whose ledger write failed do not outlive the file.
func (s *IndexService) removePath(ctx context.Context, rel string) error {
	if err := s.store.DeleteByPath(ctx, s.ws.Collection, rel); err != nil && !domain.IsCollectionNotFound(err) {
		return err
	}

	candidates, err := s.ledger.ListFiles(rel)
	if err != nil {
		return err
	}
	for _, p := range candidates {
		if p != rel && !strings.HasPrefix(p, rel+"/") {
			continue
		}
		if p != rel {
			if err := s.store.DeleteByPath(ctx, s.ws.Collection, p); err != nil && !domain.IsCollectionNotFound(err) {
				return err
			}
		}
		if err := s.ledger.DeleteFile(p); err != nil {
			return err
		}
		s.filesRemoved.Add(1)
		s.logger.Debug("removed file", zap.String("file_path", p))
	}
	return nil
}

// Scan submits a modify event for every indexable file and a delete event
// for every recorded file that is gone. It returns the number of events.
func (s *IndexService) Scan(ctx context.Context, submit dgfs.SubmitFunc) (int, error) {
	files, err := s.walker.Walk(s.ws.Root)
	if err != nil {
		return 0, fmt.Errorf("failed to walk workspace: %w", err)
	}

	seen := make(map[string]struct{}, len(files))
	n := 0
	for _, f := range files {
		if rel, err := s.ws.Rel(f.Path); err == nil {
			seen[rel] = struct{}{}
		}
		if err := submit(ctx, domain.FileEvent{Path: f.Path, Op: domain.OpModify}); err != nil {
			return n, err
		}
		n++
	}

	recorded, err := s.ledger.ListFiles("")
	if err != nil {
		return n, err
	}
	for _, rel := range recorded {
		if _, ok := seen[rel]; ok {
			continue
		}
		if err := submit(ctx, domain.FileEvent{Path: s.ws.Abs(rel), Op: domain.OpDelete}); err != nil {
			return n, err
		}
		n++
	}

	logging.FromContext(ctx).Debug("scan submitted", zap.Int("events", n))
	return n, nil
}

// Stats returns a snapshot of the counters.
func (s *IndexService) Stats() domain.IndexStats {
	return domain.IndexStats{
		FilesIndexed:   s.filesIndexed.Load(),
		FilesUnchanged: s.filesUnchanged.Load(),
		FilesRemoved:   s.filesRemoved.Load(),
		FilesSkipped:   s.filesSkipped.Load(),
		UnitsEmbedded:  s.unitsEmbedded.Load(),
		UnitsReused:    s.unitsReused.Load(),
		UnitsSkipped:   s.unitsSkipped.Load(),
		Errors:         s.errors.Load(),
	}
}
