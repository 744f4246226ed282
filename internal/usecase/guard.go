package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dupguard/config"
	"dupguard/internal/adapter/chunker"
	"dupguard/internal/adapter/telemetry"
	"dupguard/internal/adapter/vectorstore"
	"dupguard/internal/adapter/workspace"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// OverrideEnv holds an operator override when the request carries none.
const OverrideEnv = "DUPGUARD_OVERRIDE"

// GuardUseCase decides whether pending content duplicates indexed code. It
// only reads from the vector store and fails open: anything short of an
// evidenced match allows the write.
type GuardUseCase struct {
	cfg       *config.Config
	resolver  *workspace.Resolver
	store     *vectorstore.Client
	embedder  port.Embedder
	extractor port.Extractor
	logger    *zap.Logger
}

// NewGuardUseCase creates a new guard use case.
func NewGuardUseCase(
	cfg *config.Config,
	resolver *workspace.Resolver,
	store *vectorstore.Client,
	embedder port.Embedder,
	extractor port.Extractor,
	logger *zap.Logger,
) *GuardUseCase {
	return &GuardUseCase{
		cfg:       cfg,
		resolver:  resolver,
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		logger:    logger,
	}
}

// Check never returns an error; failures resolve to ALLOW with a reason.
func (g *GuardUseCase) Check(ctx context.Context, req domain.GuardRequest) domain.GuardResponse {
	req = flattenRequest(req)

	ctx, span := telemetry.StartSpan(ctx, "guard.check",
		attribute.String("tool", req.Tool),
		attribute.String("target_file_path", req.TargetFilePath))
	defer span.End()

	resp := g.check(ctx, req)
	span.SetAttributes(
		attribute.String("decision", string(resp.Decision)),
		attribute.Int("evidence", len(resp.Evidence)))
	return resp
}

func (g *GuardUseCase) check(ctx context.Context, req domain.GuardRequest) domain.GuardResponse {
	if req.TargetFilePath == "" {
		return allow("no target file")
	}
	target, err := g.absTarget(req)
	if err != nil {
		return g.failOpen("resolve target path", err)
	}

	if g.overridden(req) {
		g.logger.Info("duplicate check overridden",
			zap.String("tool", req.Tool),
			zap.String("target_file_path", target))
		return allow("override")
	}
	if strings.TrimSpace(req.PendingContent) == "" {
		return allow("no pending content")
	}

	if g.cfg.Guard.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Guard.Timeout)
		defer cancel()
	}

	ws, err := g.resolver.ResolveOrGlobal(ctx, filepath.Dir(target))
	if err != nil {
		return g.failOpen("resolve workspace", err)
	}

	language := req.Language
	if language == "" {
		language = chunker.DetectLanguage(target)
	}
	rel, err := ws.Rel(target)
	if err != nil {
		rel = filepath.Base(target)
	}
	units := g.extractor.Extract(rel, []byte(req.PendingContent), language)
	if len(units) == 0 {
		return allow("nothing to compare")
	}

	type result struct {
		matches []domain.SimilarityResult
		err     error
	}
	done := make(chan result, 1)
	go func() {
		m, err := g.search(ctx, ws, workspace.NormalizePath(target), units)
		done <- result{m, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return g.failOpen("timed out", res.err)
		}
		return g.failOpen("vector store", res.err)
	}

	evidence := collectEvidence(ws, res.matches)
	if len(evidence) == 0 {
		return allow("")
	}
	g.logger.Info("duplicate detected",
		zap.String("target_file_path", target),
		zap.String("file_path", evidence[0].FilePath),
		zap.Float64("score", evidence[0].Score))
	return domain.GuardResponse{
		Decision: domain.Block,
		Evidence: evidence,
		Reason:   fmt.Sprintf("similar code already exists in %d file(s)", len(evidence)),
	}
}

// search embeds and queries every unit concurrently and returns matches that
// do not belong to the target file itself.
func (g *GuardUseCase) search(ctx context.Context, ws domain.Workspace, target string, units []domain.CodeUnit) ([]domain.SimilarityResult, error) {
	var (
		mu      sync.Mutex
		matches []domain.SimilarityResult
	)

	grp, gctx := errgroup.WithContext(ctx)
	if n := g.cfg.Guard.Concurrency; n > 0 {
		grp.SetLimit(n)
	}
	for _, u := range units {
		grp.Go(func() error {
			uctx, span := telemetry.StartSpan(gctx, "guard.unit",
				attribute.String("unit_kind", string(u.Kind)),
				attribute.Int("start_line", u.StartLine))
			defer span.End()

			vec, err := g.embedder.Embed(uctx, u.Text, u.Language)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// one unembeddable unit does not decide the outcome
				g.logger.Debug("skipping unit", zap.Int("start_line", u.StartLine), zap.Error(err))
				return nil
			}

			results, err := g.store.Query(uctx, ws.Collection, vec, g.cfg.Guard.TopK, g.cfg.SimilarityThreshold)
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				if isSelf(ws, r.Payload, target) {
					continue
				}
				matches = append(matches, r)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}

// isSelf reports whether a stored point came from the file being written.
func isSelf(ws domain.Workspace, p domain.Payload, target string) bool {
	return workspace.NormalizePath(payloadAbs(ws, p)) == target
}

// payloadAbs resolves a stored relative path under the current workspace
// root, so a workspace seen through another mount maps onto local paths. The
// indexer's root is only trusted in degraded mode, where the shared global
// collection mixes unrelated roots.
func payloadAbs(ws domain.Workspace, p domain.Payload) string {
	if filepath.IsAbs(p.FilePath) {
		return filepath.Clean(p.FilePath)
	}
	root := ws.Root
	if ws.Degraded && p.WorkspaceRoot != "" {
		root = p.WorkspaceRoot
	}
	return domain.Workspace{Root: root}.Abs(p.FilePath)
}

// collectEvidence keeps the best match per file, best first.
func collectEvidence(ws domain.Workspace, matches []domain.SimilarityResult) []domain.Evidence {
	best := make(map[string]domain.Evidence)
	for _, m := range matches {
		path := payloadAbs(ws, m.Payload)
		if e, ok := best[path]; ok && e.Score >= m.Score {
			continue
		}
		best[path] = domain.Evidence{
			FilePath: path,
			Score:    m.Score,
			UnitKind: m.Payload.UnitKind,
			Name:     m.Payload.Name,
			Language: m.Payload.Language,
		}
	}

	evidence := make([]domain.Evidence, 0, len(best))
	for _, e := range best {
		evidence = append(evidence, e)
	}
	sort.Slice(evidence, func(i, j int) bool {
		if evidence[i].Score != evidence[j].Score {
			return evidence[i].Score > evidence[j].Score
		}
		return evidence[i].FilePath < evidence[j].FilePath
	})
	return evidence
}

func (g *GuardUseCase) overridden(req domain.GuardRequest) bool {
	token := req.Override
	if token == "" {
		token = os.Getenv(OverrideEnv)
	}
	if token == "" {
		return false
	}
	want := g.cfg.Guard.OverrideToken
	if want == "" || subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1 {
		return true
	}
	g.logger.Warn("override rejected: token mismatch", zap.String("target_file_path", req.TargetFilePath))
	return false
}

func (g *GuardUseCase) absTarget(req domain.GuardRequest) (string, error) {
	if filepath.IsAbs(req.TargetFilePath) {
		return filepath.Clean(req.TargetFilePath), nil
	}
	base := req.Cwd
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		base = wd
	}
	return filepath.Join(base, req.TargetFilePath), nil
}

func (g *GuardUseCase) failOpen(stage string, err error) domain.GuardResponse {
	g.logger.Warn("duplicate check failed open", zap.String("stage", stage), zap.Error(err))
	return allow("check skipped: " + stage)
}

func allow(reason string) domain.GuardResponse {
	return domain.GuardResponse{Decision: domain.Allow, Evidence: []domain.Evidence{}, Reason: reason}
}

// flattenRequest fills the flat fields from a hook-style tool_input.
func flattenRequest(req domain.GuardRequest) domain.GuardRequest {
	in := req.ToolInput
	if in == nil {
		return req
	}
	if req.TargetFilePath == "" {
		req.TargetFilePath = in.FilePath
	}
	if req.PendingContent == "" {
		switch {
		case in.Content != "":
			req.PendingContent = in.Content
		case in.NewString != "":
			req.PendingContent = in.NewString
		default:
			parts := make([]string, 0, len(in.Edits))
			for _, e := range in.Edits {
				if e.NewString != "" {
					parts = append(parts, e.NewString)
				}
			}
			req.PendingContent = strings.Join(parts, "\n")
		}
	}
	return req
}
