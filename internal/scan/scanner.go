// Package scan is the orchestrator: it pulls one bounded batch of files from
// a source, runs every applicable engine over each file on a worker pool,
// and merges the findings into a scored, severity-partitioned result.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"

	"codebot/internal/advisory"
	"codebot/internal/engine"
	"codebot/internal/finding"
	"codebot/internal/manifest"
	"codebot/internal/metrics"
	"codebot/internal/runner"
	"codebot/internal/source"
)

const (
	DefaultMaxFileBytes = 1 << 20
	DefaultFileTimeout  = 15 * time.Second
)

// Scanner runs scan calls. It holds no per-call state, so one Scanner can
// serve concurrent requests.
type Scanner struct {
	Source  source.FileSource
	Engines []engine.Engine
	// Workers bounds file-level parallelism; zero uses one per CPU.
	Workers      int
	MaxFileBytes int64
	// FileTimeout bounds each content fetch.
	FileTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	now func() time.Time
}

// New returns a Scanner with default limits.
func New(src source.FileSource, engines []engine.Engine) *Scanner {
	return &Scanner{
		Source:       src,
		Engines:      engines,
		MaxFileBytes: DefaultMaxFileBytes,
		FileTimeout:  DefaultFileTimeout,
		Logger:       slog.Default(),
		now:          time.Now,
	}
}

// fileOutcome is what one worker produced for one listed file. Each slot is
// written by exactly one task and read only after the pool has drained.
type fileOutcome struct {
	// done is false when the file was abandoned because the scan was
	// cancelled; such files belong to the next chunk.
	done       bool
	scanned    bool
	skipped    *SkippedFile
	findings   []finding.Finding
	warnings   []Warning
	engines    []string
	incomplete bool
}

// Scan runs one chunk. Only an invalid request returns an error; every
// other failure is recorded on the result.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	started := s.clock()
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := s.Source.ValidateRepository(req.RepositoryURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	var start source.Cursor
	if req.ChunkStart != nil {
		start = *req.ChunkStart
	}

	res := &Result{
		ScanID:        uuid.NewString(),
		Success:       true,
		RepositoryURL: req.RepositoryURL,
		StartedAt:     started.UTC(),
		ScannersUsed:  []string{},
		ScannedFiles:  []string{},
	}
	logger := s.logger().With("scan_id", res.ScanID, "repository", req.RepositoryURL)
	s.Metrics.ScanStarted()

	listing, err := s.Source.ListFiles(ctx, req.RepositoryURL, start, req.MaxFiles)
	if err != nil {
		if errors.Is(err, source.ErrInvalidRepository) {
			s.Metrics.ScanFinished("rejected", s.clock().Sub(started))
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		kind := KindListFailed
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		logger.Warn("Failed to list repository files", "error", err)
		res.Success = false
		res.Incomplete = true
		res.NextChunk = &start
		res.Warnings = []Warning{{Kind: kind, Message: err.Error()}}
		res.setFindings(nil)
		s.finish(logger, res, started, "failed")
		return res, nil
	}

	logger.Info("Scan started", "files", len(listing.Files), "start", start, "total_files", listing.Total)

	outcomes := s.dispatch(ctx, req.RepositoryURL, listing.Files, logger)

	// The result covers the prefix of files that completed; anything after
	// the first abandoned file is left for the next chunk.
	frontier := len(outcomes)
	for i, o := range outcomes {
		if !o.done {
			frontier = i
			break
		}
	}

	var all []finding.Finding
	used := map[string]bool{}
	for i, o := range outcomes[:frontier] {
		if o.skipped != nil {
			res.FilesSkipped = append(res.FilesSkipped, *o.skipped)
		}
		if o.scanned {
			res.FilesScanned++
			res.ScannedFiles = append(res.ScannedFiles, listing.Files[i].Path)
		}
		for _, name := range o.engines {
			used[name] = true
		}
		all = append(all, o.findings...)
		res.Warnings = append(res.Warnings, o.warnings...)
		res.Incomplete = res.Incomplete || o.incomplete
	}
	slices.Sort(res.ScannedFiles)
	for name := range used {
		res.ScannersUsed = append(res.ScannersUsed, name)
	}
	slices.Sort(res.ScannersUsed)

	res.TotalFiles = listing.Total
	res.NextChunk = listing.Next
	res.Remaining = listing.Remaining
	if frontier < len(listing.Files) {
		next := start + source.Cursor(frontier)
		res.NextChunk = &next
		res.Remaining = listing.Remaining + len(listing.Files) - frontier
		res.Incomplete = true
		res.Warnings = append(res.Warnings, Warning{
			Kind:    KindCancelled,
			Message: fmt.Sprintf("scan cancelled after %d of %d files: %v", frontier, len(listing.Files), context.Cause(ctx)),
		})
	}

	merged := Dedupe(all)
	kept, dropped := FilterLowConfidence(merged, req.IncludeLowConfidence)
	res.FilteredLowConfidence = dropped
	res.setFindings(kept)

	for _, f := range res.Findings() {
		s.Metrics.FindingReported(f.Severity.String(), f.Scanner)
	}
	status := "success"
	if res.Incomplete {
		status = "incomplete"
	}
	s.finish(logger, res, started, status)
	return res, nil
}

// dispatch fans the files out over a worker pool and returns one outcome
// per file in listing order. It stops submitting once ctx is done.
func (s *Scanner) dispatch(ctx context.Context, repo string, files []source.File, logger *slog.Logger) []fileOutcome {
	outcomes := make([]fileOutcome, len(files))
	if len(files) == 0 {
		return outcomes
	}

	pool := runner.NewWorkerPool(min(s.Workers, len(files)))
	pool.Logger = logger
	pool.OnError = func(_ int, err error) {
		// scanFile recovers engine panics itself; this only fires if the
		// orchestration code around them fails.
		logger.Error("File task failed", "error", err)
	}
	pool.Start()

	for i, f := range files {
		err := pool.Submit(ctx, func(int) error {
			outcomes[i] = s.scanFile(ctx, repo, f, logger)
			return nil
		})
		if err != nil {
			logger.Warn("Scan cancelled, no further files dispatched", "dispatched", i, "error", err)
			break
		}
	}
	pool.Stop()
	return outcomes
}

// scanFile fetches one file and runs every applicable engine on it.
func (s *Scanner) scanFile(ctx context.Context, repo string, f source.File, logger *slog.Logger) fileOutcome {
	if ctx.Err() != nil {
		return fileOutcome{}
	}

	maxBytes := s.maxFileBytes()
	if f.Size > maxBytes {
		s.Metrics.FileSkipped(KindTooLarge)
		return fileOutcome{done: true, skipped: &SkippedFile{Path: f.Path, Reason: KindTooLarge}}
	}

	applicable := make([]engine.Engine, 0, len(s.Engines))
	for _, e := range s.Engines {
		if e.Applies(f.Path) {
			applicable = append(applicable, e)
		}
	}
	if len(applicable) == 0 {
		// Nothing would read the content, so skip the fetch.
		s.Metrics.FileScanned()
		return fileOutcome{done: true, scanned: true}
	}

	content, err := s.fetch(ctx, repo, f.Path, maxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return fileOutcome{}
		}
		return s.fetchFailed(f.Path, err, logger)
	}

	out := fileOutcome{done: true, scanned: true}
	for _, e := range applicable {
		out.engines = append(out.engines, e.Name())
		findings, err := s.runEngine(ctx, e, f.Path, content)
		out.findings = append(out.findings, findings...)
		if err == nil {
			continue
		}
		w := Warning{File: f.Path, Engine: e.Name(), Kind: classify(err), Message: err.Error()}
		switch w.Kind {
		case KindEnginePanic:
			logger.Error("Engine panicked", "engine", e.Name(), "file", f.Path, "error", err)
		case KindAdvisoryIncomplete:
			out.incomplete = true
			logger.Warn("Advisory lookup incomplete", "engine", e.Name(), "file", f.Path, "error", err)
		default:
			logger.Warn("Engine reported an error", "engine", e.Name(), "file", f.Path, "kind", w.Kind, "error", err)
		}
		s.Metrics.EngineFailed(e.Name(), w.Kind)
		out.warnings = append(out.warnings, w)
	}
	if ctx.Err() != nil {
		// Engines may have stopped early; rescan the file in the next chunk.
		return fileOutcome{}
	}
	s.Metrics.FileScanned()
	return out
}

func (s *Scanner) fetch(ctx context.Context, repo, path string, maxBytes int64) ([]byte, error) {
	timeout := s.FileTimeout
	if timeout <= 0 {
		timeout = DefaultFileTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Source.FetchContent(fctx, repo, path, maxBytes)
}

func (s *Scanner) fetchFailed(path string, err error, logger *slog.Logger) fileOutcome {
	out := fileOutcome{done: true}
	switch {
	case errors.Is(err, source.ErrTooLarge):
		out.skipped = &SkippedFile{Path: path, Reason: KindTooLarge}
	case errors.Is(err, source.ErrNotFound):
		out.skipped = &SkippedFile{Path: path, Reason: KindNotFound}
		out.warnings = []Warning{{File: path, Kind: KindNotFound, Message: err.Error()}}
		logger.Warn("File not found", "file", path)
	default:
		out.skipped = &SkippedFile{Path: path, Reason: KindFetchFailed}
		out.warnings = []Warning{{File: path, Kind: KindFetchFailed, Message: err.Error()}}
		out.incomplete = true
		logger.Warn("Failed to fetch file", "file", path, "error", err)
	}
	s.Metrics.FileSkipped(out.skipped.Reason)
	return out
}

// runEngine isolates one engine run. A panic becomes zero findings plus a
// PanicError.
func (s *Scanner) runEngine(ctx context.Context, e engine.Engine, path string, content []byte) (findings []finding.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = &runner.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.Scan(ctx, path, content)
}

// classify maps an engine error onto a warning kind.
func classify(err error) string {
	var perr *manifest.ParseError
	var panicErr *runner.PanicError
	switch {
	case errors.As(err, &panicErr):
		return KindEnginePanic
	case errors.As(err, &perr):
		return KindParseError
	case errors.Is(err, advisory.ErrIncomplete):
		return KindAdvisoryIncomplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindEngineError
	}
}

func (s *Scanner) finish(logger *slog.Logger, res *Result, started time.Time, status string) {
	elapsed := s.clock().Sub(started)
	res.DurationMS = elapsed.Milliseconds()
	s.Metrics.ScanFinished(status, elapsed)
	logger.Info("Scan finished",
		"status", status,
		"files", res.FilesScanned,
		"findings", res.Total,
		"risk_score", res.RiskScore,
		"remaining", res.Remaining,
		"duration_ms", res.DurationMS,
	)
}

func (s *Scanner) maxFileBytes() int64 {
	if s.MaxFileBytes > 0 {
		return s.MaxFileBytes
	}
	return DefaultMaxFileBytes
}

func (s *Scanner) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
