package scan

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/golap/kcv"
)

// Scanner executes scans over one store. A Scanner is reusable; each Run
// is independent.
type Scanner struct {
	store      kcv.Store
	numWorkers int
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithNumWorkers sets the number of parallel workers. Values below one
// fall back to GOMAXPROCS.
func WithNumWorkers(n int) Option {
	return func(s *Scanner) {
		s.numWorkers = n
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimit caps the scan at keysPerSecond processed keys across all
// workers. Zero or negative disables the limit.
func WithRateLimit(keysPerSecond float64) Option {
	return func(s *Scanner) {
		if keysPerSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(keysPerSecond), 1)
		}
	}
}

// NewScanner creates a Scanner over store.
func NewScanner(store kcv.Store, opts ...Option) *Scanner {
	s := &Scanner{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.numWorkers < 1 {
		s.numWorkers = runtime.GOMAXPROCS(0)
	}

	return s
}

// Run executes job against every key of the store and returns the scan's
// metrics. Each worker operates on an independent clone of job; the passed
// instance itself is never driven through the lifecycle.
//
// A failing key fails the whole scan: the owning worker still runs the
// job's end hook, the remaining workers are cancelled, and the first error
// is returned alongside the metrics collected so far.
func (s *Scanner) Run(ctx context.Context, job Job, jobConfig, graphConfig Config) (*Metrics, error) {
	metrics := NewMetrics()

	var keys []kcv.StaticBuffer
	for key, err := range s.store.Keys(ctx) {
		if err != nil {
			return metrics, fmt.Errorf("scan: list keys: %w", err)
		}
		keys = append(keys, key)
	}

	chunks := chunkKeys(keys, s.numWorkers)

	s.logger.Info("scan starting",
		"keys", len(keys),
		"workers", len(chunks),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		worker := i
		workerJob := job.Clone()
		workerKeys := chunk

		g.Go(func() error {
			if err := s.runWorker(gctx, workerJob, workerKeys, jobConfig, graphConfig, metrics); err != nil {
				s.logger.Error("scan worker failed", "worker", worker, "error", err)
				return err
			}
			return nil
		})
	}

	err := g.Wait()

	s.logger.Info("scan finished",
		"succeeded", metrics.Get(MetricSuccess),
		"failed", metrics.Get(MetricFailure),
	)

	return metrics, err
}

func (s *Scanner) runWorker(ctx context.Context, job Job, keys []kcv.StaticBuffer, jobConfig, graphConfig Config, metrics *Metrics) error {
	if err := job.WorkerIterationStart(ctx, jobConfig, graphConfig, metrics); err != nil {
		return fmt.Errorf("scan: worker start: %w", err)
	}

	// The job tears its own resources down when Queries fails, so the end
	// hook is only owed after this point.
	queries, err := job.Queries()
	if err != nil {
		return fmt.Errorf("scan: build queries: %w", err)
	}

	filter := job.KeyFilter()

	var procErr error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			procErr = err
			break
		}
		if filter != nil && !filter(key) {
			continue
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				procErr = err
				break
			}
		}

		fetched, err := fetchKey(ctx, s.store, key, queries)
		if err != nil {
			procErr = err
			break
		}

		if err := job.Process(ctx, key, fetched, metrics); err != nil {
			metrics.Increment(MetricFailure)
			procErr = fmt.Errorf("scan: process key: %w", err)
			break
		}
		metrics.Increment(MetricSuccess)
	}

	endErr := job.WorkerIterationEnd(ctx, metrics)

	if procErr != nil {
		return procErr
	}
	if endErr != nil {
		return fmt.Errorf("scan: worker end: %w", endErr)
	}
	return nil
}

// chunkKeys splits keys into at most n contiguous, non-empty chunks.
func chunkKeys(keys []kcv.StaticBuffer, n int) [][]kcv.StaticBuffer {
	if len(keys) == 0 {
		return nil
	}
	if n > len(keys) {
		n = len(keys)
	}

	chunks := make([][]kcv.StaticBuffer, 0, n)
	size := (len(keys) + n - 1) / n
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}

	return chunks
}
