package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = time.Second
)

// ProgressReporter receives a snapshot after every regeneration batch
type ProgressReporter interface {
	RegenerationProgress(progress domain.RegenerationProgress)
}

// Regenerator recomputes stored face identifiers in fixed size batches
type Regenerator struct {
	configs    ConfigSource
	providers  ProviderResolver
	references ReferenceRepositoryInterface
	embeddings EmbeddingRepositoryInterface
	images     ImageLoader
	logger     *slog.Logger
	progress   ProgressReporter

	batchSize  int
	batchDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func NewRegenerator(
	configs ConfigSource,
	providers ProviderResolver,
	references ReferenceRepositoryInterface,
	embeddings EmbeddingRepositoryInterface,
	images ImageLoader,
	logger *slog.Logger,
) *Regenerator {
	return &Regenerator{
		configs:    configs,
		providers:  providers,
		references: references,
		embeddings: embeddings,
		images:     images,
		logger:     logger,
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

func (r *Regenerator) WithBatching(size int, delay time.Duration) *Regenerator {
	if size > 0 {
		r.batchSize = size
	}
	if delay >= 0 {
		r.batchDelay = delay
	}
	return r
}

// WithProgress registers a reporter notified after each batch
func (r *Regenerator) WithProgress(progress ProgressReporter) *Regenerator {
	r.progress = progress
	return r
}

// RegenerateAll re-derives the identifier of every reference with a photo.
// Item failures are reported, never returned.
func (r *Regenerator) RegenerateAll(ctx context.Context) (*domain.RegenerationReport, error) {
	cfg, p, err := activeProvider(ctx, r.configs, r.providers)
	if err != nil {
		return nil, err
	}

	refs, err := r.references.ListWithPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return r.run(ctx, cfg, p, refs)
}

// Regenerate re-derives the identifiers of the given references.
func (r *Regenerator) Regenerate(ctx context.Context, ids []uuid.UUID) (*domain.RegenerationReport, error) {
	cfg, p, err := activeProvider(ctx, r.configs, r.providers)
	if err != nil {
		return nil, err
	}

	refs, err := r.references.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return r.run(ctx, cfg, p, refs)
}

func (r *Regenerator) run(ctx context.Context, cfg *domain.ProviderConfig, p provider.FaceProvider, refs []domain.ReferenceStub) (*domain.RegenerationReport, error) {
	start := r.now()
	collector := newReportCollector(len(refs))
	runID := uuid.NewString()

	r.logger.Info("regenerating face embeddings",
		"provider", cfg,
		"references", len(refs),
		"batch_size", r.batchSize,
	)

	for offset := 0; offset < len(refs); offset += r.batchSize {
		if offset > 0 {
			if err := r.sleep(ctx, r.batchDelay); err != nil {
				report := collector.report(r.now().Sub(start))
				return report, err
			}
		}

		end := offset + r.batchSize
		if end > len(refs) {
			end = len(refs)
		}
		r.runBatch(ctx, p, refs[offset:end], collector)
		r.reportProgress(runID, p.Type(), collector, end == len(refs))
	}
	if len(refs) == 0 {
		r.reportProgress(runID, p.Type(), collector, true)
	}

	report := collector.report(r.now().Sub(start))
	r.logger.Info("face embedding regeneration finished",
		"total", report.Total,
		"success", report.Success,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

func (r *Regenerator) reportProgress(runID string, t domain.ProviderType, collector *reportCollector, done bool) {
	if r.progress == nil {
		return
	}
	progress := collector.progress()
	progress.RunID = runID
	progress.Provider = t
	progress.Done = done
	r.progress.RegenerationProgress(progress)
}

// runBatch processes one batch concurrently. Members never cancel siblings.
func (r *Regenerator) runBatch(ctx context.Context, p provider.FaceProvider, batch []domain.ReferenceStub, collector *reportCollector) {
	var g errgroup.Group
	g.SetLimit(len(batch))

	for _, ref := range batch {
		ref := ref
		g.Go(func() error {
			if err := r.regenerateOne(ctx, p, ref); err != nil {
				r.logger.Warn("failed to regenerate face embedding",
					"reference_id", ref.ID,
					"provider", p.Type(),
					"error", err,
				)
				metrics.RegeneratedEmbeddings.WithLabelValues(metrics.OutcomeError).Inc()
				collector.fail(ref.ID, err)
				return nil
			}
			metrics.RegeneratedEmbeddings.WithLabelValues(metrics.OutcomeSuccess).Inc()
			collector.succeed()
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Regenerator) regenerateOne(ctx context.Context, p provider.FaceProvider, ref domain.ReferenceStub) error {
	img, err := r.images.Load(ctx, ref.PhotoURL)
	if err != nil {
		return fmt.Errorf("load photo: %w", err)
	}

	id, err := p.Extract(ctx, img)
	if err != nil {
		return fmt.Errorf("extract face: %w", err)
	}

	record := &domain.FaceEmbeddingRecord{
		ReferenceID:    ref.ID,
		SubjectName:    ref.SubjectName,
		SubjectContact: ref.SubjectContact,
		PhotoURL:       ref.PhotoURL,
	}
	record.SetFaceID(id)

	if err := storeFaceID(ctx, r.embeddings, p, record, r.logger); err != nil {
		releaseFaceID(ctx, p, id, r.logger)
		return fmt.Errorf("store face id: %w", err)
	}
	return nil
}

type reportCollector struct {
	mu      sync.Mutex
	total   int
	success int
	failed  int
	errors  []string
	seen    map[string]struct{}
}

func newReportCollector(total int) *reportCollector {
	return &reportCollector{total: total, seen: make(map[string]struct{})}
}

func (c *reportCollector) succeed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.success++
}

// fail records err. Approval errors share a single report entry since they
// are identical for every reference.
func (c *reportCollector) fail(id uuid.UUID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++

	msg := fmt.Sprintf("%s: %s", id, err.Error())
	if errors.Is(err, domain.ErrFeatureRequiresApproval) {
		msg = domain.ErrFeatureRequiresApproval.Message
	}
	if _, dup := c.seen[msg]; dup {
		return
	}
	c.seen[msg] = struct{}{}
	c.errors = append(c.errors, msg)
}

func (c *reportCollector) progress() domain.RegenerationProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.RegenerationProgress{
		Processed: c.success + c.failed,
		Total:     c.total,
		Success:   c.success,
		Failed:    c.failed,
	}
}

func (c *reportCollector) report(d time.Duration) *domain.RegenerationReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]string, len(c.errors))
	copy(errs, c.errors)
	return &domain.RegenerationReport{
		Total:    c.total,
		Success:  c.success,
		Failed:   c.failed,
		Errors:   errs,
		Duration: d,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
