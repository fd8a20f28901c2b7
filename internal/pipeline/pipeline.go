package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/observability"
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Processor reconciles one raw message. Errors wrapping ErrMalformedReport
// are permanent; any other error is retried.
type Processor interface {
	Process(ctx context.Context, raw domain.RawMessage) (domain.OutcomeMessage, error)
}

// BatchLoader publishes reconciliation outcomes.
type BatchLoader interface {
	LoadBatch(ctx context.Context, outcomes []domain.OutcomeMessage) error
}

// Pipeline runs the extract-reconcile-publish loop.
type Pipeline struct {
	extractor BatchExtractor
	processor Processor
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, p Processor, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		processor: p,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the source has answered a fetch, even with
// an empty batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-reconcile-publish cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.ready.Store(true)
	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := p.reconcileAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	}
	return true
}

// reconcileAndLoad reconciles each message, publishes the outcomes and
// commits offsets. Malformed messages are committed and skipped. Returns the
// number of published outcomes and false if the pipeline should stop.
func (p *Pipeline) reconcileAndLoad(ctx context.Context, rawBatch []domain.RawMessage, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	outBatch := make([]domain.OutcomeMessage, 0, len(rawBatch))
	reconciled := make([]domain.RawMessage, 0, len(rawBatch))

	for _, raw := range rawBatch {
		out, skip, ok := p.reconcile(ctx, raw, backoff, maxBackoff)
		if !ok {
			return 0, false
		}
		if skip {
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, out)
		reconciled = append(reconciled, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}

	// Reports are already reconciled; keep retrying the publish rather than
	// dropping outcomes.
	for {
		err := p.loader.LoadBatch(ctx, outBatch)
		if err == nil {
			break
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch))
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return 0, false
		}
	}

	p.metrics.MessagesProduced.Add(float64(len(outBatch)))

	for _, raw := range reconciled {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), true
}

// reconcile processes one message, retrying transient failures with backoff.
func (p *Pipeline) reconcile(ctx context.Context, raw domain.RawMessage, backoff *time.Duration, maxBackoff time.Duration) (out domain.OutcomeMessage, skip, ok bool) {
	for {
		out, err := p.processor.Process(ctx, raw)
		if err == nil {
			return out, false, true
		}
		if errors.Is(err, ErrMalformedReport) {
			p.logger.Warn("malformed report, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ProcessingErrors.Inc()
			return domain.OutcomeMessage{}, true, true
		}
		p.logger.Error("reconcile failed, retrying",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return domain.OutcomeMessage{}, false, false
		}
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
