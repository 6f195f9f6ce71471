package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"book-circulation/core/queue"
	"book-circulation/core/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	pathInline     = "inline"
	pathDispatched = "dispatched"
)

// Dispatcher routes a checkout either to one bulk update or to the task queue.
type Dispatcher struct {
	controller   *Controller
	executor     queue.Executor
	threshold    int
	awaitTimeout time.Duration
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewDispatcher creates a Dispatcher. awaitTimeout bounds the wait for
// dispatched tasks; zero or less means thirty seconds.
func NewDispatcher(controller *Controller, executor queue.Executor, awaitTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if awaitTimeout <= 0 {
		awaitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		controller:   controller,
		executor:     executor,
		threshold:    DispatchThreshold,
		awaitTimeout: awaitTimeout,
		tracer:       otel.Tracer("book-circulation/lending"),
		logger:       logger,
	}
}

// Checkout holds as many of rawIDs as possible for holderID.
// Ids are canonicalized and deduplicated; malformed ids are reported as not processed.
// Fewer than DispatchThreshold valid ids run inline, otherwise one task per
// candidate is submitted to the executor.
func (d *Dispatcher) Checkout(ctx context.Context, holderID string, rawIDs []string) (Partition, error) {
	valid, malformed := normalizeIDs(rawIDs)

	path := pathInline
	if len(valid) >= d.threshold {
		path = pathDispatched
	}

	ctx, span := d.tracer.Start(ctx, "lending.checkout",
		trace.WithAttributes(
			attribute.String("holder.id", holderID),
			attribute.Int("items.requested", len(rawIDs)),
			attribute.Int("items.valid", len(valid)),
			attribute.String("checkout.path", path),
		))
	defer span.End()

	outcomes := make([]Outcome, 0, len(valid)+len(malformed))
	for _, id := range malformed {
		outcomes = append(outcomes, NotProcessed(id, ReasonMalformedID))
	}

	var (
		results []Outcome
		pending []string
		err     error
	)
	if path == pathInline {
		results, err = d.controller.CheckoutMany(ctx, valid, holderID)
	} else {
		results, pending, err = d.dispatch(ctx, valid, holderID)
	}
	outcomes = append(results, outcomes...)

	if len(pending) > 0 {
		terr := &DispatchTimeoutError{Partial: Aggregate(outcomes), Pending: pending, Timeout: d.awaitTimeout}
		span.RecordError(terr)
		span.SetStatus(codes.Error, "dispatch timeout")
		return Partition{}, terr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Partition{}, err
	}

	p := Aggregate(outcomes)
	span.SetAttributes(
		attribute.Int("items.processed", len(p.ProcessedIDs)),
		attribute.Int("items.not_processed", len(p.NotProcessedIDs)),
	)
	d.logger.Debug("Checkout partitioned",
		zap.String("holder_id", holderID),
		zap.String("path", path),
		zap.Int("processed", len(p.ProcessedIDs)),
		zap.Int("not_processed", len(p.NotProcessedIDs)))
	return p, nil
}

// dispatch submits one task per candidate and awaits them all under the
// await timeout. On timeout it returns the outcomes received so far and the
// ids still pending, with a nil error.
func (d *Dispatcher) dispatch(ctx context.Context, itemIDs []string, holderID string) ([]Outcome, []string, error) {
	candidates, err := d.controller.Candidates(ctx, itemIDs)
	if err != nil {
		return nil, nil, err
	}

	isCandidate := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		isCandidate[id] = struct{}{}
	}
	outcomes := make([]Outcome, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := isCandidate[id]; !ok {
			outcomes = append(outcomes, NotProcessed(id, ReasonUnavailable))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.awaitTimeout)
	defer cancel()

	// Tasks outlive the wait: a task already running commits or not on its own.
	submitCtx := context.WithoutCancel(ctx)

	results := make([]*Outcome, len(candidates))
	g, gctx := errgroup.WithContext(waitCtx)
	for i, id := range candidates {
		i, id := i, id
		h, err := d.executor.Submit(submitCtx, queue.Task{ItemID: id, HolderID: holderID})
		if err != nil {
			cancel()
			_ = g.Wait()
			return nil, nil, fmt.Errorf("failed to submit task %s: %w", id, err)
		}
		g.Go(func() error {
			res, err := h.Await(gctx)
			if err != nil {
				return fmt.Errorf("task %s: %w", id, err)
			}
			o := NotProcessed(id, res.Reason)
			if res.Processed {
				o = Processed(id)
			}
			results[i] = &o
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			var pending []string
			for i, r := range results {
				if r == nil {
					pending = append(pending, candidates[i])
					continue
				}
				outcomes = append(outcomes, *r)
			}
			d.logger.Warn("Checkout dispatch timed out",
				zap.String("holder_id", holderID),
				zap.Duration("timeout", d.awaitTimeout),
				zap.Strings("pending", pending))
			return outcomes, pending, nil
		}
		return nil, nil, err
	}

	for _, r := range results {
		outcomes = append(outcomes, *r)
	}
	return outcomes, nil, nil
}

// normalizeIDs canonicalizes and deduplicates raw ids, keeping first-seen order.
// Unparsable strings are deduplicated verbatim.
func normalizeIDs(raw []string) (valid, malformed []string) {
	valid = make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	seenBad := make(map[string]struct{})
	for _, r := range raw {
		id, ok := utils.CanonicalID(r)
		if !ok {
			if _, dup := seenBad[r]; !dup {
				seenBad[r] = struct{}{}
				malformed = append(malformed, r)
			}
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}
	return valid, malformed
}
