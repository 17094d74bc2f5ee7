package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
	"lightbox/internal/readiness"
	"lightbox/internal/siblings"
)

// Trigger describes the item that was just captured.
type Trigger struct {
	Anchor mediastore.Locator
	// ExplicitIDs lists the siblings in display order. Nil selects discovery.
	ExplicitIDs     []int64
	ContentTypeHint string
	// ActionToken resumes capture; empty selects the configured default.
	ActionToken items.ActionToken
	// Secure marks a trigger raised while the device is locked.
	Secure bool
}

// Prober reports readiness from one store lookup.
type Prober interface {
	IsReady(ctx context.Context, loc mediastore.Locator) bool
}

// Resolver lists an anchor's siblings.
type Resolver interface {
	Resolve(ctx context.Context, anchor items.Media, explicitIDs []int64) ([]items.Media, error)
}

// Waiter blocks until an item is ready.
type Waiter interface {
	AwaitReady(ctx context.Context, loc mediastore.Locator) error
}

// Tokens holds the default capture action tokens.
type Tokens struct {
	Default items.ActionToken
	Secure  items.ActionToken
}

func (t Tokens) pick(trig Trigger) items.ActionToken {
	if trig.ActionToken != "" {
		return trig.ActionToken
	}
	if trig.Secure && t.Secure != "" {
		return t.Secure
	}
	return t.Default
}

// Pipeline builds snapshot sequences.
type Pipeline struct {
	probe    Prober
	resolver Resolver
	waiter   Waiter
	tokens   Tokens
	logger   *slog.Logger
}

// New constructs a pipeline.
func New(probe Prober, resolver Resolver, waiter Waiter, tokens Tokens, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		probe:    probe,
		resolver: resolver,
		waiter:   waiter,
		tokens:   tokens,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Sequence is the lazy snapshot stream for one trigger. It can be iterated
// once.
type Sequence struct {
	p        *Pipeline
	ctx      context.Context
	trig     Trigger
	anchorID int64
	used     atomic.Bool
}

// Handle validates trig and returns its sequence. Nothing runs until the
// sequence is iterated. The anchor must carry a numeric id.
func (p *Pipeline) Handle(ctx context.Context, trig Trigger) (*Sequence, error) {
	id, err := readiness.IDOf(trig.Anchor)
	if err != nil {
		return nil, fmt.Errorf("handle trigger: %w", err)
	}
	return &Sequence{p: p, ctx: ctx, trig: trig, anchorID: id}, nil
}

// AnchorID returns the id parsed from the trigger's anchor.
func (s *Sequence) AnchorID() int64 { return s.anchorID }

// All yields the snapshots. A second call yields nothing.
func (s *Sequence) All() iter.Seq[items.Snapshot] {
	return func(yield func(items.Snapshot) bool) {
		if !s.used.CompareAndSwap(false, true) {
			return
		}
		s.run(yield)
	}
}

func (s *Sequence) run(yield func(items.Snapshot) bool) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	p := s.p
	logger := logging.WithContext(logging.WithItemID(ctx, s.anchorID), p.logger)
	action := items.CaptureAction{Token: p.tokens.pick(s.trig)}

	anchor := items.Media{
		ID:       s.anchorID,
		Locator:  s.trig.Anchor,
		MimeType: s.trig.ContentTypeHint,
		Ready:    p.probe.IsReady(ctx, s.trig.Anchor),
	}
	if !yield(items.NewSnapshot(action, anchor)) {
		return
	}

	resolved, err := p.resolver.Resolve(ctx, anchor, s.trig.ExplicitIDs)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(logger, "sibling resolution failed", "pipeline_resolve_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "only the captured item is shown"),
		)
		resolved = []items.Media{anchor}
	}
	if ctx.Err() != nil {
		return
	}

	merged := siblings.MergeAnchor(anchor, resolved)
	list := make([]items.Item, 0, len(merged)+1)
	list = append(list, action)
	for _, m := range merged {
		list = append(list, m)
	}
	working := items.NewSnapshot(list...)
	if !yield(working) {
		return
	}

	pending := working.NotReady()
	if len(pending) == 0 {
		return
	}
	logger.Debug("waiting for pending siblings", logging.Int("pending", len(pending)))

	results := s.awaitAll(ctx, logger, pending)
	defer func() {
		cancel()
		for range results {
		}
	}()

	for ready := range results {
		if ctx.Err() != nil {
			return
		}
		working = working.Replace(ready)
		if !yield(working) {
			return
		}
	}
}

// awaitAll starts one wait per pending item, newest display position last to
// start, and returns a channel that receives each item as it becomes ready.
// The channel is closed once every wait has returned.
func (s *Sequence) awaitAll(ctx context.Context, logger *slog.Logger, pending []items.Media) <-chan items.Media {
	results := make(chan items.Media, len(pending))
	group, groupCtx := errgroup.WithContext(ctx)
	for i := len(pending) - 1; i >= 0; i-- {
		m := pending[i]
		group.Go(func() error {
			if err := s.p.waiter.AwaitReady(groupCtx, m.Locator); err != nil {
				if groupCtx.Err() == nil {
					logging.WarnWithContext(logger, "readiness wait failed", "pipeline_wait_failed",
						logging.Int64("sibling_id", m.ID),
						logging.Error(err),
						logging.String(logging.FieldImpact, "item stays marked as processing"),
					)
				}
				return nil
			}
			results <- m.WithReady()
			return nil
		})
	}
	go func() {
		_ = group.Wait()
		close(results)
	}()
	return results
}
