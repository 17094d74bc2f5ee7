package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
)

// ErrMalformedReference reports a locator whose final path segment is not a
// non-negative integer id.
var ErrMalformedReference = errors.New("malformed media reference")

// StateReader exposes the pending flag of a stored item.
type StateReader interface {
	PendingState(ctx context.Context, loc mediastore.Locator) (pending bool, found bool, err error)
}

// Probe reports item readiness from a single store lookup.
type Probe struct {
	store  StateReader
	logger *slog.Logger
}

// NewProbe constructs a probe over store.
func NewProbe(store StateReader, logger *slog.Logger) *Probe {
	return &Probe{store: store, logger: logging.NewComponentLogger(logger, "readiness")}
}

// IsReady reports whether loc refers to an existing item whose pending flag is
// clear. Lookup failures and missing items read as not ready.
func (p *Probe) IsReady(ctx context.Context, loc mediastore.Locator) bool {
	pending, found, err := p.store.PendingState(ctx, loc)
	if err != nil {
		p.logger.Debug("readiness probe failed",
			logging.String(logging.FieldLocator, loc.String()),
			logging.Error(err),
		)
		return false
	}
	if !found {
		p.logger.Debug("readiness probe found no item", logging.String(logging.FieldLocator, loc.String()))
		return false
	}
	return !pending
}

// IDOf extracts the numeric id from loc.
func (p *Probe) IDOf(loc mediastore.Locator) (int64, error) {
	return IDOf(loc)
}

// IDOf extracts the numeric id from loc without a store.
func IDOf(loc mediastore.Locator) (int64, error) {
	id, ok := mediastore.ParseID(loc)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReference, loc)
	}
	return id, nil
}
