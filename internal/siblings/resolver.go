package siblings

import (
	"context"
	"log/slog"

	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
)

// DefaultLimit is the discovery ceiling used when none is configured.
const DefaultLimit = 42

// Catalog is the store surface the resolver reads.
type Catalog interface {
	Lookup(ctx context.Context, id int64) (mediastore.Record, bool, error)
	GroupKey(ctx context.Context, loc mediastore.Locator) (int64, bool, error)
	Group(ctx context.Context, key int64, limit int) ([]mediastore.Record, error)
}

// Resolver produces sibling lists.
type Resolver struct {
	catalog Catalog
	limit   int
	logger  *slog.Logger
}

// NewResolver constructs a resolver. A non-positive limit selects DefaultLimit.
func NewResolver(catalog Catalog, limit int, logger *slog.Logger) *Resolver {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Resolver{
		catalog: catalog,
		limit:   limit,
		logger:  logging.NewComponentLogger(logger, "siblings"),
	}
}

// Resolve returns the siblings of anchor. A non-nil explicitIDs selects
// explicit mode, which keeps the given order and keeps ids that could not be
// looked up as unknown, not-ready entries. Negative ids are dropped. Otherwise the anchor's capture
// group is queried newest first. Store failures fall back to [anchor]; only
// context cancellation is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, anchor items.Media, explicitIDs []int64) ([]items.Media, error) {
	if explicitIDs != nil {
		return r.resolveExplicit(ctx, explicitIDs)
	}
	return r.discover(ctx, anchor)
}

func (r *Resolver) resolveExplicit(ctx context.Context, ids []int64) ([]items.Media, error) {
	out := make([]items.Media, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		// Negative ids are reserved for non-media entries and have no locator.
		if id < 0 {
			logging.WarnWithContext(r.logger, "explicit sibling id rejected", "sibling_id_invalid",
				logging.Int64(logging.FieldItemID, id),
				logging.String(logging.FieldErrorHint, "Pass media ids of zero or more"),
				logging.String(logging.FieldImpact, "the id is left out of the review"),
			)
			continue
		}

		rec, found, err := r.catalog.Lookup(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Debug("explicit sibling lookup failed",
				logging.Int64(logging.FieldItemID, id),
				logging.Error(err),
			)
			out = append(out, unknownMedia(id))
		case !found:
			r.logger.Debug("explicit sibling not found", logging.Int64(logging.FieldItemID, id))
			out = append(out, unknownMedia(id))
		default:
			out = append(out, fromRecord(rec))
		}
	}
	return out, nil
}

func (r *Resolver) discover(ctx context.Context, anchor items.Media) ([]items.Media, error) {
	key, ok, err := r.catalog.GroupKey(ctx, anchor.Locator)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WarnWithContext(r.logger, "group key lookup failed", "sibling_discovery_failed",
			logging.Int64(logging.FieldItemID, anchor.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "only the captured item is shown"),
		)
		return []items.Media{anchor}, nil
	}
	if !ok {
		return []items.Media{anchor}, nil
	}

	records, err := r.catalog.Group(ctx, key, r.limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WarnWithContext(r.logger, "group query failed", "sibling_discovery_failed",
			logging.Int64(logging.FieldItemID, anchor.ID),
			logging.Int64("group", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "only the captured item is shown"),
		)
		return []items.Media{anchor}, nil
	}
	if len(records) == 0 {
		return []items.Media{anchor}, nil
	}

	out := make([]items.Media, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	r.logger.Debug("siblings discovered",
		logging.Int64(logging.FieldItemID, anchor.ID),
		logging.Int64("group", key),
		logging.Int("count", len(out)),
	)
	return out, nil
}

func fromRecord(rec mediastore.Record) items.Media {
	return items.Media{
		ID:       rec.ID,
		Locator:  rec.Locator(),
		MimeType: rec.MimeType,
		Ready:    !rec.Pending,
	}
}

func unknownMedia(id int64) items.Media {
	return items.Media{ID: id, Locator: mediastore.LocatorFor(id, "")}
}
