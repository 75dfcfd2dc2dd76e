package audience

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Resolver evaluates a persisted segment against the live subscriber
// store and returns the concrete matching identifiers and delivery
// tokens. Segments are always evaluated live so dynamic segments
// reflect current data; static segments get the same treatment here.
type Resolver struct {
	store     *Store
	assembler *Assembler
}

// NewResolver creates a resolver.
func NewResolver(store *Store, assembler *Assembler) *Resolver {
	return &Resolver{store: store, assembler: assembler}
}

// Resolve loads the segment, compiles its conditions and fetches the
// matching subscribers. Fails with ErrSegmentNotFound when the segment
// does not exist for this tenant. An inactive segment yields an empty
// result with a warning log; callers decide whether that is an error.
func (r *Resolver) Resolve(ctx context.Context, tenantID, segmentID uuid.UUID) (*SegmentAudience, error) {
	start := time.Now()

	segment, err := r.store.GetSegment(ctx, tenantID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	if segment == nil {
		return nil, fmt.Errorf("segment %s: %w", segmentID, ErrSegmentNotFound)
	}

	audience := &SegmentAudience{
		SegmentID:   segment.ID,
		SegmentName: segment.Name,
		ResolvedAt:  time.Now(),
	}

	if !segment.IsActive {
		log.Printf("[Resolver] segment %s (%s) is inactive, returning empty audience", segment.ID, segment.Name)
		audience.Inactive = true
		audience.DurationMs = time.Since(start).Milliseconds()
		return audience, nil
	}

	pred := r.assembler.Assemble(tenantID, segment.ID, segment.Conditions)
	audience.Skipped = pred.Skipped

	refs, err := r.store.FetchSubscribers(ctx, pred)
	if err != nil {
		return nil, err
	}
	audience.Subscribers = refs
	audience.DurationMs = time.Since(start).Milliseconds()

	// Refresh the display count while we have the real number.
	if err := r.store.UpdateSegmentEstimate(ctx, segment.ID, len(refs)); err != nil {
		log.Printf("[Resolver] failed to store count for segment %s: %v", segment.ID, err)
	}

	return audience, nil
}
