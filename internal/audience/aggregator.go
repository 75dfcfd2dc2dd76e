package audience

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxConcurrent bounds the per-segment resolution fan-out.
const DefaultMaxConcurrent = 4

// ErrAggregationFailed is returned when every targeted segment failed
// to resolve. Distinct from zero reach, which is a valid empty result:
// the send pipeline must refuse to proceed on this error.
var ErrAggregationFailed = errors.New("audience aggregation failed for all segments")

// SegmentResolver is the per-segment resolution dependency of the
// aggregator. Satisfied by *Resolver.
type SegmentResolver interface {
	Resolve(ctx context.Context, tenantID, segmentID uuid.UUID) (*SegmentAudience, error)
}

// Aggregator resolves a campaign's target segments concurrently,
// unions the results and deduplicates subscribers so each recipient
// receives exactly one delivery.
type Aggregator struct {
	resolver      SegmentResolver
	maxConcurrent int
}

// NewAggregator creates an aggregator around the given resolver.
func NewAggregator(resolver SegmentResolver, maxConcurrent int) *Aggregator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Aggregator{resolver: resolver, maxConcurrent: maxConcurrent}
}

// AggregateForCampaign resolves each segment with a bounded fan-out,
// then joins and deduplicates in input order so the first-seen
// tie-break is deterministic. Inactive and individually failing
// segments are skipped with a logged breakdown entry; one bad segment
// never blocks the whole campaign. Empty input yields zero reach.
func (a *Aggregator) AggregateForCampaign(ctx context.Context, tenantID uuid.UUID, segmentIDs []uuid.UUID) (*CampaignAudience, error) {
	result := &CampaignAudience{
		UniqueSubscribers: []SubscriberRef{},
		Breakdown:         []SegmentContribution{},
		ResolvedAt:        time.Now(),
	}
	if len(segmentIDs) == 0 {
		return result, nil
	}

	audiences := make([]*SegmentAudience, len(segmentIDs))
	errs := make([]error, len(segmentIDs))

	sem := make(chan struct{}, a.maxConcurrent)
	var wg sync.WaitGroup

	for i, segmentID := range segmentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, id uuid.UUID) {
				defer wg.Done()
				defer func() { <-sem }()
				audiences[i], errs[i] = a.resolver.Resolve(ctx, tenantID, id)
			}(i, segmentID)
		}
	}
	wg.Wait()

	seen := make(map[uuid.UUID]struct{})
	failed := 0

	for i, segmentID := range segmentIDs {
		if errs[i] != nil {
			log.Printf("[Aggregator] skipping segment %s: %v", segmentID, errs[i])
			failed++
			result.Breakdown = append(result.Breakdown, SegmentContribution{
				SegmentID: segmentID,
				Skipped:   true,
				Reason:    errs[i].Error(),
			})
			continue
		}

		audience := audiences[i]
		if audience.Inactive {
			result.Breakdown = append(result.Breakdown, SegmentContribution{
				SegmentID:   segmentID,
				SegmentName: audience.SegmentName,
				Skipped:     true,
				Reason:      "segment is inactive",
			})
			continue
		}

		result.Breakdown = append(result.Breakdown, SegmentContribution{
			SegmentID:   segmentID,
			SegmentName: audience.SegmentName,
			Count:       len(audience.Subscribers),
		})
		result.TotalRawCount += len(audience.Subscribers)

		for _, ref := range audience.Subscribers {
			if _, dup := seen[ref.ID]; dup {
				continue
			}
			seen[ref.ID] = struct{}{}
			result.UniqueSubscribers = append(result.UniqueSubscribers, ref)
		}
	}

	if failed == len(segmentIDs) {
		return nil, ErrAggregationFailed
	}

	log.Printf("[Aggregator] tenant %s: %d contributions across %d segments, %d unique",
		tenantID, result.TotalRawCount, len(segmentIDs), len(result.UniqueSubscribers))

	return result, nil
}
