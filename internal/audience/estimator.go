package audience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Estimator produces live reach counts for condition lists being
// authored. Pure read against the store; cheap enough to be called on
// every editor change (debouncing is the caller's responsibility).
type Estimator struct {
	store     *Store
	assembler *Assembler
	cache     *redis.Client
	cacheTTL  time.Duration
}

// NewEstimator creates an estimator without caching.
func NewEstimator(store *Store, assembler *Assembler) *Estimator {
	return &Estimator{store: store, assembler: assembler}
}

// WithCache enables a short-lived Redis count cache. Keys include the
// tenant id and the full condition list hash, so segments with
// different conditions can never share an entry.
func (e *Estimator) WithCache(client *redis.Client, ttl time.Duration) *Estimator {
	e.cache = client
	e.cacheTTL = ttl
	return e
}

// Estimate counts the tenant's active subscribers matching the
// condition list. On store failure it returns a zero count alongside
// the error so UI callers can render "0" plus an inline notice.
func (e *Estimator) Estimate(ctx context.Context, tenantID uuid.UUID, conditions []Condition) (*EstimateResult, error) {
	pred := e.assembler.Assemble(tenantID, uuid.Nil, conditions)

	result := &EstimateResult{
		Skipped:      pred.Skipped,
		CalculatedAt: time.Now(),
	}

	cacheKey := estimateCacheKey(tenantID, conditions)
	if e.cache != nil {
		if cached, err := e.cache.Get(ctx, cacheKey).Result(); err == nil {
			if count, err := strconv.Atoi(cached); err == nil {
				result.Count = count
				result.CacheHit = true
				return result, nil
			}
		}
	}

	count, err := e.store.CountSubscribers(ctx, pred)
	if err != nil {
		return result, err
	}
	result.Count = count

	if e.cache != nil {
		if err := e.cache.Set(ctx, cacheKey, strconv.Itoa(count), e.cacheTTL).Err(); err != nil {
			log.Printf("[Estimator] cache write failed for tenant %s: %v", tenantID, err)
		}
	}

	return result, nil
}

// EstimateSegment estimates a persisted segment's reach and refreshes
// its stored display count. The stored count is never authoritative;
// resolution always re-queries.
func (e *Estimator) EstimateSegment(ctx context.Context, tenantID, segmentID uuid.UUID) (*EstimateResult, error) {
	segment, err := e.store.GetSegment(ctx, tenantID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	if segment == nil {
		return nil, ErrSegmentNotFound
	}

	result, err := e.Estimate(ctx, tenantID, segment.Conditions)
	if err != nil {
		return result, err
	}

	if err := e.store.UpdateSegmentEstimate(ctx, segmentID, result.Count); err != nil {
		// Display cache only; stale counts are acceptable.
		log.Printf("[Estimator] failed to store estimate for segment %s: %v", segmentID, err)
	}

	return result, nil
}

// estimateCacheKey hashes the tenant id plus the canonical condition
// list JSON.
func estimateCacheKey(tenantID uuid.UUID, conditions []Condition) string {
	payload := struct {
		TenantID   uuid.UUID   `json:"tenant_id"`
		Conditions []Condition `json:"conditions"`
	}{tenantID, conditions}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return "audience:estimate:" + hex.EncodeToString(sum[:])
}
