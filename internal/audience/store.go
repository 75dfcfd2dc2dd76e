package audience

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultStoreTimeout bounds every subscriber-store call so a wedged
// database surfaces as ErrStoreTimeout instead of a hung request.
const DefaultStoreTimeout = 10 * time.Second

// Store provides database operations for segments and the subscriber
// store. All reads are tenant-scoped; this layer never mutates
// subscriber data.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// NewStore creates a store around the given database handle.
func NewStore(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Store{db: db, timeout: timeout}
}

// wrapStoreErr maps context deadline expiry to ErrStoreTimeout and
// everything else to a StoreError.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrStoreTimeout)
	}
	return &StoreError{Op: op, Err: err}
}

// ==========================================
// SUBSCRIBER QUERIES
// ==========================================

// CountSubscribers runs the composite predicate in count mode.
func (s *Store) CountSubscribers(ctx context.Context, pred CompiledPredicate) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := "SELECT COUNT(*) FROM audience_subscribers WHERE " + pred.WhereSQL

	var count int
	if err := s.db.QueryRowContext(ctx, query, pred.Args...).Scan(&count); err != nil {
		return 0, wrapStoreErr("count subscribers", err)
	}
	return count, nil
}

// FetchSubscribers runs the composite predicate in identifier mode,
// returning subscriber ids and delivery tokens. Results are ordered by
// id so repeated resolutions are deterministic.
func (s *Store) FetchSubscribers(ctx context.Context, pred CompiledPredicate) ([]SubscriberRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := "SELECT id, push_token FROM audience_subscribers WHERE " + pred.WhereSQL + " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, pred.Args...)
	if err != nil {
		return nil, wrapStoreErr("fetch subscribers", err)
	}
	defer rows.Close()

	var refs []SubscriberRef
	for rows.Next() {
		var ref SubscriberRef
		var token sql.NullString
		if err := rows.Scan(&ref.ID, &token); err != nil {
			return nil, wrapStoreErr("scan subscriber", err)
		}
		if token.Valid {
			ref.Token = token.String
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("fetch subscribers", err)
	}

	return refs, nil
}

// ==========================================
// SEGMENT OPERATIONS
// ==========================================

// CreateSegment persists a new segment with its condition list.
func (s *Store) CreateSegment(ctx context.Context, segment *Segment) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	segment.ID = uuid.New()
	segment.CreatedAt = time.Now()
	segment.UpdatedAt = segment.CreatedAt
	if segment.SegmentType == "" {
		segment.SegmentType = SegmentDynamic
	}

	conditionsJSON, err := json.Marshal(segment.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	query := `
		INSERT INTO audience_segments (
			id, tenant_id, name, segment_type, is_active, conditions,
			estimated_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		segment.ID, segment.TenantID, segment.Name, segment.SegmentType,
		segment.IsActive, conditionsJSON, segment.EstimatedCount,
		segment.CreatedAt, segment.UpdatedAt)
	if err != nil {
		return wrapStoreErr("insert segment", err)
	}
	return nil
}

// GetSegment retrieves a segment by id, scoped to the tenant.
// Returns nil when the segment does not exist or belongs to another
// tenant.
func (s *Store) GetSegment(ctx context.Context, tenantID, segmentID uuid.UUID) (*Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, tenant_id, name, segment_type, is_active, conditions,
			estimated_count, created_at, updated_at
		FROM audience_segments
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`

	segment := &Segment{}
	var conditionsJSON []byte
	err := s.db.QueryRowContext(ctx, query, segmentID, tenantID).Scan(
		&segment.ID, &segment.TenantID, &segment.Name, &segment.SegmentType,
		&segment.IsActive, &conditionsJSON, &segment.EstimatedCount,
		&segment.CreatedAt, &segment.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("get segment", err)
	}

	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &segment.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %w", err)
		}
	}

	return segment, nil
}

// ListSegments lists a tenant's segments, newest first.
func (s *Store) ListSegments(ctx context.Context, tenantID uuid.UUID) ([]*Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, tenant_id, name, segment_type, is_active,
			estimated_count, created_at, updated_at
		FROM audience_segments
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, wrapStoreErr("list segments", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg := &Segment{}
		err := rows.Scan(&seg.ID, &seg.TenantID, &seg.Name, &seg.SegmentType,
			&seg.IsActive, &seg.EstimatedCount, &seg.CreatedAt, &seg.UpdatedAt)
		if err != nil {
			return nil, wrapStoreErr("scan segment", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("list segments", err)
	}

	return segments, nil
}

// UpdateSegment replaces a segment's name, flags and condition list.
func (s *Store) UpdateSegment(ctx context.Context, segment *Segment) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conditionsJSON, err := json.Marshal(segment.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	query := `
		UPDATE audience_segments
		SET name = $1, segment_type = $2, is_active = $3, conditions = $4,
			updated_at = NOW()
		WHERE id = $5 AND tenant_id = $6 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query,
		segment.Name, segment.SegmentType, segment.IsActive, conditionsJSON,
		segment.ID, segment.TenantID)
	if err != nil {
		return wrapStoreErr("update segment", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrSegmentNotFound
	}
	return nil
}

// DeleteSegment soft-deletes a segment.
func (s *Store) DeleteSegment(ctx context.Context, tenantID, segmentID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE audience_segments
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, segmentID, tenantID)
	if err != nil {
		return wrapStoreErr("delete segment", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrSegmentNotFound
	}
	return nil
}

// UpdateSegmentEstimate stores the last computed reach estimate. This
// is a display cache for list screens, never authoritative.
func (s *Store) UpdateSegmentEstimate(ctx context.Context, segmentID uuid.UUID, count int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE audience_segments
		SET estimated_count = $1, updated_at = NOW()
		WHERE id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, count, segmentID); err != nil {
		return wrapStoreErr("update segment estimate", err)
	}
	return nil
}
