// Package audience provides segment condition compilation and audience
// resolution for the mailing platform: declarative filter conditions are
// compiled into parameterized subscriber-store predicates, segments are
// evaluated live, and campaign audiences are unioned and deduplicated
// before dispatch.
package audience

import (
	"time"

	"github.com/google/uuid"
)

// ==========================================
// CONDITION KINDS
// ==========================================

// ConditionKind distinguishes profile-property conditions from (future)
// behavioral action conditions.
type ConditionKind string

const (
	KindProperty ConditionKind = "property"
	// KindAction is reserved for event-based conditions. The compiler
	// refuses it rather than matching anything.
	KindAction ConditionKind = "action"
)

// ==========================================
// CATEGORIES
// ==========================================

// Category selects which subscriber field(s) a condition targets.
type Category string

const (
	CategorySubscriptionDate Category = "subscription_date"
	CategoryLastSeen         Category = "last_seen"
	CategoryLocation         Category = "location"
	CategoryDeviceType       Category = "device_type"
	CategoryBrowser          Category = "browser"
	CategoryOperatingSystem  Category = "operating_system"
	CategoryLanguage         Category = "language"
	CategoryEmailDomain      Category = "email_domain"
	CategoryReferrer         Category = "referrer"
)

// ==========================================
// OPERATORS
// ==========================================

// Operator represents a comparison operator; the legal set depends on
// the condition's category.
type Operator string

const (
	// String operators
	OpIs       Operator = "is"
	OpIsNot    Operator = "is_not"
	OpContains Operator = "contains"

	// Date operators
	OpInLast      Operator = "in_last"
	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
	OpMoreThanAgo Operator = "more_than_ago"
	OpLessThanAgo Operator = "less_than_ago"

	// Device operators
	OpIsMobile  Operator = "is_mobile"
	OpIsDesktop Operator = "is_desktop"
)

// DateUnit qualifies NumberValue for the relative date operators.
// Conversion to days is calendar-naive on purpose: months are 30 days
// and years 365, matching the authoring UI's wording.
type DateUnit string

const (
	UnitDays   DateUnit = "days"
	UnitWeeks  DateUnit = "weeks"
	UnitMonths DateUnit = "months"
	UnitYears  DateUnit = "years"
)

// DayCount converts the unit to its day multiplier. Unknown units
// return 0, which the compiler rejects as incomplete.
func (u DateUnit) DayCount() int {
	switch u {
	case UnitDays:
		return 1
	case UnitWeeks:
		return 7
	case UnitMonths:
		return 30
	case UnitYears:
		return 365
	default:
		return 0
	}
}

// ==========================================
// LOGIC OPERATORS
// ==========================================

// LogicOperator states how a condition joins the running expression.
// It is ignored on the first condition of a list.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// ==========================================
// CONDITION
// ==========================================

// Condition is one declarative filter rule over a subscriber field.
// Only the value slots relevant to the chosen operator are read;
// the rest are ignored.
type Condition struct {
	ID       uuid.UUID     `json:"id" db:"id"`
	Kind     ConditionKind `json:"kind" db:"kind"`
	Category Category      `json:"category" db:"category"`
	Operator Operator      `json:"operator" db:"operator"`

	Value       string     `json:"value,omitempty" db:"value"`
	NumberValue int        `json:"number_value,omitempty" db:"number_value"`
	DateValue   *time.Time `json:"date_value,omitempty" db:"date_value"`
	DateUnit    DateUnit   `json:"date_unit,omitempty" db:"date_unit"`

	// Location slots, meaningful only for CategoryLocation.
	Country string `json:"country,omitempty" db:"country"`
	Region  string `json:"region,omitempty" db:"region"`
	City    string `json:"city,omitempty" db:"city"`

	LogicalOperator LogicOperator `json:"logical_operator,omitempty" db:"logical_operator"`
}

// ==========================================
// SEGMENT
// ==========================================

// SegmentType is informational; dynamic and static segments are both
// re-evaluated live by the resolver.
type SegmentType string

const (
	SegmentDynamic  SegmentType = "dynamic"
	SegmentStatic   SegmentType = "static"
	SegmentBehavior SegmentType = "behavior"
)

// Segment is a named, persisted collection of conditions defining
// an audience for one tenant.
type Segment struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	TenantID       uuid.UUID   `json:"tenant_id" db:"tenant_id"`
	Name           string      `json:"name" db:"name"`
	SegmentType    SegmentType `json:"segment_type" db:"segment_type"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	Conditions     []Condition `json:"conditions"`
	EstimatedCount int         `json:"estimated_count" db:"estimated_count"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// ==========================================
// RESULTS
// ==========================================

// SubscriberRef is the minimal identity the send pipeline needs:
// the subscriber id plus its delivery token.
type SubscriberRef struct {
	ID    uuid.UUID `json:"id"`
	Token string    `json:"token,omitempty"`
}

// SkippedCondition records a condition dropped during compilation,
// surfaced so the authoring UI can show an inline notice.
type SkippedCondition struct {
	ConditionID uuid.UUID `json:"condition_id"`
	Category    Category  `json:"category"`
	Reason      string    `json:"reason"`
}

// SegmentAudience is the result of resolving one segment.
type SegmentAudience struct {
	SegmentID   uuid.UUID          `json:"segment_id"`
	SegmentName string             `json:"segment_name,omitempty"`
	Subscribers []SubscriberRef    `json:"subscribers"`
	Skipped     []SkippedCondition `json:"skipped_conditions,omitempty"`
	Inactive    bool               `json:"inactive,omitempty"`
	ResolvedAt  time.Time          `json:"resolved_at"`
	DurationMs  int64              `json:"duration_ms"`
}

// SegmentContribution reports one segment's share of a campaign
// audience, before deduplication.
type SegmentContribution struct {
	SegmentID   uuid.UUID `json:"segment_id"`
	SegmentName string    `json:"segment_name,omitempty"`
	Count       int       `json:"count"`
	Skipped     bool      `json:"skipped,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// CampaignAudience is the deduplicated union across a campaign's
// target segments.
type CampaignAudience struct {
	UniqueSubscribers []SubscriberRef       `json:"unique_subscribers"`
	TotalRawCount     int                   `json:"total_raw_count"`
	Breakdown         []SegmentContribution `json:"per_segment_breakdown"`
	ResolvedAt        time.Time             `json:"resolved_at"`
}

// EstimateResult is the live reach estimate for a condition list
// being authored.
type EstimateResult struct {
	Count        int                `json:"count"`
	Skipped      []SkippedCondition `json:"skipped_conditions,omitempty"`
	CacheHit     bool               `json:"cache_hit,omitempty"`
	CalculatedAt time.Time          `json:"calculated_at"`
}
