package data

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Vertical is a top-level marketplace segment. Every category tree and
// every ad record belongs to exactly one vertical.
type Vertical string

const (
	VerticalItems        Vertical = "items"
	VerticalPreloved     Vertical = "preloved"
	VerticalCollectibles Vertical = "collectibles"
	VerticalDeals        Vertical = "deals"
	VerticalServices     Vertical = "services"
	VerticalCompanies    Vertical = "companies"
)

// Valid reports whether v is a known vertical.
func (v Vertical) Valid() bool {
	switch v {
	case VerticalItems, VerticalPreloved, VerticalCollectibles,
		VerticalDeals, VerticalServices, VerticalCompanies:
		return true
	}
	return false
}

// FieldType is the data type of an attribute field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldSelect  FieldType = "select"
	FieldBoolean FieldType = "boolean"
)

// AttributeField is a typed filter/attribute declared on a category node.
// Options is only meaningful for select fields.
type AttributeField struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Options []string  `json:"options,omitempty"`
}

// FieldList is the ordered set of attribute fields declared directly on a
// node, stored as a JSON column.
type FieldList []AttributeField

// Value implements driver.Valuer so a FieldList can be written by sqlx.
func (f FieldList) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal field list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner so a FieldList can be read by sqlx.
func (f *FieldList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported field list source type %T", src)
	}
}

// CategoryNode is one entry in a vertical's category tree. A nil ParentID
// marks a root node.
type CategoryNode struct {
	ID        string    `db:"id" json:"id"`
	Vertical  Vertical  `db:"vertical" json:"vertical"`
	Name      string    `db:"name" json:"name"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	Fields    FieldList `db:"fields" json:"fields"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// State is the lifecycle state of an ad-like subject.
type State string

const (
	StateDraft             State = "draft"
	StatePendingApproval   State = "pending_approval"
	StateApproved          State = "approved"
	StatePublished         State = "published"
	StateUnpublished       State = "unpublished"
	StateRejected          State = "rejected"
	StateExpired           State = "expired"
	StateNeedsModification State = "needs_modification"
)

// Terminal reports whether no further transitions are possible from s.
// A new ad must be created to re-list.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateRejected
}

// LifecycleEnvelope holds the state-machine columns shared by every
// subject kind. Records embed it so the lifecycle engine can treat ads
// and company profiles uniformly.
type LifecycleEnvelope struct {
	ID             string          `db:"id" json:"id"`
	OwnerUserID    string          `db:"owner_user_id" json:"owner_user_id"`
	Vertical       Vertical        `db:"vertical" json:"vertical"`
	SubVertical    string          `db:"sub_vertical" json:"sub_vertical"`
	CategoryNodeID string          `db:"category_node_id" json:"category_node_id"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	State          State           `db:"state" json:"state"`
	IsFeatured     bool            `db:"is_featured" json:"is_featured"`
	FeaturedExpiry *time.Time      `db:"featured_expiry" json:"featured_expiry,omitempty"`
	IsPromoted     bool            `db:"is_promoted" json:"is_promoted"`
	PromotedExpiry *time.Time      `db:"promoted_expiry" json:"promoted_expiry,omitempty"`
	IsRefreshed    bool            `db:"is_refreshed" json:"is_refreshed"`
	RefreshExpiry  *time.Time      `db:"refresh_expiry" json:"refresh_expiry,omitempty"`
	ExpiryDate     *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ModifiedAt     time.Time       `db:"modified_at" json:"modified_at"`
	Version        int64           `db:"version" json:"version"`
}

// SubjectID returns the record id.
func (e *LifecycleEnvelope) SubjectID() string { return e.ID }

// OwnerID returns the owning user id.
func (e *LifecycleEnvelope) OwnerID() string { return e.OwnerUserID }

// CurrentState returns the lifecycle state.
func (e *LifecycleEnvelope) CurrentState() State { return e.State }

// SubjectVertical returns the vertical the record belongs to.
func (e *LifecycleEnvelope) SubjectVertical() Vertical { return e.Vertical }

// CategoryNode returns the id of the category the record was filed under.
func (e *LifecycleEnvelope) CategoryNode() string { return e.CategoryNodeID }

// SetState applies a new lifecycle state and bumps ModifiedAt.
func (e *LifecycleEnvelope) SetState(s State, now time.Time) {
	e.State = s
	e.ModifiedAt = now
}

// Touch bumps ModifiedAt without changing state.
func (e *LifecycleEnvelope) Touch(now time.Time) {
	e.ModifiedAt = now
}

// SetFeatured marks the record featured until the given expiry.
func (e *LifecycleEnvelope) SetFeatured(until time.Time) {
	e.IsFeatured = true
	e.FeaturedExpiry = &until
}

// SetPromoted marks the record promoted until the given expiry.
func (e *LifecycleEnvelope) SetPromoted(until time.Time) {
	e.IsPromoted = true
	e.PromotedExpiry = &until
}

// SetRefreshed marks the record refreshed until the given expiry.
func (e *LifecycleEnvelope) SetRefreshed(until time.Time) {
	e.IsRefreshed = true
	e.RefreshExpiry = &until
}

// Normalize applies the time-derived invariants as of now: featured,
// promoted and refreshed flags fall once their expiry passes, a
// non-terminal record whose expiry date has passed becomes expired, and
// the flags hold only while the record is published. It returns true if
// anything changed, so read paths can decide whether a write-back is
// worthwhile. No API response may ever carry a flag that is true
// alongside an expiry in the past or a state other than published.
func (e *LifecycleEnvelope) Normalize(now time.Time) bool {
	changed := false
	if e.IsFeatured && e.FeaturedExpiry != nil && now.After(*e.FeaturedExpiry) {
		e.IsFeatured = false
		changed = true
	}
	if e.IsPromoted && e.PromotedExpiry != nil && now.After(*e.PromotedExpiry) {
		e.IsPromoted = false
		changed = true
	}
	if e.IsRefreshed && e.RefreshExpiry != nil && now.After(*e.RefreshExpiry) {
		e.IsRefreshed = false
		changed = true
	}
	if !e.State.Terminal() && e.ExpiryDate != nil && now.After(*e.ExpiryDate) {
		e.State = StateExpired
		changed = true
	}
	if e.State != StatePublished && (e.IsFeatured || e.IsPromoted || e.IsRefreshed) {
		e.IsFeatured = false
		e.IsPromoted = false
		e.IsRefreshed = false
		changed = true
	}
	return changed
}

// AdRecord is the lifecycle envelope shared by every ad-like entity:
// classified item, preloved ad, collectible, deal or service ad. The
// vertical-specific payload is opaque to the engines.
type AdRecord struct {
	LifecycleEnvelope
}

// VerificationStatus is the company verification axis, independent of the
// lifecycle state.
type VerificationStatus string

const (
	VerificationPending     VerificationStatus = "pending"
	VerificationApproved    VerificationStatus = "approved"
	VerificationNeedChanges VerificationStatus = "need_changes"
	VerificationRejected    VerificationStatus = "rejected"
)

// Valid reports whether s is a known verification status.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved,
		VerificationNeedChanges, VerificationRejected:
		return true
	}
	return false
}

// CompanyRecord is the same envelope applied to a company profile, with
// the independent verification axis on top.
type CompanyRecord struct {
	LifecycleEnvelope
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
}

// SetVerification applies a new verification decision and bumps ModifiedAt.
func (c *CompanyRecord) SetVerification(status VerificationStatus, now time.Time) {
	c.VerificationStatus = status
	c.ModifiedAt = now
}
