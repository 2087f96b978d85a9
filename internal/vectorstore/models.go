// Package vectorstore implements tenant-scoped persistence of entities,
// interactions, user profiles, and the interaction-type registry, plus
// approximate nearest-neighbor search over feature/preference vectors.
package vectorstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultDimension is the feature/preference vector width used when a
// tenant does not override it.
const DefaultDimension = 512

// AttributeKind tags the concrete type held by an AttributeValue.
type AttributeKind string

const (
	AttributeString     AttributeKind = "string"
	AttributeNumber     AttributeKind = "number"
	AttributeBool       AttributeKind = "bool"
	AttributeStringList AttributeKind = "string_list"
)

// AttributeValue is a tagged union over the four attribute kinds an
// Entity may carry, stored as jsonb.
type AttributeValue struct {
	Kind       AttributeKind `json:"kind"`
	String     string        `json:"string,omitempty"`
	Number     float64       `json:"number,omitempty"`
	Bool       bool          `json:"bool,omitempty"`
	StringList []string      `json:"string_list,omitempty"`
}

func StringValue(s string) AttributeValue { return AttributeValue{Kind: AttributeString, String: s} }
func NumberValue(n float64) AttributeValue {
	return AttributeValue{Kind: AttributeNumber, Number: n}
}
func BoolValue(b bool) AttributeValue { return AttributeValue{Kind: AttributeBool, Bool: b} }
func StringListValue(list []string) AttributeValue {
	return AttributeValue{Kind: AttributeStringList, StringList: list}
}

// AttributeBag is the finite mapping from attribute name to value that
// describes an Entity.
type AttributeBag map[string]AttributeValue

// Value implements driver.Valuer so an AttributeBag stores as jsonb.
func (b AttributeBag) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner.
func (b *AttributeBag) Scan(src interface{}) error {
	if src == nil {
		*b = AttributeBag{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported scan type %T for AttributeBag", src)
	}
	if len(raw) == 0 {
		*b = AttributeBag{}
		return nil
	}
	return json.Unmarshal(raw, b)
}

// StringMap is a string→string map stored as jsonb, used for Interaction
// metadata.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(src interface{}) error {
	if src == nil {
		*m = StringMap{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported scan type %T for StringMap", src)
	}
	if len(raw) == 0 {
		*m = StringMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Vector is a fixed-dimension float32 slice stored in a pgvector column.
// It round-trips through the `[v1,v2,...]` text representation pgvector
// both accepts and emits.
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return FormatPgVector(v), nil
}

func (v *Vector) Scan(src interface{}) error {
	if src == nil {
		*v = nil
		return nil
	}
	var raw string
	switch s := src.(type) {
	case []byte:
		raw = string(s)
	case string:
		raw = s
	default:
		return fmt.Errorf("unsupported scan type %T for Vector", src)
	}
	parsed, err := ParsePgVector(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Entity is a tenant-scoped, typed item the recommendation engines score
// candidates against. (tenant_id, entity_id, entity_type) is unique.
type Entity struct {
	TenantID      string       `db:"tenant_id" json:"tenant_id"`
	EntityID      string       `db:"entity_id" json:"entity_id"`
	EntityType    string       `db:"entity_type" json:"entity_type"`
	Attributes    AttributeBag `db:"attributes" json:"attributes"`
	FeatureVector Vector       `db:"feature_vector" json:"feature_vector,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Interaction records a single user→entity event. The dedup key is
// (tenant_id, user_id, entity_id, interaction_type, ts). EntityType is
// denormalized at write time (see DESIGN.md, "entity-type
// denormalization") so neighbor aggregation never has to resolve it via
// a secondary lookup.
type Interaction struct {
	TenantID        string    `db:"tenant_id" json:"tenant_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	EntityID        string    `db:"entity_id" json:"entity_id"`
	EntityType      string    `db:"entity_type" json:"entity_type"`
	InteractionType string    `db:"interaction_type" json:"interaction_type"`
	Weight          float32   `db:"weight" json:"weight"`
	Metadata        StringMap `db:"metadata" json:"metadata,omitempty"`
	Timestamp       time.Time `db:"ts" json:"timestamp"`
}

// UserProfile holds a user's derived preference vector, regenerable from
// the interaction stream.
type UserProfile struct {
	TenantID          string    `db:"tenant_id" json:"tenant_id"`
	UserID            string    `db:"user_id" json:"user_id"`
	PreferenceVector  Vector    `db:"preference_vector" json:"preference_vector,omitempty"`
	InteractionCount  int       `db:"interaction_count" json:"interaction_count"`
	LastInteractionAt time.Time `db:"last_interaction_at" json:"last_interaction_at"`
}

// RegisteredInteractionType overrides the built-in weight for a named
// interaction type, per tenant.
type RegisteredInteractionType struct {
	TenantID        string  `db:"tenant_id" json:"tenant_id"`
	InteractionType string  `db:"interaction_type" json:"interaction_type"`
	Weight          float32 `db:"weight" json:"weight"`
	Description     string  `db:"description" json:"description,omitempty"`
}

// TrendingStat is a computed (entity_id, entity_type) → summed-weight
// row, aggregated over the trending window. Never persisted as a
// first-class table; produced on demand and cached.
type TrendingStat struct {
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	WeightSum  float64 `json:"weight_sum"`
}

// EntityRef identifies an entity without its attributes or vector, used
// by the bulk-listing queries the model updater scans.
type EntityRef struct {
	EntityID   string `db:"entity_id" json:"entity_id"`
	EntityType string `db:"entity_type" json:"entity_type"`
}

// Scored pairs an entity with a similarity or recommendation score in
// [-1, 1] (cosine) or [0, 1] (normalized recommendation score).
type Scored[T any] struct {
	Item  T
	Score float64
}

// Built-in interaction type default weights, overridden per tenant by
// RegisteredInteractionType.
const (
	WeightView       = 1.0
	WeightAddToCart  = 3.0
	WeightPurchase   = 5.0
	WeightLike       = 2.0
	WeightCustomBase = 1.0
)

const (
	InteractionView       = "view"
	InteractionAddToCart  = "add_to_cart"
	InteractionPurchase   = "purchase"
	InteractionLike       = "like"
	InteractionRatingPref = "rating"
)

// BuiltinWeight returns the built-in default weight for a known
// interaction type, or (0, false) if itype is not a recognized builtin
// (e.g. "rating(4)" or a custom/registered type).
func BuiltinWeight(itype string) (float32, bool) {
	switch itype {
	case InteractionView:
		return WeightView, true
	case InteractionAddToCart:
		return WeightAddToCart, true
	case InteractionPurchase:
		return WeightPurchase, true
	case InteractionLike:
		return WeightLike, true
	default:
		return 0, false
	}
}
