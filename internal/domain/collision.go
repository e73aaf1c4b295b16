package domain

import "time"

// Severity is the collision severity lookup (SEVERITYCODE / SEVERITYDESC)
type Severity struct {
	ID   int64   `json:"id"`
	Code string  `json:"code"`
	Desc *string `json:"desc,omitempty"`
}

// SDOTCollisionType is the SDOT collision classification lookup
type SDOTCollisionType struct {
	ID   int64   `json:"id"`
	Code string  `json:"code"`
	Desc *string `json:"desc,omitempty"`
}

// NamedLookup covers the lookups keyed by a unique name: collision type,
// junction type, light/weather/road condition and address type.
type NamedLookup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CollisionCounts holds the per-record person and injury counts.
// Every field is nullable in the source data.
type CollisionCounts struct {
	PersonCount     *int32 `json:"person_count,omitempty"`
	PedCount        *int32 `json:"ped_count,omitempty"`
	PedcylCount     *int32 `json:"pedcyl_count,omitempty"`
	VehCount        *int32 `json:"veh_count,omitempty"`
	Injuries        *int32 `json:"injuries,omitempty"`
	SeriousInjuries *int32 `json:"serious_injuries,omitempty"`
	Fatalities      *int32 `json:"fatalities,omitempty"`
}

// CollisionListItem is the lean collision shape used by list endpoints.
// Only severity and collision type are expanded.
type CollisionListItem struct {
	ID         int64     `json:"id"`
	IncKey     int64     `json:"inc_key"`
	Location   *string   `json:"location,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CollisionCounts

	SeverityID      *int64 `json:"severity_id,omitempty"`
	CollisionTypeID *int64 `json:"collision_type_id,omitempty"`

	Severity      *Severity    `json:"severity,omitempty"`
	CollisionType *NamedLookup `json:"collision_type,omitempty"`
}

// Collision is the full collision representation with every lookup expanded
type Collision struct {
	ID         int64     `json:"id"`
	IncKey     int64     `json:"inc_key"`
	Location   *string   `json:"location,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Longitude  *float64  `json:"lon,omitempty"`
	Latitude   *float64  `json:"lat,omitempty"`
	IntKey     *int64    `json:"int_key,omitempty"`
	CollisionCounts

	SeverityID          *int64 `json:"severity_id,omitempty"`
	CollisionTypeID     *int64 `json:"collision_type_id,omitempty"`
	SDOTCollisionTypeID *int64 `json:"sdot_collision_type_id,omitempty"`
	JunctionTypeID      *int64 `json:"junction_type_id,omitempty"`
	LightConditionID    *int64 `json:"light_condition_id,omitempty"`
	WeatherConditionID  *int64 `json:"weather_condition_id,omitempty"`
	RoadConditionID     *int64 `json:"road_condition_id,omitempty"`
	AddressTypeID       *int64 `json:"address_type_id,omitempty"`

	Severity          *Severity          `json:"severity,omitempty"`
	CollisionType     *NamedLookup       `json:"collision_type,omitempty"`
	SDOTCollisionType *SDOTCollisionType `json:"sdot_collision_type,omitempty"`
	JunctionType      *NamedLookup       `json:"junction_type,omitempty"`
	LightCondition    *NamedLookup       `json:"light_condition,omitempty"`
	WeatherCondition  *NamedLookup       `json:"weather_condition,omitempty"`
	RoadCondition     *NamedLookup       `json:"road_condition,omitempty"`
	AddressType       *NamedLookup       `json:"address_type,omitempty"`
}

// CollisionPage wraps a page of collisions with paging metadata
type CollisionPage struct {
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Items  []CollisionListItem `json:"items"`
}

// CodedValue is a lookup value identified by a code with an optional description
type CodedValue struct {
	Code string
	Desc string
}

// CollisionRecord is one source record as delivered by the ingestion feed.
// Lookup dimensions are carried by their natural key; empty means unknown.
type CollisionRecord struct {
	IncKey     int64
	Location   *string
	OccurredAt time.Time
	Longitude  *float64
	Latitude   *float64
	IntKey     *int64
	Counts     CollisionCounts

	Severity          *CodedValue
	SDOTCollisionType *CodedValue
	CollisionType     string
	JunctionType      string
	LightCondition    string
	WeatherCondition  string
	RoadCondition     string
	AddressType       string
}
