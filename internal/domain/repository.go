package domain

import (
	"context"
	"time"
)

// LookupKind names one of the lookup dimensions of a collision
type LookupKind string

const (
	LookupSeverities        LookupKind = "severities"
	LookupCollisionTypes    LookupKind = "collision-types"
	LookupSDOTCollisionType LookupKind = "sdot-collision-types"
	LookupJunctionTypes     LookupKind = "junction-types"
	LookupLightConditions   LookupKind = "light-conditions"
	LookupWeatherConditions LookupKind = "weather-conditions"
	LookupRoadConditions    LookupKind = "road-conditions"
	LookupAddressTypes      LookupKind = "address-types"
)

// LookupKinds lists every lookup dimension in a stable order
var LookupKinds = []LookupKind{
	LookupSeverities,
	LookupCollisionTypes,
	LookupSDOTCollisionType,
	LookupJunctionTypes,
	LookupLightConditions,
	LookupWeatherConditions,
	LookupRoadConditions,
	LookupAddressTypes,
}

// CollisionQuery narrows a collision listing
type CollisionQuery struct {
	Location  string
	Severity  string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// LookupEntry is a generic lookup row; Code is empty for name-keyed lookups
type LookupEntry struct {
	ID   int64   `json:"id"`
	Code string  `json:"code,omitempty"`
	Name string  `json:"name,omitempty"`
	Desc *string `json:"desc,omitempty"`
}

// CollisionRepository defines read access to collisions and lookups.
// The domain owns the interface; the postgres package implements it.
type CollisionRepository interface {
	// ListCollisions returns one page of collisions, newest first
	ListCollisions(ctx context.Context, q CollisionQuery) (CollisionPage, error)

	// GetCollision returns a single collision or ErrNotFound
	GetCollision(ctx context.Context, id int64) (Collision, error)

	// ListLookups returns every row of a lookup dimension ordered by natural key
	ListLookups(ctx context.Context, kind LookupKind) ([]LookupEntry, error)

	// Health checks database connectivity
	Health(ctx context.Context) error
}

// IngestRepository persists batches delivered by the ingestion feed
type IngestRepository interface {
	// IngestBatch upserts the records in one transaction and returns how many were written
	IngestBatch(ctx context.Context, records []CollisionRecord) (int, error)
}
