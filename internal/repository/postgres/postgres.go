package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/pkg/utils"
)

// DB is the subset of *pgxpool.Pool used by the repository
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresRepository implements domain.CollisionRepository and domain.IngestRepository
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// collisionFilter builds the WHERE clause of a collision listing
func collisionFilter(q domain.CollisionQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.Location != "" {
		conds = append(conds, "tc.location ILIKE "+bind(utils.ContainsPattern(q.Location)))
	}
	if q.Severity != "" {
		conds = append(conds, "s.description ILIKE "+bind(utils.ContainsPattern(q.Severity)))
	}
	if q.StartDate != nil {
		conds = append(conds, "tc.occurred_at >= "+bind(*q.StartDate))
	}
	if q.EndDate != nil {
		conds = append(conds, "tc.occurred_at <= "+bind(*q.EndDate))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListCollisions returns one page of collisions, newest first
func (r *PostgresRepository) ListCollisions(ctx context.Context, q domain.CollisionQuery) (domain.CollisionPage, error) {
	where, args := collisionFilter(q)
	page := domain.CollisionPage{Limit: q.Limit, Offset: q.Offset, Items: []domain.CollisionListItem{}}

	countQuery := `
		SELECT COUNT(*)
		FROM traffic_collisions tc
		LEFT JOIN severity s ON s.id = tc.severity_id` + where

	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("postgres: failed to count collisions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT tc.id, tc.inc_key, tc.location, tc.occurred_at,
			   tc.person_count, tc.ped_count, tc.pedcyl_count, tc.veh_count,
			   tc.injuries, tc.serious_injuries, tc.fatalities,
			   tc.severity_id, tc.collision_type_id,
			   s.code, s.description, ct.name
		FROM traffic_collisions tc
		LEFT JOIN severity s ON s.id = tc.severity_id
		LEFT JOIN collision_type ct ON ct.id = tc.collision_type_id%s
		ORDER BY tc.occurred_at DESC, tc.id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return page, fmt.Errorf("postgres: failed to query collisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c           domain.CollisionListItem
			sevCode     *string
			sevDesc     *string
			colTypeName *string
		)
		err := rows.Scan(
			&c.ID, &c.IncKey, &c.Location, &c.OccurredAt,
			&c.PersonCount, &c.PedCount, &c.PedcylCount, &c.VehCount,
			&c.Injuries, &c.SeriousInjuries, &c.Fatalities,
			&c.SeverityID, &c.CollisionTypeID,
			&sevCode, &sevDesc, &colTypeName,
		)
		if err != nil {
			return page, fmt.Errorf("postgres: failed to scan collision row: %w", err)
		}
		if c.SeverityID != nil && sevCode != nil {
			c.Severity = &domain.Severity{ID: *c.SeverityID, Code: *sevCode, Desc: sevDesc}
		}
		if c.CollisionTypeID != nil && colTypeName != nil {
			c.CollisionType = &domain.NamedLookup{ID: *c.CollisionTypeID, Name: *colTypeName}
		}
		page.Items = append(page.Items, c)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("postgres: failed to iterate collisions: %w", err)
	}

	return page, nil
}

// GetCollision returns one collision with every lookup expanded
func (r *PostgresRepository) GetCollision(ctx context.Context, id int64) (domain.Collision, error) {
	query := `
		SELECT tc.id, tc.inc_key, tc.location, tc.occurred_at, tc.lon, tc.lat, tc.int_key,
			   tc.person_count, tc.ped_count, tc.pedcyl_count, tc.veh_count,
			   tc.injuries, tc.serious_injuries, tc.fatalities,
			   tc.severity_id, s.code, s.description,
			   tc.collision_type_id, ct.name,
			   tc.sdot_collision_type_id, sct.code, sct.description,
			   tc.junction_type_id, jt.name,
			   tc.light_condition_id, lc.name,
			   tc.weather_condition_id, wc.name,
			   tc.road_condition_id, rc.name,
			   tc.address_type_id, adt.name
		FROM traffic_collisions tc
		LEFT JOIN severity s ON s.id = tc.severity_id
		LEFT JOIN collision_type ct ON ct.id = tc.collision_type_id
		LEFT JOIN sdot_collision_type sct ON sct.id = tc.sdot_collision_type_id
		LEFT JOIN junction_type jt ON jt.id = tc.junction_type_id
		LEFT JOIN light_condition lc ON lc.id = tc.light_condition_id
		LEFT JOIN weather_condition wc ON wc.id = tc.weather_condition_id
		LEFT JOIN road_condition rc ON rc.id = tc.road_condition_id
		LEFT JOIN address_type adt ON adt.id = tc.address_type_id
		WHERE tc.id = $1
	`

	var (
		c                          domain.Collision
		sevCode, sevDesc           *string
		sdotCode, sdotDesc         *string
		colType, junction, light   *string
		weather, road, addressType *string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.IncKey, &c.Location, &c.OccurredAt, &c.Longitude, &c.Latitude, &c.IntKey,
		&c.PersonCount, &c.PedCount, &c.PedcylCount, &c.VehCount,
		&c.Injuries, &c.SeriousInjuries, &c.Fatalities,
		&c.SeverityID, &sevCode, &sevDesc,
		&c.CollisionTypeID, &colType,
		&c.SDOTCollisionTypeID, &sdotCode, &sdotDesc,
		&c.JunctionTypeID, &junction,
		&c.LightConditionID, &light,
		&c.WeatherConditionID, &weather,
		&c.RoadConditionID, &road,
		&c.AddressTypeID, &addressType,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("postgres: collision %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("postgres: failed to get collision: %w", err)
	}

	if c.SeverityID != nil && sevCode != nil {
		c.Severity = &domain.Severity{ID: *c.SeverityID, Code: *sevCode, Desc: sevDesc}
	}
	if c.SDOTCollisionTypeID != nil && sdotCode != nil {
		c.SDOTCollisionType = &domain.SDOTCollisionType{ID: *c.SDOTCollisionTypeID, Code: *sdotCode, Desc: sdotDesc}
	}
	c.CollisionType = namedLookup(c.CollisionTypeID, colType)
	c.JunctionType = namedLookup(c.JunctionTypeID, junction)
	c.LightCondition = namedLookup(c.LightConditionID, light)
	c.WeatherCondition = namedLookup(c.WeatherConditionID, weather)
	c.RoadCondition = namedLookup(c.RoadConditionID, road)
	c.AddressType = namedLookup(c.AddressTypeID, addressType)

	return c, nil
}

func namedLookup(id *int64, name *string) *domain.NamedLookup {
	if id == nil || name == nil {
		return nil
	}
	return &domain.NamedLookup{ID: *id, Name: *name}
}

// lookupTable describes where a lookup dimension lives
type lookupTable struct {
	table string
	coded bool // keyed by code with a description instead of a name
}

var lookupTables = map[domain.LookupKind]lookupTable{
	domain.LookupSeverities:        {table: "severity", coded: true},
	domain.LookupSDOTCollisionType: {table: "sdot_collision_type", coded: true},
	domain.LookupCollisionTypes:    {table: "collision_type"},
	domain.LookupJunctionTypes:     {table: "junction_type"},
	domain.LookupLightConditions:   {table: "light_condition"},
	domain.LookupWeatherConditions: {table: "weather_condition"},
	domain.LookupRoadConditions:    {table: "road_condition"},
	domain.LookupAddressTypes:      {table: "address_type"},
}

// ListLookups returns every row of a lookup dimension ordered by natural key
func (r *PostgresRepository) ListLookups(ctx context.Context, kind domain.LookupKind) ([]domain.LookupEntry, error) {
	lt, ok := lookupTables[kind]
	if !ok {
		return nil, fmt.Errorf("postgres: lookup %q: %w", kind, domain.ErrNotFound)
	}

	query := fmt.Sprintf("SELECT id, name FROM %s ORDER BY name ASC", lt.table)
	if lt.coded {
		query = fmt.Sprintf("SELECT id, code, description FROM %s ORDER BY code ASC", lt.table)
	}

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query %s: %w", lt.table, err)
	}
	defer rows.Close()

	results := []domain.LookupEntry{}
	for rows.Next() {
		var e domain.LookupEntry
		if lt.coded {
			err = rows.Scan(&e.ID, &e.Code, &e.Desc)
		} else {
			err = rows.Scan(&e.ID, &e.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan %s row: %w", lt.table, err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate %s: %w", lt.table, err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
