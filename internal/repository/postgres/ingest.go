package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/roadwatch/backend/internal/domain"
)

// Lookup rows are created on first sight and never updated. The CTE returns
// the id whether the insert happened or the row already existed.
const (
	codedLookupSQL = `
		WITH ins AS (
			INSERT INTO %[1]s (code, description) VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM %[1]s WHERE code = $1
		LIMIT 1
	`
	namedLookupSQL = `
		WITH ins AS (
			INSERT INTO %[1]s (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM %[1]s WHERE name = $1
		LIMIT 1
	`
)

const upsertCollisionSQL = `
	INSERT INTO traffic_collisions (
		inc_key, location, occurred_at, lon, lat, int_key,
		person_count, ped_count, pedcyl_count, veh_count,
		injuries, serious_injuries, fatalities,
		severity_id, collision_type_id, sdot_collision_type_id, junction_type_id,
		light_condition_id, weather_condition_id, road_condition_id, address_type_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	ON CONFLICT (inc_key) DO UPDATE SET
		location = EXCLUDED.location,
		occurred_at = EXCLUDED.occurred_at,
		lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		int_key = EXCLUDED.int_key,
		person_count = EXCLUDED.person_count,
		ped_count = EXCLUDED.ped_count,
		pedcyl_count = EXCLUDED.pedcyl_count,
		veh_count = EXCLUDED.veh_count,
		injuries = EXCLUDED.injuries,
		serious_injuries = EXCLUDED.serious_injuries,
		fatalities = EXCLUDED.fatalities,
		severity_id = EXCLUDED.severity_id,
		collision_type_id = EXCLUDED.collision_type_id,
		sdot_collision_type_id = EXCLUDED.sdot_collision_type_id,
		junction_type_id = EXCLUDED.junction_type_id,
		light_condition_id = EXCLUDED.light_condition_id,
		weather_condition_id = EXCLUDED.weather_condition_id,
		road_condition_id = EXCLUDED.road_condition_id,
		address_type_id = EXCLUDED.address_type_id
`

// lookupResolver maps natural keys to surrogate ids within one transaction
type lookupResolver struct {
	tx    pgx.Tx
	cache map[string]int64
}

func (lr *lookupResolver) resolve(ctx context.Context, table, query string, args ...any) (*int64, error) {
	key := table + "\x00" + fmt.Sprint(args[0])
	if id, ok := lr.cache[key]; ok {
		return &id, nil
	}
	var id int64
	if err := lr.tx.QueryRow(ctx, fmt.Sprintf(query, table), args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("postgres: failed to resolve %s %v: %w", table, args[0], err)
	}
	lr.cache[key] = id
	return &id, nil
}

func (lr *lookupResolver) coded(ctx context.Context, table string, v *domain.CodedValue) (*int64, error) {
	if v == nil || v.Code == "" {
		return nil, nil
	}
	var desc *string
	if v.Desc != "" {
		desc = &v.Desc
	}
	return lr.resolve(ctx, table, codedLookupSQL, v.Code, desc)
}

func (lr *lookupResolver) named(ctx context.Context, table, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	return lr.resolve(ctx, table, namedLookupSQL, name)
}

// IngestBatch upserts the records in one transaction, creating missing
// lookup rows on the way. Nothing is written if any record fails.
func (r *PostgresRepository) IngestBatch(ctx context.Context, records []domain.CollisionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lr := &lookupResolver{tx: tx, cache: make(map[string]int64)}
	for _, rec := range records {
		if err := upsertCollision(ctx, tx, lr, rec); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit ingest: %w", err)
	}
	return len(records), nil
}

func upsertCollision(ctx context.Context, tx pgx.Tx, lr *lookupResolver, rec domain.CollisionRecord) error {
	severityID, err := lr.coded(ctx, "severity", rec.Severity)
	if err != nil {
		return err
	}
	sdotID, err := lr.coded(ctx, "sdot_collision_type", rec.SDOTCollisionType)
	if err != nil {
		return err
	}

	named := []struct{ table, name string }{
		{"collision_type", rec.CollisionType},
		{"junction_type", rec.JunctionType},
		{"light_condition", rec.LightCondition},
		{"weather_condition", rec.WeatherCondition},
		{"road_condition", rec.RoadCondition},
		{"address_type", rec.AddressType},
	}
	ids := make([]*int64, len(named))
	for i, n := range named {
		if ids[i], err = lr.named(ctx, n.table, n.name); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, upsertCollisionSQL,
		rec.IncKey, rec.Location, rec.OccurredAt, rec.Longitude, rec.Latitude, rec.IntKey,
		rec.Counts.PersonCount, rec.Counts.PedCount, rec.Counts.PedcylCount, rec.Counts.VehCount,
		rec.Counts.Injuries, rec.Counts.SeriousInjuries, rec.Counts.Fatalities,
		severityID, ids[0], sdotID, ids[1],
		ids[2], ids[3], ids[4], ids[5],
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert collision %d: %w", rec.IncKey, err)
	}
	return nil
}
