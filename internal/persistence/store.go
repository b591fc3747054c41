// Package persistence is the durable store behind the scheduling core:
// Postgres for the vehicle/buffer/metrics rows and Redis as a cache-aside
// layer in front of the hot read paths the gateway serves. Persistence
// runs best-effort alongside the tick loop — a write failure here is
// logged, never allowed to block or kill a tick.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/metrics"
	"github.com/paintshop/scheduler/internal/vehicle"
)

// Store is the Postgres + Redis backed persistence layer.
type Store struct {
	db    *sql.DB
	cache *redis.Client
}

// Config holds connection settings for the persistence layer.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// New opens the Postgres connection and constructs the Redis client. It
// does not create tables — migrations are assumed to run out of band.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Store{db: db, cache: rdb}, nil
}

// Close releases the Postgres and Redis connections.
func (s *Store) Close() error {
	s.cache.Close()
	return s.db.Close()
}

const seedBatchSize = 500

// SeedVehicles bulk-inserts a freshly generated vehicle queue, in batches
// of seedBatchSize to keep each statement's parameter count bounded.
func (s *Store) SeedVehicles(ctx context.Context, vehicles []*vehicle.Vehicle) error {
	for start := 0; start < len(vehicles); start += seedBatchSize {
		end := start + seedBatchSize
		if end > len(vehicles) {
			end = len(vehicles)
		}
		if err := s.seedBatch(ctx, vehicles[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedBatch(ctx context.Context, batch []*vehicle.Vehicle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin seed tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vehicles (car_id, color, oven, buffer, status, batch_id, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (car_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("persistence: prepare seed: %w", err)
	}
	defer stmt.Close()

	for _, v := range batch {
		if _, err := stmt.ExecContext(ctx, v.CarID, v.Color, v.Oven, nullString(v.Buffer), v.Status, nullString(v.BatchID), v.Priority); err != nil {
			return fmt.Errorf("persistence: insert vehicle %d: %w", v.CarID, err)
		}
	}

	return tx.Commit()
}

// LoadWaiting returns up to limit vehicles still in WAITING status, oldest
// car_id first. It implements engine.Source.
func (s *Store) LoadWaiting(ctx context.Context, limit int) ([]*vehicle.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT car_id, color, oven, status, priority FROM vehicles
		 WHERE status = $1 ORDER BY car_id ASC LIMIT $2`,
		vehicle.StatusWaiting, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: load waiting: %w", err)
	}
	defer rows.Close()

	var out []*vehicle.Vehicle
	for rows.Next() {
		v := &vehicle.Vehicle{}
		if err := rows.Scan(&v.CarID, &v.Color, &v.Oven, &v.Status, &v.Priority); err != nil {
			return nil, fmt.Errorf("persistence: scan waiting vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ApplyUpdates writes a batch of partial vehicle field updates in a single
// transaction. Failures are returned, not swallowed — callers at the
// engine boundary decide whether to log-and-continue.
func (s *Store) ApplyUpdates(ctx context.Context, updates []vehicle.Update) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin update tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if u.Fields.Buffer != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET buffer = $1 WHERE car_id = $2`, nullString(*u.Fields.Buffer), u.CarID); err != nil {
				return fmt.Errorf("persistence: update buffer for %d: %w", u.CarID, err)
			}
		}
		if u.Fields.Status != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET status = $1 WHERE car_id = $2`, *u.Fields.Status, u.CarID); err != nil {
				return fmt.Errorf("persistence: update status for %d: %w", u.CarID, err)
			}
		}
		if u.Fields.BatchID != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET batch_id = $1 WHERE car_id = $2`, nullString(*u.Fields.BatchID), u.CarID); err != nil {
				return fmt.Errorf("persistence: update batch for %d: %w", u.CarID, err)
			}
		}
	}

	return tx.Commit()
}

// FlushSnapshot is the engine.Sink.OnFlush hook: it persists the metrics
// row and every lane's state, then invalidates the cached read-model so
// the next gateway read goes to Postgres instead of a stale cache entry.
func (s *Store) FlushSnapshot(ctx context.Context, snap metrics.Snapshot, lanes map[string]buffer.Snapshot) {
	if err := s.writeMetrics(ctx, snap); err != nil {
		log.Printf("persistence: write metrics: %v", err)
	}
	for id, lane := range lanes {
		if err := s.writeLane(ctx, id, lane); err != nil {
			log.Printf("persistence: write lane %s: %v", id, err)
		}
	}
	if err := s.cache.Del(ctx, cacheKeyMetrics, cacheKeyLanes).Err(); err != nil && err != redis.Nil {
		log.Printf("persistence: invalidate cache: %v", err)
	}
}

func (s *Store) writeMetrics(ctx context.Context, snap metrics.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics_snapshots
		 (tick, vehicles_processed, total_changeovers, o2_stoppage_events, overflow_events,
		  buffer_overflow_events, throughput, efficiency_percent, total_lost_time_seconds,
		  oven1_occupancy, oven2_occupancy, captured_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		snap.CurrentTick, snap.VehiclesProcessed, snap.TotalChangeovers, snap.O2StoppageEvents,
		snap.OverflowEvents, snap.BufferOverflowEvents, snap.Throughput, snap.EfficiencyPercent,
		snap.TotalLostTimeSeconds, snap.Oven1Occupancy, snap.Oven2Occupancy, time.Now(),
	)
	return err
}

func (s *Store) writeLane(ctx context.Context, id string, lane buffer.Snapshot) error {
	counts, err := json.Marshal(lane.ColorCounts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buffer_states (buffer_id, occupancy, current_color, last_color, is_available, color_counts, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (buffer_id) DO UPDATE SET
		   occupancy = EXCLUDED.occupancy,
		   current_color = EXCLUDED.current_color,
		   last_color = EXCLUDED.last_color,
		   is_available = EXCLUDED.is_available,
		   color_counts = EXCLUDED.color_counts,
		   updated_at = EXCLUDED.updated_at`,
		id, lane.Occupancy, nullString(string(lane.CurrentColor)), nullString(string(lane.LastColor)),
		lane.IsAvailable, counts, time.Now(),
	)
	return err
}

const (
	cacheKeyMetrics = "paintshop:metrics:latest"
	cacheKeyLanes   = "paintshop:lanes:latest"
)

// CachedMetrics implements the cache-aside read path the gateway uses: it
// checks Redis first, and on a miss falls back to the most recent row in
// Postgres, repopulating the cache before returning.
func (s *Store) CachedMetrics(ctx context.Context, ttl time.Duration) (metrics.Snapshot, error) {
	var snap metrics.Snapshot

	if cached, err := s.cache.Get(ctx, cacheKeyMetrics).Result(); err == nil {
		if jsonErr := json.Unmarshal([]byte(cached), &snap); jsonErr == nil {
			return snap, nil
		}
	} else if err != redis.Nil {
		log.Printf("persistence: redis get metrics: %v", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT tick, vehicles_processed, total_changeovers, o2_stoppage_events, overflow_events,
		        buffer_overflow_events, throughput, efficiency_percent, total_lost_time_seconds,
		        oven1_occupancy, oven2_occupancy
		 FROM metrics_snapshots ORDER BY captured_at DESC LIMIT 1`)

	if err := row.Scan(&snap.CurrentTick, &snap.VehiclesProcessed, &snap.TotalChangeovers,
		&snap.O2StoppageEvents, &snap.OverflowEvents, &snap.BufferOverflowEvents, &snap.Throughput,
		&snap.EfficiencyPercent, &snap.TotalLostTimeSeconds, &snap.Oven1Occupancy, &snap.Oven2Occupancy); err != nil {
		if err == sql.ErrNoRows {
			return metrics.Snapshot{}, nil
		}
		return metrics.Snapshot{}, fmt.Errorf("persistence: query metrics: %w", err)
	}

	if payload, err := json.Marshal(snap); err == nil {
		if err := s.cache.Set(ctx, cacheKeyMetrics, payload, ttl).Err(); err != nil {
			log.Printf("persistence: redis set metrics: %v", err)
		}
	}

	return snap, nil
}

// collectionTables maps the collection names the engine resets
// (mirroring firestore_service.py's clear_collection calls for
// "vehicles" and "buffers") to their backing tables. Kept as an explicit
// allowlist rather than interpolating the caller-supplied name directly
// into the statement.
var collectionTables = map[string]string{
	"vehicles": "vehicles",
	"buffers":  "buffer_states",
}

// ClearCollection deletes every row from the named collection. It
// implements engine.Source's reset hook: Engine.Reset calls it once for
// "vehicles" and once for "buffers" before rebuilding in-memory state.
func (s *Store) ClearCollection(ctx context.Context, name string) error {
	table, ok := collectionTables[name]
	if !ok {
		return fmt.Errorf("persistence: unknown collection %q", name)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("persistence: clear %s: %w", name, err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
