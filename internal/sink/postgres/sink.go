// Package postgres persists listing records into a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// DefaultTable receives records when no table is configured.
const DefaultTable = "listings"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink upserts records keyed by listing URL.
type Sink struct {
	pool  execCloser
	table string
	clock crawler.Clock
}

// NewSink connects a pool using cfg.
func NewSink(ctx context.Context, cfg Config, clock crawler.Clock) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sink.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewSinkWithPool(pool, table, clock)
}

// NewSinkWithPool constructs a sink from an existing pool (primarily for testing).
func NewSinkWithPool(pool execCloser, table string, clock crawler.Clock) (*Sink, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Sink{pool: pool, table: table, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureTable creates the listings table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url             TEXT PRIMARY KEY,
	title           TEXT,
	address         TEXT,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	category        TEXT,
	contract_type   TEXT,
	building_type   TEXT,
	description     TEXT,
	extra           TEXT,
	price           INTEGER,
	currency        TEXT,
	broker          TEXT,
	listed_at       TIMESTAMPTZ,
	partitioning    TEXT,
	rooms           INTEGER,
	kitchens        INTEGER,
	built_area      INTEGER,
	usable_area     INTEGER,
	height_category TEXT,
	built_year      INTEGER,
	floor           TEXT,
	created_at      TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Persist upserts the record, stamping created_at.
func (s *Sink) Persist(ctx context.Context, record crawler.Record) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres sink is not configured")
	}
	if record.URL == "" {
		return errors.New("record url is required")
	}
	record.CreatedAt = s.clock.Now()

	query := fmt.Sprintf(`
INSERT INTO %s (
	url, title, address, latitude, longitude, category, contract_type,
	building_type, description, extra, price, currency, broker, listed_at,
	partitioning, rooms, kitchens, built_area, usable_area, height_category,
	built_year, floor, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	address = EXCLUDED.address,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	category = EXCLUDED.category,
	contract_type = EXCLUDED.contract_type,
	building_type = EXCLUDED.building_type,
	description = EXCLUDED.description,
	extra = EXCLUDED.extra,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	broker = EXCLUDED.broker,
	listed_at = EXCLUDED.listed_at,
	partitioning = EXCLUDED.partitioning,
	rooms = EXCLUDED.rooms,
	kitchens = EXCLUDED.kitchens,
	built_area = EXCLUDED.built_area,
	usable_area = EXCLUDED.usable_area,
	height_category = EXCLUDED.height_category,
	built_year = EXCLUDED.built_year,
	floor = EXCLUDED.floor,
	created_at = EXCLUDED.created_at`, s.table)

	lat, lon := coordinates(record.Location)
	args := []any{
		record.URL,
		record.Title,
		record.Address,
		lat,
		lon,
		record.Category,
		record.ContractType,
		record.BuildingType,
		record.Description,
		record.Extra,
		record.Price,
		record.Currency,
		record.Broker,
		record.ListedAt,
		record.Partitioning,
		record.Rooms,
		record.Kitchens,
		record.BuiltArea,
		record.UsableArea,
		record.HeightCategory,
		record.BuiltYear,
		record.Floor,
		record.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

func coordinates(p *crawler.GeoPoint) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lon := p.Lat, p.Lon
	return &lat, &lon
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}
