package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/roomsim/internal/models"
)

// PostgresSchema creates the tables PostgresCatalog reads from.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS catalog_rooms (
	id                  BIGINT PRIMARY KEY,
	name                TEXT NOT NULL,
	match_type          TEXT NOT NULL DEFAULT 'head_to_head',
	queue_mode          TEXT NOT NULL DEFAULT 'host_only',
	auto_start_seconds  INT NOT NULL DEFAULT 0,
	password_hash       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS catalog_playlist_items (
	room_id          BIGINT NOT NULL REFERENCES catalog_rooms(id) ON DELETE CASCADE,
	id               BIGINT NOT NULL,
	owner_id         INT NOT NULL,
	beatmap_id       INT NOT NULL,
	beatmap_checksum TEXT NOT NULL DEFAULT '',
	ruleset_id       INT NOT NULL DEFAULT 0,
	required_mods    JSONB NOT NULL DEFAULT '[]',
	allowed_mods     JSONB NOT NULL DEFAULT '[]',
	expired          BOOLEAN NOT NULL DEFAULT FALSE,
	played_at        TIMESTAMPTZ,
	playlist_order   INT NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, id)
);
`

// PostgresCatalog reads room definitions from Postgres.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool from its parts and pings it.
func ConnectPostgres(ctx context.Context, user, password, host, port, database string) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, database)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// NewPostgresCatalog wraps an open pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// Migrate creates the catalog tables if they are missing.
func (c *PostgresCatalog) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

// Lookup implements Catalog.
func (c *PostgresCatalog) Lookup(ctx context.Context, roomID int64) (Room, error) {
	var (
		r           Room
		autoStartSc int
	)
	q := `
	SELECT id, name, match_type, queue_mode, auto_start_seconds, password_hash
	FROM catalog_rooms
	WHERE id = $1
	`
	err := c.pool.QueryRow(ctx, q, roomID).Scan(
		&r.ID,
		&r.Name,
		&r.MatchType,
		&r.QueueMode,
		&autoStartSc,
		&r.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return Room{}, fmt.Errorf("failed to query room %d: %w", roomID, err)
	}
	r.AutoStartDuration = time.Duration(autoStartSc) * time.Second

	rows, err := c.pool.Query(ctx, `
	SELECT id, owner_id, beatmap_id, beatmap_checksum, ruleset_id,
	       required_mods, allowed_mods, expired, played_at, playlist_order
	FROM catalog_playlist_items
	WHERE room_id = $1
	ORDER BY id
	`, roomID)
	if err != nil {
		return Room{}, fmt.Errorf("failed to query playlist of room %d: %w", roomID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.PlaylistItem
		if err := rows.Scan(
			&item.ID,
			&item.OwnerID,
			&item.BeatmapID,
			&item.BeatmapChecksum,
			&item.RulesetID,
			&item.RequiredMods,
			&item.AllowedMods,
			&item.Expired,
			&item.PlayedAt,
			&item.PlaylistOrder,
		); err != nil {
			return Room{}, fmt.Errorf("failed to scan playlist item of room %d: %w", roomID, err)
		}
		r.Playlist = append(r.Playlist, item)
	}
	if err := rows.Err(); err != nil {
		return Room{}, fmt.Errorf("failed to read playlist of room %d: %w", roomID, err)
	}

	r.normalize()
	return r, nil
}

// Store upserts a room definition and replaces its playlist in one transaction.
func (c *PostgresCatalog) Store(ctx context.Context, r Room) error {
	return pgx.BeginTxFunc(ctx, c.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO catalog_rooms (id, name, match_type, queue_mode, auto_start_seconds, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			match_type = EXCLUDED.match_type,
			queue_mode = EXCLUDED.queue_mode,
			auto_start_seconds = EXCLUDED.auto_start_seconds,
			password_hash = EXCLUDED.password_hash
		`, r.ID, r.Name, string(r.MatchType), string(r.QueueMode), int(r.AutoStartDuration/time.Second), r.PasswordHash)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM catalog_playlist_items WHERE room_id = $1`, r.ID); err != nil {
			return err
		}
		for _, item := range r.Playlist {
			required, allowed := item.RequiredMods, item.AllowedMods
			if required == nil {
				required = []models.Mod{}
			}
			if allowed == nil {
				allowed = []models.Mod{}
			}
			_, err := tx.Exec(ctx, `
			INSERT INTO catalog_playlist_items (
				room_id, id, owner_id, beatmap_id, beatmap_checksum, ruleset_id,
				required_mods, allowed_mods, expired, played_at, playlist_order
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`, r.ID, item.ID, item.OwnerID, item.BeatmapID, item.BeatmapChecksum, item.RulesetID,
				required, allowed, item.Expired, item.PlayedAt, item.PlaylistOrder)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
