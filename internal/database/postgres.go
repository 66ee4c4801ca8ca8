package database

import (
	"context"
	"errors"
	"fmt"

	"collab-app/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Connected to database successfully")
	return store, nil
}

func (db *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			ydoc_blob BYTEA,
			version INT DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS rooms_user_mapping (
			username TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_user FOREIGN KEY(username) REFERENCES users(username) ON DELETE CASCADE,
			CONSTRAINT fk_room FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE
		);`

	_, err := db.pool.Exec(ctx, schema)
	return err
}

func (db *PostgresStore) Close() error {
	db.pool.Close()
	return nil
}

// Credential Repository Implementation
func (db *PostgresStore) GetCredential(ctx context.Context, username string) (string, error) {
	query := `SELECT password FROM users WHERE username = $1`

	var secret string
	err := db.pool.QueryRow(ctx, query, username).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return secret, nil
}

func (db *PostgresStore) InsertCredential(ctx context.Context, username, secret string) error {
	query := `INSERT INTO users (username, password) VALUES ($1, $2)`

	if _, err := db.pool.Exec(ctx, query, username, secret); err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	return nil
}

// Room Repository Implementation
func (db *PostgresStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, roomID).Scan(&exists)
	return exists, err
}

func (db *PostgresStore) CreateRoom(ctx context.Context, roomID string, initialBlob []byte) error {
	// Two instances may race on first join; the first insert wins and the
	// loser reads the stored copy instead.
	query := `
		INSERT INTO rooms (id, ydoc_blob, version) VALUES ($1, $2, 0)
		ON CONFLICT (id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, roomID, initialBlob)
	return err
}

func (db *PostgresStore) ReadRoom(ctx context.Context, roomID string) (*RoomRecord, error) {
	query := `SELECT id, ydoc_blob, version FROM rooms WHERE id = $1`

	record := &RoomRecord{}
	err := db.pool.QueryRow(ctx, query, roomID).Scan(&record.ID, &record.Blob, &record.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (db *PostgresStore) WriteRoom(ctx context.Context, roomID string, blob []byte, expectedVersion int64) (bool, error) {
	query := `
		UPDATE rooms SET ydoc_blob = $1, version = version + 1
		WHERE id = $2 AND version = $3`

	tag, err := db.pool.Exec(ctx, query, blob, roomID, expectedVersion)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (db *PostgresStore) DeleteRoomIfNoMembers(ctx context.Context, roomID string) error {
	query := `
		DELETE FROM rooms
		WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM rooms_user_mapping WHERE room_id = $1)`

	_, err := db.pool.Exec(ctx, query, roomID)
	return err
}

// Membership Repository Implementation
func (db *PostgresStore) ListMembers(ctx context.Context, roomID string) ([]string, error) {
	query := `SELECT username FROM rooms_user_mapping WHERE room_id = $1 ORDER BY username`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		members = append(members, username)
	}

	return members, rows.Err()
}

func (db *PostgresStore) UpsertMembership(ctx context.Context, roomID, username string) error {
	// UPSERT: a rejoin after an unclean shutdown overwrites the ghost row.
	query := `
		INSERT INTO rooms_user_mapping (room_id, username, last_seen)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO UPDATE SET room_id = $1, last_seen = NOW()`

	_, err := db.pool.Exec(ctx, query, roomID, username)
	return err
}

func (db *PostgresStore) DeleteMembership(ctx context.Context, username string) error {
	query := `DELETE FROM rooms_user_mapping WHERE username = $1`

	_, err := db.pool.Exec(ctx, query, username)
	return err
}
