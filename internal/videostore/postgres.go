// Package videostore provides the PostgreSQL implementation of Store.
// Intended for production use with persistent data storage.
package videostore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaultstream/vaultstream/internal/model"
)

// postgres is the pgxpool-backed Store implementation.
type postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL videostore. It establishes a
// connection pool and initializes the schema if it doesn't already exist.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates the videos table and its indexes if they don't exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS videos (
		    id TEXT PRIMARY KEY,
		    owner_user_id TEXT NOT NULL,
		    title TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    visibility TEXT NOT NULL,
		    passphrase_hash TEXT NOT NULL DEFAULT '',
		    storage_path TEXT NOT NULL DEFAULT '',
		    hls_path TEXT NOT NULL DEFAULT '',
		    master_playlist_path TEXT NOT NULL DEFAULT '',
		    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		    source_width INTEGER NOT NULL DEFAULT 0,
		    source_height INTEGER NOT NULL DEFAULT 0,
		    file_size BIGINT NOT NULL DEFAULT 0,
		    mime_type TEXT NOT NULL DEFAULT '',
		    original_filename TEXT NOT NULL DEFAULT '',
		    status TEXT NOT NULL,
		    processing_error TEXT NOT NULL DEFAULT '',
		    thumbnail_path TEXT NOT NULL DEFAULT '',
		    views BIGINT NOT NULL DEFAULT 0,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos(owner_user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_videos_status_created_at ON videos(status, created_at ASC, id ASC);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (p *postgres) Close() {
	p.db.Close()
}

func (p *postgres) Create(ctx context.Context, v model.Video) error {
	query := `INSERT INTO videos (
		id, owner_user_id, title, description, visibility, passphrase_hash,
		storage_path, hls_path, master_playlist_path, duration_seconds,
		source_width, source_height, file_size, mime_type, original_filename,
		status, processing_error, thumbnail_path, views, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

	_, err := p.db.Exec(ctx, query,
		v.ID, v.OwnerUserID, v.Title, v.Description, string(v.Visibility), v.PassphraseHash,
		v.StoragePath, v.HLSPath, v.MasterPlaylistPath, v.Duration,
		v.Resolution.Width, v.Resolution.Height, v.FileSize, v.MimeType, v.OriginalFilename,
		string(v.Status), v.ProcessingError, v.ThumbnailPath, v.Views, v.CreatedAt, v.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

func scanVideo(row pgx.Row) (*model.Video, error) {
	var v model.Video
	var visibility, status string

	err := row.Scan(
		&v.ID, &v.OwnerUserID, &v.Title, &v.Description, &visibility, &v.PassphraseHash,
		&v.StoragePath, &v.HLSPath, &v.MasterPlaylistPath, &v.Duration,
		&v.Resolution.Width, &v.Resolution.Height, &v.FileSize, &v.MimeType, &v.OriginalFilename,
		&status, &v.ProcessingError, &v.ThumbnailPath, &v.Views, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Visibility = model.Visibility(visibility)
	v.Status = model.Status(status)
	return &v, nil
}

const selectVideoColumns = `id, owner_user_id, title, description, visibility, passphrase_hash,
	storage_path, hls_path, master_playlist_path, duration_seconds,
	source_width, source_height, file_size, mime_type, original_filename,
	status, processing_error, thumbnail_path, views, created_at, updated_at`

func (p *postgres) Get(ctx context.Context, id string) (*model.Video, error) {
	query := `SELECT ` + selectVideoColumns + ` FROM videos WHERE id = $1`

	v, err := scanVideo(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// UpdateStatus performs a compare-and-swap inside a transaction: the row is
// read with SELECT ... FOR UPDATE, its status is compared with expected
// (ErrConflict on mismatch), and the row is then rewritten with the new
// status and mutate's field changes, so the whole operation is atomic.
func (p *postgres) UpdateStatus(ctx context.Context, id string, expected, next model.Status, mutate func(*model.Video)) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + selectVideoColumns + ` FROM videos WHERE id = $1 FOR UPDATE`
	v, err := scanVideo(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read video for update: %w", err)
	}
	if v.Status != expected {
		return ErrConflict
	}

	v.Status = next
	v.UpdatedAt = nowUTC()
	if mutate != nil {
		mutate(v)
	}

	update := `UPDATE videos SET
		title=$1, description=$2, visibility=$3, passphrase_hash=$4,
		storage_path=$5, hls_path=$6, master_playlist_path=$7, duration_seconds=$8,
		source_width=$9, source_height=$10, file_size=$11, mime_type=$12, original_filename=$13,
		status=$14, processing_error=$15, thumbnail_path=$16, views=$17, updated_at=$18
		WHERE id=$19`

	_, err = tx.Exec(ctx, update,
		v.Title, v.Description, string(v.Visibility), v.PassphraseHash,
		v.StoragePath, v.HLSPath, v.MasterPlaylistPath, v.Duration,
		v.Resolution.Width, v.Resolution.Height, v.FileSize, v.MimeType, v.OriginalFilename,
		string(v.Status), v.ProcessingError, v.ThumbnailPath, v.Views, v.UpdatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *postgres) Delete(ctx context.Context, id string) error {
	result, err := p.db.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// pgCursor represents the data encoded in a pagination cursor.
type pgCursor struct {
	LastCreatedAt time.Time
	LastID        string
}

func encodePgCursor(lastCreatedAt time.Time, lastID string) string {
	data := pgCursor{LastCreatedAt: lastCreatedAt, LastID: lastID}
	b, _ := json.Marshal(data)
	return base64.URLEncoding.EncodeToString(b)
}

func decodePgCursor(cursor string) (*pgCursor, error) {
	b, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	var data pgCursor
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("invalid cursor data: %w", err)
	}
	return &data, nil
}

// ListByStatus lists videos in a given status, oldest-first, with
// cursor-based pagination — used by the crash-recovery requeue scan at
// startup.
func (p *postgres) ListByStatus(ctx context.Context, status model.Status, limit int, cursor string) ([]model.Video, string, error) {
	query := `SELECT ` + selectVideoColumns + ` FROM videos WHERE status = $1`
	args := []interface{}{string(status)}
	argIndex := 2

	if cursor != "" {
		c, err := decodePgCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query += fmt.Sprintf(" AND (created_at > $%d OR (created_at = $%d AND id > $%d))", argIndex, argIndex, argIndex+1)
		args = append(args, c.LastCreatedAt, c.LastID)
		argIndex += 2
	}

	if limit <= 0 {
		limit = 25
	} else if limit > 200 {
		limit = 200
	}
	query += " ORDER BY created_at ASC, id ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit+1)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating videos: %w", err)
	}

	var next string
	if len(videos) > limit {
		videos = videos[:limit]
		last := videos[len(videos)-1]
		next = encodePgCursor(last.CreatedAt, last.ID)
	}

	return videos, next, nil
}
