package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"live-streamer/internal/streamer"
)

const schema = `
CREATE TABLE IF NOT EXISTS live_stream (
    id          BIGSERIAL PRIMARY KEY,
    video_id    BIGINT NOT NULL,
    source_path TEXT NOT NULL,
    resolutions TEXT[] NOT NULL DEFAULT '{}',
    start_time  TIMESTAMPTZ NOT NULL,
    status      TEXT NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'ENDED'))
)`

// PostgresRepository persists live streams in the live_stream table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a connection pool for dsn and verifies it.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// EnsureSchema creates the live_stream table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create live_stream table: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// AddStream implements Repository.AddStream.
func (r *PostgresRepository) AddStream(ctx context.Context, s LiveStream) (int64, error) {
	if !s.Status.Valid() {
		return 0, fmt.Errorf("add stream: unknown status %q", s.Status)
	}
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO live_stream (video_id, source_path, resolutions, start_time, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, s.VideoID, s.SourcePath, resolutionLabels(s.Resolutions), s.StartedAt.UTC(), string(s.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert live stream: %w", err)
	}
	return id, nil
}

// ChangeStatus implements Repository.ChangeStatus.
func (r *PostgresRepository) ChangeStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("change status: unknown status %q", status)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE live_stream SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update live stream %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStreamNotFound
	}
	return nil
}

// GetStream implements Repository.GetStream.
func (r *PostgresRepository) GetStream(ctx context.Context, id int64) (LiveStream, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, video_id, source_path, resolutions, start_time, status
FROM live_stream
WHERE id = $1
`, id)
	var (
		s      LiveStream
		labels []string
		status string
	)
	if err := row.Scan(&s.ID, &s.VideoID, &s.SourcePath, &labels, &s.StartedAt, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LiveStream{}, ErrStreamNotFound
		}
		return LiveStream{}, fmt.Errorf("get live stream %d: %w", id, err)
	}
	s.Status = Status(status)
	for _, label := range labels {
		res, err := streamer.ParseResolution(label)
		if err != nil {
			return LiveStream{}, fmt.Errorf("live stream %d: %w", id, err)
		}
		s.Resolutions = append(s.Resolutions, res)
	}
	return s, nil
}

// ActiveStreamCount implements Repository.ActiveStreamCount.
func (r *PostgresRepository) ActiveStreamCount(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM live_stream WHERE status <> 'ENDED'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active streams: %w", err)
	}
	return n, nil
}

func resolutionLabels(rs []streamer.Resolution) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Label())
	}
	return out
}
