package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamcast/internal/models"
)

// PostgresConfig describes how the repository initialises its Postgres
// connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string
}

// Postgres is the pgx-backed Repository. The single-active invariants are
// additionally enforced by partial unique indexes so that concurrent
// orchestrator instances sharing the database cannot both insert an active
// row (see Migrate).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a Postgres-backed repository and verifies connectivity.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	repo := &Postgres{pool: pool}
	if err := repo.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return repo, nil
}

// Migrate creates the schema when it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stream_endpoints (
			owner_id TEXT PRIMARY KEY,
			login TEXT NOT NULL,
			server_host TEXT NOT NULL,
			api_base_url TEXT NOT NULL DEFAULT '',
			api_username TEXT NOT NULL DEFAULT '',
			api_password TEXT NOT NULL DEFAULT '',
			rtmp_port INTEGER NOT NULL DEFAULT 1935,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transmissions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			playlist_id TEXT,
			status TEXT NOT NULL,
			kind TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS transmissions_one_active
			ON transmissions (owner_id) WHERE status = 'active'`,
		`CREATE TABLE IF NOT EXISTS social_live_sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			status TEXT NOT NULL,
			handle TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			rtmp_target TEXT NOT NULL DEFAULT '',
			stream_key TEXT NOT NULL DEFAULT '',
			bitrate_kbps INTEGER NOT NULL DEFAULT 0,
			viewers INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS recording_sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			process_id INTEGER NOT NULL DEFAULT 0,
			archive_url TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS recording_sessions_one_active
			ON recording_sessions (owner_id) WHERE status = 'recording'`,
		`CREATE TABLE IF NOT EXISTS platforms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			rtmp_base_url TEXT NOT NULL DEFAULT '',
			requires_stream_key BOOLEAN NOT NULL DEFAULT TRUE,
			supports_https BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *Postgres) GetEndpoint(ctx context.Context, ownerID string) (models.StreamEndpoint, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT owner_id, login, server_host, api_base_url, api_username,
		api_password, rtmp_port, blocked, created_at, updated_at
		FROM stream_endpoints WHERE owner_id = $1`, ownerID)
	var endpoint models.StreamEndpoint
	err := row.Scan(&endpoint.OwnerID, &endpoint.Login, &endpoint.ServerHost, &endpoint.APIBaseURL,
		&endpoint.APIUsername, &endpoint.APIPassword, &endpoint.RTMPPort, &endpoint.Blocked,
		&endpoint.CreatedAt, &endpoint.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StreamEndpoint{}, false, nil
	} else if err != nil {
		return models.StreamEndpoint{}, false, fmt.Errorf("get endpoint: %w", err)
	}
	return endpoint, true, nil
}

func (p *Postgres) UpsertEndpoint(ctx context.Context, endpoint models.StreamEndpoint) (models.StreamEndpoint, error) {
	if endpoint.OwnerID == "" {
		return models.StreamEndpoint{}, errors.New("owner id is required")
	}
	now := time.Now().UTC()
	endpoint.UpdatedAt = now
	if endpoint.CreatedAt.IsZero() {
		endpoint.CreatedAt = now
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO stream_endpoints
		(owner_id, login, server_host, api_base_url, api_username, api_password, rtmp_port, blocked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (owner_id) DO UPDATE SET
			login = EXCLUDED.login,
			server_host = EXCLUDED.server_host,
			api_base_url = EXCLUDED.api_base_url,
			api_username = EXCLUDED.api_username,
			api_password = EXCLUDED.api_password,
			rtmp_port = EXCLUDED.rtmp_port,
			blocked = EXCLUDED.blocked,
			updated_at = EXCLUDED.updated_at`,
		endpoint.OwnerID, endpoint.Login, endpoint.ServerHost, endpoint.APIBaseURL,
		endpoint.APIUsername, endpoint.APIPassword, endpoint.RTMPPort, endpoint.Blocked,
		endpoint.CreatedAt, endpoint.UpdatedAt)
	if err != nil {
		return models.StreamEndpoint{}, fmt.Errorf("upsert endpoint: %w", err)
	}
	return endpoint, nil
}

func (p *Postgres) SetEndpointBlocked(ctx context.Context, ownerID string, blocked bool) (models.StreamEndpoint, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE stream_endpoints SET blocked = $2, updated_at = $3 WHERE owner_id = $1`,
		ownerID, blocked, time.Now().UTC())
	if err != nil {
		return models.StreamEndpoint{}, fmt.Errorf("set endpoint blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.StreamEndpoint{}, ErrNotFound
	}
	endpoint, _, err := p.GetEndpoint(ctx, ownerID)
	return endpoint, err
}

func (p *Postgres) DeleteEndpoint(ctx context.Context, ownerID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM stream_endpoints WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertPlaylist(ctx context.Context, playlist models.Playlist) (models.Playlist, error) {
	if playlist.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Playlist{}, err
		}
		playlist.ID = id
	}
	playlist.UpdatedAt = time.Now().UTC()
	_, err := p.pool.Exec(ctx, `INSERT INTO playlists (id, owner_id, name, item_count, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			item_count = EXCLUDED.item_count,
			updated_at = EXCLUDED.updated_at`,
		playlist.ID, playlist.OwnerID, playlist.Name, playlist.ItemCount, playlist.UpdatedAt)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("upsert playlist: %w", err)
	}
	return playlist, nil
}

func (p *Postgres) GetPlaylist(ctx context.Context, id string) (models.Playlist, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, name, item_count, updated_at FROM playlists WHERE id = $1`, id)
	var playlist models.Playlist
	err := row.Scan(&playlist.ID, &playlist.OwnerID, &playlist.Name, &playlist.ItemCount, &playlist.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Playlist{}, false, nil
	} else if err != nil {
		return models.Playlist{}, false, fmt.Errorf("get playlist: %w", err)
	}
	return playlist, true, nil
}

func (p *Postgres) CreateTransmission(ctx context.Context, transmission models.Transmission) (models.Transmission, error) {
	if transmission.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Transmission{}, err
		}
		transmission.ID = id
	}
	if transmission.StartedAt.IsZero() {
		transmission.StartedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO transmissions
		(id, owner_id, title, description, playlist_id, status, kind, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		transmission.ID, transmission.OwnerID, transmission.Title, transmission.Description,
		transmission.PlaylistID, transmission.Status, transmission.Kind,
		transmission.StartedAt, transmission.EndedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Transmission{}, fmt.Errorf("owner %s already has an active transmission: %w", transmission.OwnerID, err)
		}
		return models.Transmission{}, fmt.Errorf("create transmission: %w", err)
	}
	return transmission, nil
}

func (p *Postgres) GetTransmission(ctx context.Context, id string) (models.Transmission, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, title, description, playlist_id, status, kind, started_at, ended_at
		FROM transmissions WHERE id = $1`, id)
	transmission, err := scanTransmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transmission{}, false, nil
	} else if err != nil {
		return models.Transmission{}, false, fmt.Errorf("get transmission: %w", err)
	}
	return transmission, true, nil
}

func (p *Postgres) UpdateTransmission(ctx context.Context, transmission models.Transmission) error {
	tag, err := p.pool.Exec(ctx, `UPDATE transmissions SET
		title = $2, description = $3, playlist_id = $4, status = $5, kind = $6, started_at = $7, ended_at = $8
		WHERE id = $1`,
		transmission.ID, transmission.Title, transmission.Description, transmission.PlaylistID,
		transmission.Status, transmission.Kind, transmission.StartedAt, transmission.EndedAt)
	if err != nil {
		return fmt.Errorf("update transmission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ActiveTransmission(ctx context.Context, ownerID string) (models.Transmission, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, title, description, playlist_id, status, kind, started_at, ended_at
		FROM transmissions WHERE owner_id = $1 AND status = 'active'
		ORDER BY started_at DESC LIMIT 1`, ownerID)
	transmission, err := scanTransmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transmission{}, false, nil
	} else if err != nil {
		return models.Transmission{}, false, fmt.Errorf("active transmission: %w", err)
	}
	return transmission, true, nil
}

func (p *Postgres) ListTransmissions(ctx context.Context, ownerID string, limit int) ([]models.Transmission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `SELECT id, owner_id, title, description, playlist_id, status, kind, started_at, ended_at
		FROM transmissions WHERE owner_id = $1 ORDER BY started_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	defer rows.Close()

	transmissions := make([]models.Transmission, 0)
	for rows.Next() {
		transmission, err := scanTransmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		transmissions = append(transmissions, transmission)
	}
	return transmissions, rows.Err()
}

func (p *Postgres) CreateSocialLive(ctx context.Context, session models.SocialLiveSession) (models.SocialLiveSession, error) {
	if session.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.SocialLiveSession{}, err
		}
		session.ID = id
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO social_live_sessions
		(id, owner_id, platform_id, status, handle, method, rtmp_target, stream_key, bitrate_kbps, viewers, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		session.ID, session.OwnerID, session.PlatformID, session.Status, session.Handle, session.Method,
		session.RTMPTarget, session.StreamKey, session.BitrateKbps, session.Viewers,
		session.StartedAt, session.EndedAt)
	if err != nil {
		return models.SocialLiveSession{}, fmt.Errorf("create social live: %w", err)
	}
	return session, nil
}

func (p *Postgres) GetSocialLive(ctx context.Context, id string) (models.SocialLiveSession, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, platform_id, status, handle, method, rtmp_target,
		stream_key, bitrate_kbps, viewers, started_at, ended_at
		FROM social_live_sessions WHERE id = $1`, id)
	session, err := scanSocialLive(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SocialLiveSession{}, false, nil
	} else if err != nil {
		return models.SocialLiveSession{}, false, fmt.Errorf("get social live: %w", err)
	}
	return session, true, nil
}

func (p *Postgres) UpdateSocialLive(ctx context.Context, session models.SocialLiveSession) error {
	tag, err := p.pool.Exec(ctx, `UPDATE social_live_sessions SET
		status = $2, handle = $3, method = $4, rtmp_target = $5, stream_key = $6,
		bitrate_kbps = $7, viewers = $8, ended_at = $9
		WHERE id = $1`,
		session.ID, session.Status, session.Handle, session.Method, session.RTMPTarget,
		session.StreamKey, session.BitrateKbps, session.Viewers, session.EndedAt)
	if err != nil {
		return fmt.Errorf("update social live: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteSocialLive(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM social_live_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete social live: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListSocialLives(ctx context.Context, ownerID string, limit int) ([]models.SocialLiveSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `SELECT id, owner_id, platform_id, status, handle, method, rtmp_target,
		stream_key, bitrate_kbps, viewers, started_at, ended_at
		FROM social_live_sessions WHERE owner_id = $1 ORDER BY started_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list social lives: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.SocialLiveSession, 0)
	for rows.Next() {
		session, err := scanSocialLive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan social live: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (p *Postgres) CreateRecording(ctx context.Context, session models.RecordingSession) (models.RecordingSession, error) {
	if session.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.RecordingSession{}, err
		}
		session.ID = id
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO recording_sessions
		(id, owner_id, filename, path, status, size_bytes, process_id, archive_url, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		session.ID, session.OwnerID, session.Filename, session.Path, session.Status,
		session.SizeBytes, session.ProcessID, session.ArchiveURL, session.StartedAt, session.EndedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.RecordingSession{}, fmt.Errorf("owner %s already has an active recording: %w", session.OwnerID, err)
		}
		return models.RecordingSession{}, fmt.Errorf("create recording: %w", err)
	}
	return session, nil
}

func (p *Postgres) GetRecording(ctx context.Context, id string) (models.RecordingSession, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, filename, path, status, size_bytes, process_id, archive_url, started_at, ended_at
		FROM recording_sessions WHERE id = $1`, id)
	session, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RecordingSession{}, false, nil
	} else if err != nil {
		return models.RecordingSession{}, false, fmt.Errorf("get recording: %w", err)
	}
	return session, true, nil
}

func (p *Postgres) UpdateRecording(ctx context.Context, session models.RecordingSession) error {
	tag, err := p.pool.Exec(ctx, `UPDATE recording_sessions SET
		filename = $2, path = $3, status = $4, size_bytes = $5, process_id = $6, archive_url = $7, ended_at = $8
		WHERE id = $1`,
		session.ID, session.Filename, session.Path, session.Status, session.SizeBytes,
		session.ProcessID, session.ArchiveURL, session.EndedAt)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ActiveRecording(ctx context.Context, ownerID string) (models.RecordingSession, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, owner_id, filename, path, status, size_bytes, process_id, archive_url, started_at, ended_at
		FROM recording_sessions WHERE owner_id = $1 AND status = 'recording'
		ORDER BY started_at DESC LIMIT 1`, ownerID)
	session, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RecordingSession{}, false, nil
	} else if err != nil {
		return models.RecordingSession{}, false, fmt.Errorf("active recording: %w", err)
	}
	return session, true, nil
}

func (p *Postgres) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, rtmp_base_url, requires_stream_key, supports_https
		FROM platforms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	defer rows.Close()

	platforms := make([]models.Platform, 0)
	for rows.Next() {
		var platform models.Platform
		if err := rows.Scan(&platform.ID, &platform.Name, &platform.RTMPBaseURL,
			&platform.RequiresStreamKey, &platform.SupportsHTTPS); err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		platforms = append(platforms, platform)
	}
	return platforms, rows.Err()
}

func (p *Postgres) UpsertPlatform(ctx context.Context, platform models.Platform) (models.Platform, error) {
	if platform.ID == "" {
		return models.Platform{}, errors.New("platform id is required")
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO platforms (id, name, rtmp_base_url, requires_stream_key, supports_https)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			rtmp_base_url = EXCLUDED.rtmp_base_url,
			requires_stream_key = EXCLUDED.requires_stream_key,
			supports_https = EXCLUDED.supports_https`,
		platform.ID, platform.Name, platform.RTMPBaseURL, platform.RequiresStreamKey, platform.SupportsHTTPS)
	if err != nil {
		return models.Platform{}, fmt.Errorf("upsert platform: %w", err)
	}
	return platform, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransmission(row rowScanner) (models.Transmission, error) {
	var transmission models.Transmission
	err := row.Scan(&transmission.ID, &transmission.OwnerID, &transmission.Title, &transmission.Description,
		&transmission.PlaylistID, &transmission.Status, &transmission.Kind,
		&transmission.StartedAt, &transmission.EndedAt)
	return transmission, err
}

func scanSocialLive(row rowScanner) (models.SocialLiveSession, error) {
	var session models.SocialLiveSession
	err := row.Scan(&session.ID, &session.OwnerID, &session.PlatformID, &session.Status,
		&session.Handle, &session.Method, &session.RTMPTarget, &session.StreamKey,
		&session.BitrateKbps, &session.Viewers, &session.StartedAt, &session.EndedAt)
	return session, err
}

func scanRecording(row rowScanner) (models.RecordingSession, error) {
	var session models.RecordingSession
	err := row.Scan(&session.ID, &session.OwnerID, &session.Filename, &session.Path, &session.Status,
		&session.SizeBytes, &session.ProcessID, &session.ArchiveURL, &session.StartedAt, &session.EndedAt)
	return session, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*Postgres)(nil)
