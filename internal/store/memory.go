package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"streamcast/internal/models"
)

type dataset struct {
	Endpoints     map[string]models.StreamEndpoint    `json:"endpoints"`
	Playlists     map[string]models.Playlist          `json:"playlists"`
	Transmissions map[string]models.Transmission      `json:"transmissions"`
	SocialLives   map[string]models.SocialLiveSession `json:"socialLives"`
	Recordings    map[string]models.RecordingSession  `json:"recordings"`
	Platforms     map[string]models.Platform          `json:"platforms"`
}

func newDataset() dataset {
	return dataset{
		Endpoints:     make(map[string]models.StreamEndpoint),
		Playlists:     make(map[string]models.Playlist),
		Transmissions: make(map[string]models.Transmission),
		SocialLives:   make(map[string]models.SocialLiveSession),
		Recordings:    make(map[string]models.RecordingSession),
		Platforms:     make(map[string]models.Platform),
	}
}

// Memory is a file-backed in-memory Repository. Every mutating call rewrites
// the snapshot file atomically; a persist failure rolls the in-memory change
// back so the map state never diverges from disk.
type Memory struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	now      func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// MemoryOption mutates memory store configuration.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory opens the snapshot at path, creating an empty dataset when the
// file does not exist. An empty path keeps the store purely in memory.
func NewMemory(path string, opts ...MemoryOption) (*Memory, error) {
	store := &Memory{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *Memory) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filePath == "" {
		m.data = newDataset()
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(m.filePath)
	if errors.Is(err, os.ErrNotExist) {
		m.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&m.data); err != nil {
		if errors.Is(err, io.EOF) {
			m.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	m.ensureInitializedLocked()
	return nil
}

func (m *Memory) ensureInitializedLocked() {
	if m.data.Endpoints == nil {
		m.data.Endpoints = make(map[string]models.StreamEndpoint)
	}
	if m.data.Playlists == nil {
		m.data.Playlists = make(map[string]models.Playlist)
	}
	if m.data.Transmissions == nil {
		m.data.Transmissions = make(map[string]models.Transmission)
	}
	if m.data.SocialLives == nil {
		m.data.SocialLives = make(map[string]models.SocialLiveSession)
	}
	if m.data.Recordings == nil {
		m.data.Recordings = make(map[string]models.RecordingSession)
	}
	if m.data.Platforms == nil {
		m.data.Platforms = make(map[string]models.Platform)
	}
}

func (m *Memory) persist() error {
	if m.persistOverride != nil {
		return m.persistOverride(m.data)
	}
	if m.filePath == "" {
		return nil
	}

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, m.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) GetEndpoint(ctx context.Context, ownerID string) (models.StreamEndpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	endpoint, ok := m.data.Endpoints[ownerID]
	return endpoint, ok, nil
}

func (m *Memory) UpsertEndpoint(ctx context.Context, endpoint models.StreamEndpoint) (models.StreamEndpoint, error) {
	if endpoint.OwnerID == "" {
		return models.StreamEndpoint{}, errors.New("owner id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	previous, existed := m.data.Endpoints[endpoint.OwnerID]
	if existed {
		endpoint.CreatedAt = previous.CreatedAt
	} else {
		endpoint.CreatedAt = now
	}
	endpoint.UpdatedAt = now
	m.data.Endpoints[endpoint.OwnerID] = endpoint

	if err := m.persist(); err != nil {
		if existed {
			m.data.Endpoints[endpoint.OwnerID] = previous
		} else {
			delete(m.data.Endpoints, endpoint.OwnerID)
		}
		return models.StreamEndpoint{}, err
	}
	return endpoint, nil
}

func (m *Memory) SetEndpointBlocked(ctx context.Context, ownerID string, blocked bool) (models.StreamEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpoint, ok := m.data.Endpoints[ownerID]
	if !ok {
		return models.StreamEndpoint{}, ErrNotFound
	}
	previous := endpoint
	endpoint.Blocked = blocked
	endpoint.UpdatedAt = m.now()
	m.data.Endpoints[ownerID] = endpoint

	if err := m.persist(); err != nil {
		m.data.Endpoints[ownerID] = previous
		return models.StreamEndpoint{}, err
	}
	return endpoint, nil
}

func (m *Memory) DeleteEndpoint(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpoint, ok := m.data.Endpoints[ownerID]
	if !ok {
		return ErrNotFound
	}
	delete(m.data.Endpoints, ownerID)
	if err := m.persist(); err != nil {
		m.data.Endpoints[ownerID] = endpoint
		return err
	}
	return nil
}

func (m *Memory) UpsertPlaylist(ctx context.Context, playlist models.Playlist) (models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if playlist.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Playlist{}, err
		}
		playlist.ID = id
	}
	playlist.UpdatedAt = m.now()
	previous, existed := m.data.Playlists[playlist.ID]
	m.data.Playlists[playlist.ID] = playlist

	if err := m.persist(); err != nil {
		if existed {
			m.data.Playlists[playlist.ID] = previous
		} else {
			delete(m.data.Playlists, playlist.ID)
		}
		return models.Playlist{}, err
	}
	return playlist, nil
}

func (m *Memory) GetPlaylist(ctx context.Context, id string) (models.Playlist, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	playlist, ok := m.data.Playlists[id]
	return playlist, ok, nil
}

func (m *Memory) CreateTransmission(ctx context.Context, transmission models.Transmission) (models.Transmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if transmission.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Transmission{}, err
		}
		transmission.ID = id
	}
	if transmission.StartedAt.IsZero() {
		transmission.StartedAt = m.now()
	}
	m.data.Transmissions[transmission.ID] = transmission

	if err := m.persist(); err != nil {
		delete(m.data.Transmissions, transmission.ID)
		return models.Transmission{}, err
	}
	return transmission, nil
}

func (m *Memory) GetTransmission(ctx context.Context, id string) (models.Transmission, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	transmission, ok := m.data.Transmissions[id]
	return transmission, ok, nil
}

func (m *Memory) UpdateTransmission(ctx context.Context, transmission models.Transmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, ok := m.data.Transmissions[transmission.ID]
	if !ok {
		return ErrNotFound
	}
	m.data.Transmissions[transmission.ID] = transmission
	if err := m.persist(); err != nil {
		m.data.Transmissions[transmission.ID] = previous
		return err
	}
	return nil
}

func (m *Memory) ActiveTransmission(ctx context.Context, ownerID string) (models.Transmission, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active models.Transmission
	found := false
	for _, transmission := range m.data.Transmissions {
		if transmission.OwnerID != ownerID || transmission.Status != models.TransmissionActive {
			continue
		}
		if !found || transmission.StartedAt.After(active.StartedAt) {
			active = transmission
			found = true
		}
	}
	return active, found, nil
}

func (m *Memory) ListTransmissions(ctx context.Context, ownerID string, limit int) ([]models.Transmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transmissions := make([]models.Transmission, 0)
	for _, transmission := range m.data.Transmissions {
		if transmission.OwnerID == ownerID {
			transmissions = append(transmissions, transmission)
		}
	}
	sort.Slice(transmissions, func(i, j int) bool {
		return transmissions[i].StartedAt.After(transmissions[j].StartedAt)
	})
	if limit > 0 && len(transmissions) > limit {
		transmissions = transmissions[:limit]
	}
	return transmissions, nil
}

func (m *Memory) CreateSocialLive(ctx context.Context, session models.SocialLiveSession) (models.SocialLiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.SocialLiveSession{}, err
		}
		session.ID = id
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = m.now()
	}
	m.data.SocialLives[session.ID] = session

	if err := m.persist(); err != nil {
		delete(m.data.SocialLives, session.ID)
		return models.SocialLiveSession{}, err
	}
	return session, nil
}

func (m *Memory) GetSocialLive(ctx context.Context, id string) (models.SocialLiveSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.data.SocialLives[id]
	return session, ok, nil
}

func (m *Memory) UpdateSocialLive(ctx context.Context, session models.SocialLiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, ok := m.data.SocialLives[session.ID]
	if !ok {
		return ErrNotFound
	}
	m.data.SocialLives[session.ID] = session
	if err := m.persist(); err != nil {
		m.data.SocialLives[session.ID] = previous
		return err
	}
	return nil
}

func (m *Memory) DeleteSocialLive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.data.SocialLives[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.data.SocialLives, id)
	if err := m.persist(); err != nil {
		m.data.SocialLives[id] = session
		return err
	}
	return nil
}

func (m *Memory) ListSocialLives(ctx context.Context, ownerID string, limit int) ([]models.SocialLiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]models.SocialLiveSession, 0)
	for _, session := range m.data.SocialLives {
		if session.OwnerID == ownerID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (m *Memory) CreateRecording(ctx context.Context, session models.RecordingSession) (models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.RecordingSession{}, err
		}
		session.ID = id
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = m.now()
	}
	m.data.Recordings[session.ID] = session

	if err := m.persist(); err != nil {
		delete(m.data.Recordings, session.ID)
		return models.RecordingSession{}, err
	}
	return session, nil
}

func (m *Memory) GetRecording(ctx context.Context, id string) (models.RecordingSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.data.Recordings[id]
	return session, ok, nil
}

func (m *Memory) UpdateRecording(ctx context.Context, session models.RecordingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, ok := m.data.Recordings[session.ID]
	if !ok {
		return ErrNotFound
	}
	m.data.Recordings[session.ID] = session
	if err := m.persist(); err != nil {
		m.data.Recordings[session.ID] = previous
		return err
	}
	return nil
}

func (m *Memory) ActiveRecording(ctx context.Context, ownerID string) (models.RecordingSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.data.Recordings {
		if session.OwnerID == ownerID && session.Status == models.RecordingActive {
			return session, true, nil
		}
	}
	return models.RecordingSession{}, false, nil
}

func (m *Memory) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	platforms := make([]models.Platform, 0, len(m.data.Platforms))
	for _, platform := range m.data.Platforms {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i].Name < platforms[j].Name })
	return platforms, nil
}

func (m *Memory) UpsertPlatform(ctx context.Context, platform models.Platform) (models.Platform, error) {
	if platform.ID == "" {
		return models.Platform{}, errors.New("platform id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, existed := m.data.Platforms[platform.ID]
	m.data.Platforms[platform.ID] = platform
	if err := m.persist(); err != nil {
		if existed {
			m.data.Platforms[platform.ID] = previous
		} else {
			delete(m.data.Platforms, platform.ID)
		}
		return models.Platform{}, err
	}
	return platform, nil
}
