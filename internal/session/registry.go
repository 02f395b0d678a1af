package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/timeutil"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

var logf = monitoring.Prefixed("Session")

// StreamRun is the audit record of one stream invocation.
type StreamRun struct {
	SessionID   string    `json:"session_id"`
	ClientID    string    `json:"client_id"`
	Transport   string    `json:"transport"`
	FPS         float64   `json:"fps"`
	TotalFrames int       `json:"total_frames"`
	FramesSent  int       `json:"frames_sent"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// History receives audit records. Failures are logged and never affect
// the session or stream that produced them.
type History interface {
	RecordSession(ctx context.Context, info Info) error
	RecordStreamRun(ctx context.Context, run StreamRun) error
}

// Registry is the process-wide store of sessions. Its only operations are
// Create, Get and Evict plus the TTL janitor.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	clock       timeutil.Clock
	ttl         time.Duration
	maxSessions int
	history     History
	newID       func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects the clock used for timestamps and expiry.
func WithClock(c timeutil.Clock) Option { return func(r *Registry) { r.clock = c } }

// WithTTL evicts sessions idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option { return func(r *Registry) { r.ttl = ttl } }

// WithMaxSessions caps the registry size. Zero means unbounded.
func WithMaxSessions(n int) Option { return func(r *Registry) { r.maxSessions = n } }

// WithHistory records session creation and stream runs.
func WithHistory(h History) Option { return func(r *Registry) { r.history = h } }

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		clock:    timeutil.RealClock{},
		newID:    newSessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newSessionID() string {
	return "sid_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Create stores a new session with status "created" and returns its id.
// Missing or inconsistent inputs are reported as *ConfigError.
func (r *Registry) Create(cfg trajectory.SessionConfig, m *trajectory.MapData, frames trajectory.FrameBuffer, participantCount int) (string, error) {
	if m == nil {
		return "", NewConfigError("map_data", "map data is required")
	}
	if frames == nil {
		return "", NewConfigError("frames", "frame buffer is required")
	}
	if participantCount < 0 {
		return "", NewConfigError("participant_count", "must not be negative, got %d", participantCount)
	}
	if err := cfg.Check(); err != nil {
		return "", &ConfigError{Field: "config", Err: err}
	}
	if err := trajectory.VerifyStaticAttributes(frames); err != nil {
		return "", &ConfigError{Field: "frames", Err: err}
	}
	cfg = cfg.Normalized()

	now := r.clock.Now()
	s := &Session{
		Config:           cfg,
		Map:              m,
		Frames:           frames,
		ParticipantCount: participantCount,
		Speed:            trajectory.Summarize(frames),
		CreatedAt:        now,
		status:           StatusCreated,
		lastAccess:       now,
	}

	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		if !r.evictOldestIdleLocked() {
			r.mu.Unlock()
			return "", &ConfigError{Field: "sessions", Err: ErrRegistryFull}
		}
	}
	for {
		s.ID = r.newID()
		if _, taken := r.sessions[s.ID]; !taken {
			break
		}
	}
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	monitoring.RecordSessionCreated()
	monitoring.SetSessionsActive(n)
	logf("created %s: %d frames, %d participants", s.ID, len(frames), participantCount)

	if r.history != nil {
		if err := r.history.RecordSession(context.Background(), s.Info()); err != nil {
			logf("failed to record session %s: %v", s.ID, err)
		}
	}
	return s.ID, nil
}

// Get returns the session or ErrSessionNotFound. A hit refreshes the
// session's idle timer.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.clock.Now())
	return s, nil
}

// Evict removes a session. Streams already delivering it run to the end.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		monitoring.RecordSessionEvicted("explicit")
		monitoring.SetSessionsActive(n)
		logf("evicted %s", id)
	}
	return ok
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns session snapshots ordered by creation time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// EvictExpired removes idle sessions older than the TTL and returns how many
// were removed. Streaming sessions are never expired.
func (r *Registry) EvictExpired() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.clock.Now()
	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.ActiveStreams() == 0 && now.Sub(s.LastAccess()) > r.ttl {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, id := range expired {
		monitoring.RecordSessionEvicted("ttl")
		logf("expired %s after %v idle", id, r.ttl)
	}
	if len(expired) > 0 {
		monitoring.SetSessionsActive(n)
	}
	return len(expired)
}

// RunJanitor calls EvictExpired every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || r.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C():
			r.EvictExpired()
		}
	}
}

func (r *Registry) evictOldestIdleLocked() bool {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, s := range r.sessions {
		if s.ActiveStreams() > 0 {
			continue
		}
		la := s.LastAccess()
		if oldestID == "" || la.Before(oldest) {
			oldestID, oldest = id, la
		}
	}
	if oldestID == "" {
		return false
	}
	delete(r.sessions, oldestID)
	monitoring.RecordSessionEvicted("capacity")
	logf("evicted %s to make room (max %d sessions)", oldestID, r.maxSessions)
	return true
}

func (r *Registry) recordRun(run StreamRun) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordStreamRun(context.Background(), run); err != nil {
		logf("failed to record stream run for %s: %v", run.SessionID, err)
	}
}
