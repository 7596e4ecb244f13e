package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"uniattend/internal/auth"
	"uniattend/internal/ident"
	"uniattend/internal/metrics"
	"uniattend/internal/model"
)

// Session is one logged-in client. Any number may be live at once, per user too.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Store keeps live sessions. Get on a missing or expired id returns model.ErrNotFound.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// Authenticator checks a login and secret.
type Authenticator interface {
	Authenticate(ctx context.Context, login, secret string) (model.User, error)
}

// Grant is the result of a successful login.
type Grant struct {
	Session Session
	Token   auth.Token
	User    model.User
}

// Manager issues, resolves and revokes sessions.
type Manager struct {
	users   Authenticator
	signer  *auth.Signer
	store   Store
	ids     ident.Allocator
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewManager wires a Manager. A nil log or ids gets a default.
func NewManager(users Authenticator, signer *auth.Signer, store Store, ids ident.Allocator, log *zap.Logger, m *metrics.Metrics) *Manager {
	if ids == nil {
		ids = ident.UUID{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{users: users, signer: signer, store: store, ids: ids, now: time.Now, log: log.Named("sessions"), metrics: m}
}

// Login authenticates and opens a new session.
func (m *Manager) Login(ctx context.Context, login, secret string) (Grant, error) {
	u, err := m.users.Authenticate(ctx, login, secret)
	m.metrics.Login(err == nil)
	if err != nil {
		m.log.Info("login failed", zap.String("login", login))
		return Grant{}, err
	}
	s := Session{ID: m.ids.NewID(), UserID: u.ID, Role: u.Role, CreatedAt: m.now().UTC()}
	tok, err := m.signer.Issue(s.ID, u.ID, u.Role)
	if err != nil {
		return Grant{}, fmt.Errorf("issue token: %w", err)
	}
	s.ExpiresAt = tok.ExpiresAt.UTC()
	if err := m.store.Put(ctx, s); err != nil {
		return Grant{}, fmt.Errorf("store session: %w", err)
	}
	m.log.Info("login", zap.String("username", u.Username), zap.String("session", ident.Short(s.ID)))
	return Grant{Session: s, Token: tok, User: u}, nil
}

// Resolve validates a token and checks its session is still live.
func (m *Manager) Resolve(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %v", model.ErrAuthentication, err)
	}
	s, err := m.store.Get(ctx, claims.ID)
	if errors.Is(err, model.ErrNotFound) {
		return auth.Principal{}, fmt.Errorf("%w: session ended", model.ErrAuthentication)
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if s.UserID != claims.Subject {
		return auth.Principal{}, fmt.Errorf("%w: session subject mismatch", model.ErrAuthentication)
	}
	return auth.Principal{SessionID: s.ID, UserID: s.UserID, Role: s.Role}, nil
}

// Logout ends a session. Ending an unknown session is not an error.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.log.Info("logout", zap.String("session", ident.Short(sessionID)))
	return nil
}

// Memory is an in-process Store. Expired sessions are dropped on read.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{sessions: map[string]Session{}, now: time.Now}
}

func (m *Memory) Put(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, model.ErrNotFound
	}
	if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return Session{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Redis stores sessions as JSON under uniattend:session:<id>, expiring with the token.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func sessionKey(id string) string { return "uniattend:session:" + id }

func (r *Redis) Put(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return nil
		}
	}
	return r.client.Set(ctx, sessionKey(s.ID), raw, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, model.ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}
