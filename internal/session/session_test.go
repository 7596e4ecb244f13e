package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniattend/internal/auth"
	"uniattend/internal/ident"
	"uniattend/internal/model"
)

type fakeUsers map[string]model.User

func (f fakeUsers) Authenticate(_ context.Context, login, secret string) (model.User, error) {
	u, ok := f[login]
	if !ok || secret != "password123" {
		return model.User{}, model.ErrAuthentication
	}
	return u, nil
}

func newManager(t *testing.T) (*Manager, *Memory) {
	t.Helper()
	users := fakeUsers{
		"johndoe":   {ID: "u-john", Username: "johndoe", Role: model.RoleStudent},
		"profsmith": {ID: "u-prof", Username: "profsmith", Role: model.RoleInstructor},
	}
	store := NewMemory()
	signer := auth.NewSigner("uniattend-test", "test-key", time.Hour)
	return NewManager(users, signer, store, &ident.Sequence{Prefix: "sess"}, nil, nil), store
}

func TestLoginResolveLogout(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	g, err := m.Login(ctx, "johndoe", "password123")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", g.Session.ID)
	assert.Equal(t, "u-john", g.User.ID)
	assert.NotEmpty(t, g.Token.Value)

	p, err := m.Resolve(ctx, g.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{SessionID: "sess-1", UserID: "u-john", Role: model.RoleStudent}, p)

	require.NoError(t, m.Logout(ctx, g.Session.ID))
	_, err = m.Resolve(ctx, g.Token.Value)
	assert.ErrorIs(t, err, model.ErrAuthentication)

	assert.NoError(t, m.Logout(ctx, g.Session.ID))
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	a, err := m.Login(ctx, "johndoe", "password123")
	require.NoError(t, err)
	b, err := m.Login(ctx, "profsmith", "password123")
	require.NoError(t, err)
	c, err := m.Login(ctx, "johndoe", "password123")
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx, a.Session.ID))

	_, err = m.Resolve(ctx, a.Token.Value)
	assert.ErrorIs(t, err, model.ErrAuthentication)
	pb, err := m.Resolve(ctx, b.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, model.RoleInstructor, pb.Role)
	pc, err := m.Resolve(ctx, c.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, "u-john", pc.UserID)
}

func TestLoginFailure(t *testing.T) {
	m, store := newManager(t)
	_, err := m.Login(context.Background(), "johndoe", "wrong")
	assert.ErrorIs(t, err, model.ErrAuthentication)
	assert.Empty(t, store.sessions)
}

func TestResolveRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	other := auth.NewSigner("uniattend-test", "other-key", time.Hour)
	tok, err := other.Issue("sess-1", "u-john", model.RoleStudent)
	require.NoError(t, err)
	_, err = m.Resolve(ctx, tok.Value)
	assert.ErrorIs(t, err, model.ErrAuthentication)

	_, err = m.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, model.ErrAuthentication)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)
	s := NewMemory()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, Session{ID: "a", ExpiresAt: now.Add(time.Minute)}))
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "uniattend:session:abc", sessionKey("abc"))
}
