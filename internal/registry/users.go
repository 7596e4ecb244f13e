package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"uniattend/internal/auth"
	"uniattend/internal/ident"
	"uniattend/internal/metrics"
	"uniattend/internal/model"
	"uniattend/internal/store"
)

var validate = validator.New()

// RegisterInput describes a new account.
type RegisterInput struct {
	Username      string     `validate:"required,max=64"`
	Email         string     `validate:"required,email"`
	Password      string     `validate:"required,min=6,max=72"`
	Role          model.Role `validate:"required,oneof=STUDENT INSTRUCTOR"`
	FullName      string     `validate:"max=128"`
	StudentNumber string     `validate:"max=32"`
	FacultyNumber string     `validate:"max=32"`
}

// ProfileUpdate changes the non-nil fields of a user.
type ProfileUpdate struct {
	Username      *string
	Email         *string
	FullName      *string
	StudentNumber *string
	FacultyNumber *string
}

// Users owns user records: registration, credential checks and profile edits.
// Writes are serialized so the uniqueness check and the save happen atomically.
type Users struct {
	mu      sync.RWMutex
	store   store.UserStore
	ids     ident.Allocator
	hasher  auth.Hasher
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a registry.
type Option func(*options)

type options struct {
	ids     ident.Allocator
	hasher  auth.Hasher
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
	refs    References
}

func WithAllocator(a ident.Allocator) Option { return func(o *options) { o.ids = a } }
func WithHasher(h auth.Hasher) Option { return func(o *options) { o.hasher = h } }
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }
func WithReferences(r References) Option { return func(o *options) { o.refs = r } }

func buildOptions(opts []Option) options {
	o := options{
		ids:    ident.UUID{},
		hasher: auth.NewBcrypt(0),
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// NewUsers creates a user registry over s.
func NewUsers(s store.UserStore, opts ...Option) *Users {
	o := buildOptions(opts)
	return &Users{
		store:   s,
		ids:     o.ids,
		hasher:  o.hasher,
		now:     o.now,
		log:     o.log.Named("users"),
		metrics: o.metrics,
	}
}

// Register creates an account. Username and email must both be unused (exact, case-sensitive match).
func (r *Users) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureUnique(ctx, "", in.Username, in.Email); err != nil {
		r.log.Info("registration rejected", zap.String("username", in.Username), zap.Error(err))
		return model.User{}, err
	}
	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		ID:           r.ids.NewID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		FullName:     in.FullName,
		CreatedAt:    r.now().UTC(),
	}
	switch in.Role {
	case model.RoleStudent:
		u.StudentNumber = in.StudentNumber
	case model.RoleInstructor:
		u.FacultyNumber = in.FacultyNumber
	}
	if err := r.store.SaveUser(ctx, u); err != nil {
		return model.User{}, fmt.Errorf("save user: %w", err)
	}
	r.metrics.Registered(string(u.Role))
	r.log.Info("user registered", zap.String("username", u.Username), zap.String("role", string(u.Role)))
	return u, nil
}

// ensureUnique fails when username or email belongs to a user other than selfID. Caller holds mu.
func (r *Users) ensureUnique(ctx context.Context, selfID, username, email string) error {
	for _, q := range []store.UserQuery{{Username: username}, {Email: email}} {
		if q.Username == "" && q.Email == "" {
			continue
		}
		existing, err := r.store.QueryUsers(ctx, q)
		if err != nil {
			return err
		}
		for _, u := range existing {
			if u.ID != selfID {
				return model.ErrDuplicateIdentity
			}
		}
	}
	return nil
}

// Authenticate checks a username-or-email and secret. It holds no session state;
// see package session for that.
func (r *Users) Authenticate(ctx context.Context, login, secret string) (model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || secret == "" {
		return model.User{}, model.ErrAuthentication
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byName, err := r.store.QueryUsers(ctx, store.UserQuery{Username: login})
	if err != nil {
		return model.User{}, err
	}
	byEmail, err := r.store.QueryUsers(ctx, store.UserQuery{Email: login})
	if err != nil {
		return model.User{}, err
	}
	for _, u := range append(byName, byEmail...) {
		if r.hasher.Verify(u.PasswordHash, secret) {
			return u, nil
		}
	}
	return model.User{}, model.ErrAuthentication
}

// Lookup returns the user with id.
func (r *Users) Lookup(ctx context.Context, id string) (model.User, error) {
	return r.store.UserByID(ctx, id)
}

// ByRole lists users with role, in registration order.
func (r *Users) ByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return r.store.QueryUsers(ctx, store.UserQuery{Role: role})
}

// Count returns the number of registered users.
func (r *Users) Count(ctx context.Context) (int, error) {
	all, err := r.store.QueryUsers(ctx, store.UserQuery{})
	return len(all), err
}

// UpdateProfile applies the set fields of upd, keeping username and email unique.
func (r *Users) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.store.UserByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	var newName, newEmail string
	if upd.Username != nil && strings.TrimSpace(*upd.Username) != u.Username {
		newName = strings.TrimSpace(*upd.Username)
		if err := validate.Var(newName, "required,max=64"); err != nil {
			return model.User{}, fmt.Errorf("%w: username: %v", model.ErrInvalidInput, err)
		}
	}
	if upd.Email != nil && strings.TrimSpace(*upd.Email) != u.Email {
		newEmail = strings.TrimSpace(*upd.Email)
		if err := validate.Var(newEmail, "required,email"); err != nil {
			return model.User{}, fmt.Errorf("%w: email: %v", model.ErrInvalidInput, err)
		}
	}
	if err := r.ensureUnique(ctx, u.ID, newName, newEmail); err != nil {
		return model.User{}, err
	}
	if newName != "" {
		u.Username = newName
	}
	if newEmail != "" {
		u.Email = newEmail
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.StudentNumber != nil {
		u.StudentNumber = *upd.StudentNumber
	}
	if upd.FacultyNumber != nil {
		u.FacultyNumber = *upd.FacultyNumber
	}
	if err := r.store.SaveUser(ctx, u); err != nil {
		return model.User{}, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the credential after verifying the current one.
func (r *Users) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := validate.Var(next, "required,min=6,max=72"); err != nil {
		return fmt.Errorf("%w: new password: %v", model.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.store.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if !r.hasher.Verify(u.PasswordHash, current) {
		return model.ErrAuthentication
	}
	hash, err := r.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	return r.store.SaveUser(ctx, u)
}
