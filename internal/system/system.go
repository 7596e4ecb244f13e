package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/ident"
	"uniattend/internal/metrics"
	"uniattend/internal/queue"
	"uniattend/internal/registry"
	"uniattend/internal/session"
	"uniattend/internal/store"
)

// Deps are the collaborators a System is built from. Only Store and Signer are required.
type Deps struct {
	Store     store.Store
	Sessions  session.Store
	Signer    *auth.Signer
	Hasher    auth.Hasher
	Publisher queue.Publisher
	Policy    attendance.Policy
	Strict    bool
	IDs       ident.Allocator
	Now       func() time.Time
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// System holds the registries, the ledger and the session manager over one store.
type System struct {
	store    store.Store
	users    *registry.Users
	courses  *registry.Courses
	ledger   *attendance.Ledger
	sessions *session.Manager
	log      *zap.Logger
}

// New wires a System from d.
func New(d Deps) *System {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.IDs == nil {
		d.IDs = ident.UUID{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Hasher == nil {
		d.Hasher = auth.NewBcrypt(0)
	}
	if d.Sessions == nil {
		d.Sessions = session.NewMemory()
	}
	refs := registry.References{Strict: d.Strict, Users: d.Store, Courses: d.Store}

	regOpts := []registry.Option{
		registry.WithAllocator(d.IDs),
		registry.WithHasher(d.Hasher),
		registry.WithClock(d.Now),
		registry.WithLogger(d.Log),
		registry.WithMetrics(d.Metrics),
		registry.WithReferences(refs),
	}
	users := registry.NewUsers(d.Store, regOpts...)
	ledgerOpts := []attendance.Option{
		attendance.WithPolicy(d.Policy),
		attendance.WithReferences(refs),
		attendance.WithAllocator(d.IDs),
		attendance.WithClock(d.Now),
		attendance.WithLogger(d.Log),
		attendance.WithMetrics(d.Metrics),
	}
	if d.Publisher != nil {
		ledgerOpts = append(ledgerOpts, attendance.WithPublisher(d.Publisher))
	}

	return &System{
		store:    d.Store,
		users:    users,
		courses:  registry.NewCourses(d.Store, regOpts...),
		ledger:   attendance.NewLedger(d.Store, ledgerOpts...),
		sessions: session.NewManager(users, d.Signer, d.Sessions, d.IDs, d.Log, d.Metrics),
		log:      d.Log.Named("system"),
	}
}

func (s *System) Users() *registry.Users { return s.users }
func (s *System) Courses() *registry.Courses { return s.courses }
func (s *System) Ledger() *attendance.Ledger { return s.ledger }
func (s *System) Sessions() *session.Manager { return s.sessions }

// Close releases the store.
func (s *System) Close() error {
	return s.store.Close()
}

// Ready reports whether the store answers queries.
func (s *System) Ready(ctx context.Context) bool {
	_, err := s.users.Count(ctx)
	return err == nil
}
