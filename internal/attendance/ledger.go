package attendance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"uniattend/internal/ident"
	"uniattend/internal/metrics"
	"uniattend/internal/model"
	"uniattend/internal/queue"
	"uniattend/internal/registry"
	"uniattend/internal/store"
)

// Policy decides what happens when a student is marked twice for the same course and day.
type Policy int

const (
	// PolicyAppend keeps every marking; reports use the latest one per day.
	PolicyAppend Policy = iota
	// PolicyOnePerDay rejects a second marking with model.ErrDuplicateMarking.
	PolicyOnePerDay
)

// ParsePolicy maps "append" / "one-per-day" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return PolicyAppend, nil
	case "one-per-day", "once":
		return PolicyOnePerDay, nil
	}
	return PolicyAppend, fmt.Errorf("%w: unknown attendance policy %q", model.ErrInvalidInput, s)
}

func (p Policy) String() string {
	if p == PolicyOnePerDay {
		return "one-per-day"
	}
	return "append"
}

// MarkInput describes one marking. A zero TimeMarked means now.
type MarkInput struct {
	CourseID   string
	StudentID  string
	Date       time.Time
	TimeMarked time.Time
	Present    bool
}

// Ledger records attendance markings in insertion order.
type Ledger struct {
	mu      sync.RWMutex
	store   store.RecordStore
	policy  Policy
	refs    registry.References
	pub     queue.Publisher
	ids     ident.Allocator
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithPolicy(p Policy) Option { return func(l *Ledger) { l.policy = p } }
func WithReferences(r registry.References) Option { return func(l *Ledger) { l.refs = r } }
func WithPublisher(p queue.Publisher) Option { return func(l *Ledger) { l.pub = p } }
func WithAllocator(a ident.Allocator) Option { return func(l *Ledger) { l.ids = a } }
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }
func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = log } }
func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

// NewLedger creates a ledger over s.
func NewLedger(s store.RecordStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: s,
		ids:   ident.UUID{},
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, fn := range opts {
		fn(l)
	}
	l.log = l.log.Named("ledger")
	return l
}

// Policy returns the duplicate-marking policy in force.
func (l *Ledger) Policy() Policy { return l.policy }

// Mark appends a record. Course membership is not checked.
func (l *Ledger) Mark(ctx context.Context, in MarkInput) (model.AttendanceRecord, error) {
	if in.CourseID == "" || in.StudentID == "" {
		return model.AttendanceRecord{}, fmt.Errorf("%w: course and student are required", model.ErrInvalidInput)
	}
	if in.Date.IsZero() {
		return model.AttendanceRecord{}, fmt.Errorf("%w: date is required", model.ErrInvalidInput)
	}
	if err := l.refs.Course(ctx, in.CourseID); err != nil {
		return model.AttendanceRecord{}, err
	}
	if err := l.refs.Student(ctx, in.StudentID); err != nil {
		return model.AttendanceRecord{}, err
	}
	marked := in.TimeMarked
	if marked.IsZero() {
		marked = l.now()
	}
	rec := model.AttendanceRecord{
		ID:         l.ids.NewID(),
		CourseID:   in.CourseID,
		StudentID:  in.StudentID,
		Date:       model.Day(in.Date),
		TimeMarked: model.Clock(marked),
		Present:    in.Present,
	}

	l.mu.Lock()
	if l.policy == PolicyOnePerDay {
		prior, err := l.store.QueryRecords(ctx, store.RecordQuery{CourseID: rec.CourseID, StudentID: rec.StudentID, Date: rec.Date})
		if err != nil {
			l.mu.Unlock()
			return model.AttendanceRecord{}, err
		}
		if len(prior) > 0 {
			l.mu.Unlock()
			return model.AttendanceRecord{}, fmt.Errorf("%w: %s", model.ErrDuplicateMarking, rec.Key())
		}
	}
	err := l.store.AppendRecord(ctx, rec)
	l.mu.Unlock()
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("append record: %w", err)
	}

	l.metrics.Marked(rec.Present)
	l.log.Info("attendance marked", zap.Stringer("record", rec))
	l.publish(ctx, rec)
	return rec, nil
}

// publish is best-effort; a failed publish never fails the marking.
func (l *Ledger) publish(ctx context.Context, rec model.AttendanceRecord) {
	if l.pub == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypeAttendanceMarked, queue.Marked{
		RecordID:  rec.ID,
		CourseID:  rec.CourseID,
		StudentID: rec.StudentID,
		Date:      rec.Date.Format(model.DateLayout),
		Present:   rec.Present,
		MarkedAt:  l.now().UTC(),
	})
	if err == nil {
		err = l.pub.Publish(ctx, msg)
	}
	if err != nil {
		l.log.Warn("publish attendance event failed", zap.String("record", rec.ID), zap.Error(err))
	}
}

// RecordsForCourse lists every record of the course in insertion order.
func (l *Ledger) RecordsForCourse(ctx context.Context, courseID string) ([]model.AttendanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.QueryRecords(ctx, store.RecordQuery{CourseID: courseID})
}

// RecordsForStudentInCourse lists the student's records in the course in insertion order.
func (l *Ledger) RecordsForStudentInCourse(ctx context.Context, studentID, courseID string) ([]model.AttendanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.QueryRecords(ctx, store.RecordQuery{CourseID: courseID, StudentID: studentID})
}

// Len returns the number of records in the ledger.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	all, err := l.store.QueryRecords(ctx, store.RecordQuery{})
	return len(all), err
}

// SessionRoster returns the effective records of a course on one day.
func (l *Ledger) SessionRoster(ctx context.Context, courseID string, day time.Time) ([]model.AttendanceRecord, error) {
	l.mu.RLock()
	recs, err := l.store.QueryRecords(ctx, store.RecordQuery{CourseID: courseID, Date: day})
	l.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return Effective(recs), nil
}

// Summary computes per-student totals over the effective records of a course.
func (l *Ledger) Summary(ctx context.Context, courseID string) ([]StudentSummary, error) {
	recs, err := l.RecordsForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return Summarize(recs), nil
}
