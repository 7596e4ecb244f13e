package store

import (
	"context"

	"go.uber.org/zap"

	"uniattend/internal/ident"
	"uniattend/internal/model"
)

// Logged decorates a Store with a debug line per persistence call.
type Logged struct {
	next Store
	log  *zap.Logger
}

// WithLogging wraps s; a nil logger returns s unchanged.
func WithLogging(s Store, log *zap.Logger) Store {
	if log == nil {
		return s
	}
	return &Logged{next: s, log: log.Named("store")}
}

func (l *Logged) SaveUser(ctx context.Context, u model.User) error {
	l.log.Debug("saving user", zap.String("username", u.Username), zap.String("id", ident.Short(u.ID)))
	return l.next.SaveUser(ctx, u)
}

func (l *Logged) UserByID(ctx context.Context, id string) (model.User, error) {
	l.log.Debug("fetching user", zap.String("id", id))
	return l.next.UserByID(ctx, id)
}

func (l *Logged) QueryUsers(ctx context.Context, q UserQuery) ([]model.User, error) {
	l.log.Debug("querying users", zap.String("username", q.Username), zap.String("email", q.Email), zap.String("role", string(q.Role)))
	return l.next.QueryUsers(ctx, q)
}

func (l *Logged) SaveCourse(ctx context.Context, c model.Course) error {
	l.log.Debug("saving course", zap.String("code", c.Code), zap.Int("students", len(c.StudentIDs)))
	return l.next.SaveCourse(ctx, c)
}

func (l *Logged) CourseByID(ctx context.Context, id string) (model.Course, error) {
	l.log.Debug("fetching course", zap.String("id", id))
	return l.next.CourseByID(ctx, id)
}

func (l *Logged) QueryCourses(ctx context.Context, q CourseQuery) ([]model.Course, error) {
	l.log.Debug("querying courses",
		zap.String("code", q.Code), zap.String("instructor", q.InstructorID), zap.String("student", q.StudentID))
	return l.next.QueryCourses(ctx, q)
}

func (l *Logged) AppendRecord(ctx context.Context, r model.AttendanceRecord) error {
	l.log.Debug("saving attendance record",
		zap.String("student", ident.Short(r.StudentID)), zap.String("date", r.Date.Format(model.DateLayout)))
	return l.next.AppendRecord(ctx, r)
}

func (l *Logged) RecordByID(ctx context.Context, id string) (model.AttendanceRecord, error) {
	l.log.Debug("fetching attendance record", zap.String("id", id))
	return l.next.RecordByID(ctx, id)
}

func (l *Logged) QueryRecords(ctx context.Context, q RecordQuery) ([]model.AttendanceRecord, error) {
	l.log.Debug("querying attendance", zap.String("course", q.CourseID), zap.String("student", q.StudentID))
	return l.next.QueryRecords(ctx, q)
}

func (l *Logged) Close() error { return l.next.Close() }
