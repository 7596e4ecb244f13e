package store

import (
	"context"
	"time"

	"uniattend/internal/model"
)

// UserQuery filters users; zero fields are ignored.
type UserQuery struct {
	Username string
	Email    string
	Role     model.Role
}

// Match reports whether u satisfies every set field.
func (q UserQuery) Match(u model.User) bool {
	if q.Username != "" && u.Username != q.Username {
		return false
	}
	if q.Email != "" && u.Email != q.Email {
		return false
	}
	if q.Role != "" && u.Role != q.Role {
		return false
	}
	return true
}

// CourseQuery filters courses; zero fields are ignored.
type CourseQuery struct {
	Code         string
	InstructorID string
	StudentID    string
}

// Match reports whether c satisfies every set field.
func (q CourseQuery) Match(c model.Course) bool {
	if q.Code != "" && c.Code != q.Code {
		return false
	}
	if q.InstructorID != "" && c.InstructorID != q.InstructorID {
		return false
	}
	if q.StudentID != "" && !c.HasStudent(q.StudentID) {
		return false
	}
	return true
}

// RecordQuery filters attendance records; zero fields are ignored.
type RecordQuery struct {
	CourseID  string
	StudentID string
	Date      time.Time
}

// Match reports whether r satisfies every set field.
func (q RecordQuery) Match(r model.AttendanceRecord) bool {
	if q.CourseID != "" && r.CourseID != q.CourseID {
		return false
	}
	if q.StudentID != "" && r.StudentID != q.StudentID {
		return false
	}
	if !q.Date.IsZero() && !model.Day(q.Date).Equal(model.Day(r.Date)) {
		return false
	}
	return true
}

// UserStore persists users. Lookups that miss return model.ErrNotFound.
type UserStore interface {
	SaveUser(ctx context.Context, u model.User) error
	UserByID(ctx context.Context, id string) (model.User, error)
	QueryUsers(ctx context.Context, q UserQuery) ([]model.User, error)
}

// CourseStore persists courses together with their ordered enrollment list.
type CourseStore interface {
	SaveCourse(ctx context.Context, c model.Course) error
	CourseByID(ctx context.Context, id string) (model.Course, error)
	QueryCourses(ctx context.Context, q CourseQuery) ([]model.Course, error)
}

// RecordStore is an append-only log of attendance records. Queries return insertion order.
type RecordStore interface {
	AppendRecord(ctx context.Context, r model.AttendanceRecord) error
	RecordByID(ctx context.Context, id string) (model.AttendanceRecord, error)
	QueryRecords(ctx context.Context, q RecordQuery) ([]model.AttendanceRecord, error)
}

// Store bundles every entity store behind one backend.
type Store interface {
	UserStore
	CourseStore
	RecordStore
	Close() error
}
