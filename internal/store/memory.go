package store

import (
	"context"
	"fmt"
	"sync"

	"uniattend/internal/model"
)

// Memory keeps everything in process memory. Safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	users     map[string]model.User
	userOrder []string

	courses     map[string]model.Course
	courseOrder []string

	records []model.AttendanceRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]model.User),
		courses: make(map[string]model.Course),
	}
}

func (m *Memory) SaveUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) UserByID(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return u, nil
}

func (m *Memory) QueryUsers(_ context.Context, q UserQuery) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.User
	for _, id := range m.userOrder {
		if u := m.users[id]; q.Match(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) SaveCourse(_ context.Context, c model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; !ok {
		m.courseOrder = append(m.courseOrder, c.ID)
	}
	m.courses[c.ID] = c.Clone()
	return nil
}

func (m *Memory) CourseByID(_ context.Context, id string) (model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, fmt.Errorf("course %s: %w", id, model.ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *Memory) QueryCourses(_ context.Context, q CourseQuery) ([]model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Course
	for _, id := range m.courseOrder {
		if c := m.courses[id]; q.Match(c) {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (m *Memory) AppendRecord(_ context.Context, r model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *Memory) RecordByID(_ context.Context, id string) (model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return model.AttendanceRecord{}, fmt.Errorf("attendance record %s: %w", id, model.ErrNotFound)
}

func (m *Memory) QueryRecords(_ context.Context, q RecordQuery) ([]model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AttendanceRecord
	for _, r := range m.records {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
