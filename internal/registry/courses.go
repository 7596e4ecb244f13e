package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"uniattend/internal/ident"
	"uniattend/internal/model"
	"uniattend/internal/store"
)

// Courses owns course records and their enrollment lists.
type Courses struct {
	mu    sync.RWMutex
	store store.CourseStore
	refs  References
	ids   ident.Allocator
	now   func() time.Time
	log   *zap.Logger
}

// NewCourses creates a course registry over s.
func NewCourses(s store.CourseStore, opts ...Option) *Courses {
	o := buildOptions(opts)
	return &Courses{
		store: s,
		refs:  o.refs,
		ids:   o.ids,
		now:   o.now,
		log:   o.log.Named("courses"),
	}
}

// Create adds a course owned by instructorID. The instructor is only checked
// when strict references are on.
func (r *Courses) Create(ctx context.Context, code, name, instructorID string) (model.Course, error) {
	if err := r.refs.Instructor(ctx, instructorID); err != nil {
		return model.Course{}, err
	}
	c := model.Course{
		ID:           r.ids.NewID(),
		Code:         strings.TrimSpace(code),
		Name:         strings.TrimSpace(name),
		InstructorID: instructorID,
		StudentIDs:   []string{},
		CreatedAt:    r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveCourse(ctx, c); err != nil {
		return model.Course{}, fmt.Errorf("save course: %w", err)
	}
	r.log.Info("course created", zap.String("code", c.Code), zap.String("instructor", ident.Short(instructorID)))
	return c, nil
}

// CourseUpdate changes the non-nil fields of a course.
type CourseUpdate struct {
	Code         *string
	Name         *string
	InstructorID *string
}

// Update applies the set fields of upd. A new instructor is checked like one passed to Create.
func (r *Courses) Update(ctx context.Context, id string, upd CourseUpdate) (model.Course, error) {
	if upd.InstructorID != nil {
		if err := r.refs.Instructor(ctx, *upd.InstructorID); err != nil {
			return model.Course{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.store.CourseByID(ctx, id)
	if err != nil {
		return model.Course{}, err
	}
	if upd.Code != nil {
		if c.Code = strings.TrimSpace(*upd.Code); c.Code == "" {
			return model.Course{}, fmt.Errorf("%w: course code required", model.ErrInvalidInput)
		}
	}
	if upd.Name != nil {
		if c.Name = strings.TrimSpace(*upd.Name); c.Name == "" {
			return model.Course{}, fmt.Errorf("%w: course name required", model.ErrInvalidInput)
		}
	}
	if upd.InstructorID != nil {
		if *upd.InstructorID == "" {
			return model.Course{}, fmt.Errorf("%w: instructor required", model.ErrInvalidInput)
		}
		c.InstructorID = *upd.InstructorID
	}
	if err := r.store.SaveCourse(ctx, c); err != nil {
		return model.Course{}, fmt.Errorf("save course: %w", err)
	}
	r.log.Info("course updated", zap.String("code", c.Code), zap.String("instructor", ident.Short(c.InstructorID)))
	return c, nil
}

// Enroll adds studentID to the course. Enrolling an existing member is a no-op.
func (r *Courses) Enroll(ctx context.Context, courseID, studentID string) (model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.store.CourseByID(ctx, courseID)
	if err != nil {
		return model.Course{}, err
	}
	if c.HasStudent(studentID) {
		return c, nil
	}
	if err := r.refs.Student(ctx, studentID); err != nil {
		return model.Course{}, err
	}
	c.StudentIDs = append(c.StudentIDs, studentID)
	if err := r.store.SaveCourse(ctx, c); err != nil {
		return model.Course{}, fmt.Errorf("save course: %w", err)
	}
	r.log.Debug("student enrolled", zap.String("course", c.Code), zap.String("student", ident.Short(studentID)))
	return c, nil
}

// Unenroll removes studentID from the course. Removing a non-member is a no-op.
func (r *Courses) Unenroll(ctx context.Context, courseID, studentID string) (model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.store.CourseByID(ctx, courseID)
	if err != nil {
		return model.Course{}, err
	}
	if !c.HasStudent(studentID) {
		return c, nil
	}
	kept := make([]string, 0, len(c.StudentIDs)-1)
	for _, id := range c.StudentIDs {
		if id != studentID {
			kept = append(kept, id)
		}
	}
	c.StudentIDs = kept
	if err := r.store.SaveCourse(ctx, c); err != nil {
		return model.Course{}, fmt.Errorf("save course: %w", err)
	}
	r.log.Debug("student unenrolled", zap.String("course", c.Code), zap.String("student", ident.Short(studentID)))
	return c, nil
}

// Lookup returns the course with id.
func (r *Courses) Lookup(ctx context.Context, id string) (model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.CourseByID(ctx, id)
}

// ByCode returns the first course with code, in creation order.
func (r *Courses) ByCode(ctx context.Context, code string) (model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, err := r.store.QueryCourses(ctx, store.CourseQuery{Code: code})
	if err != nil {
		return model.Course{}, err
	}
	if len(cs) == 0 {
		return model.Course{}, fmt.Errorf("course %s: %w", code, model.ErrNotFound)
	}
	return cs[0], nil
}

// CoursesByInstructor lists courses owned by instructorID.
func (r *Courses) CoursesByInstructor(ctx context.Context, instructorID string) ([]model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.QueryCourses(ctx, store.CourseQuery{InstructorID: instructorID})
}

// CoursesByStudent lists courses studentID is enrolled in.
func (r *Courses) CoursesByStudent(ctx context.Context, studentID string) ([]model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.QueryCourses(ctx, store.CourseQuery{StudentID: studentID})
}

// All lists every course.
func (r *Courses) All(ctx context.Context) ([]model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.QueryCourses(ctx, store.CourseQuery{})
}
