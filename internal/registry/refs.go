package registry

import (
	"context"
	"errors"
	"fmt"

	"uniattend/internal/model"
	"uniattend/internal/store"
)

// References validates foreign keys when strict checking is enabled.
// A zero References (Strict=false) accepts every id, which is the lenient default.
type References struct {
	Strict  bool
	Users   store.UserStore
	Courses store.CourseStore
}

// Instructor checks that id names an INSTRUCTOR user.
func (r References) Instructor(ctx context.Context, id string) error {
	return r.userWithRole(ctx, id, model.RoleInstructor)
}

// Student checks that id names a STUDENT user.
func (r References) Student(ctx context.Context, id string) error {
	return r.userWithRole(ctx, id, model.RoleStudent)
}

// Course checks that id names an existing course.
func (r References) Course(ctx context.Context, id string) error {
	if !r.Strict || r.Courses == nil {
		return nil
	}
	if _, err := r.Courses.CourseByID(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: course %s does not exist", model.ErrReference, id)
		}
		return err
	}
	return nil
}

func (r References) userWithRole(ctx context.Context, id string, role model.Role) error {
	if !r.Strict || r.Users == nil {
		return nil
	}
	u, err := r.Users.UserByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: user %s does not exist", model.ErrReference, id)
	}
	if err != nil {
		return err
	}
	if u.Role != role {
		return fmt.Errorf("%w: user %s is %s, want %s", model.ErrReference, id, u.Role, role)
	}
	return nil
}
