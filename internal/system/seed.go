package system

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"uniattend/internal/attendance"
	"uniattend/internal/model"
	"uniattend/internal/registry"
)

//go:embed seed.yaml
var seedYAML []byte

// Fixture is demo data applied through the public registry and ledger operations.
type Fixture struct {
	Users    []FixtureUser    `yaml:"users" validate:"required,dive"`
	Courses  []FixtureCourse  `yaml:"courses" validate:"dive"`
	Markings []FixtureMarking `yaml:"markings" validate:"dive"`
}

type FixtureUser struct {
	Username      string `yaml:"username" validate:"required"`
	Email         string `yaml:"email" validate:"required,email"`
	Password      string `yaml:"password" validate:"required"`
	Role          string `yaml:"role" validate:"required,oneof=STUDENT INSTRUCTOR"`
	FullName      string `yaml:"full_name"`
	StudentNumber string `yaml:"student_number"`
	FacultyNumber string `yaml:"faculty_number"`
}

type FixtureCourse struct {
	Code       string   `yaml:"code" validate:"required"`
	Name       string   `yaml:"name" validate:"required"`
	Instructor string   `yaml:"instructor" validate:"required"`
	Students   []string `yaml:"students"`
}

type FixtureMarking struct {
	Course    string `yaml:"course" validate:"required"`
	Student   string `yaml:"student" validate:"required"`
	DayOffset int    `yaml:"day_offset" validate:"lte=0"`
	At        string `yaml:"at"`
	Present   bool   `yaml:"present"`
}

// DemoFixture returns the embedded demo data.
func DemoFixture() (Fixture, error) {
	return ParseFixture(seedYAML)
}

// ParseFixture decodes and validates a YAML fixture. Unknown keys are rejected.
func ParseFixture(raw []byte) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("%w: decode fixture: %v", model.ErrInvalidInput, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return Fixture{}, fmt.Errorf("%w: fixture: %v", model.ErrInvalidInput, err)
	}
	return f, nil
}

// Seed applies the demo fixture relative to today. It does nothing and returns
// false when users already exist.
func (s *System) Seed(ctx context.Context, today time.Time) (bool, error) {
	f, err := DemoFixture()
	if err != nil {
		return false, err
	}
	return s.Apply(ctx, f, today)
}

// Apply loads f into an empty system.
func (s *System) Apply(ctx context.Context, f Fixture, today time.Time) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.log.Info("seed skipped, users already present", zap.Int("users", n))
		return false, nil
	}

	users := make(map[string]model.User, len(f.Users))
	for _, fu := range f.Users {
		role, err := model.ParseRole(fu.Role)
		if err != nil {
			return false, err
		}
		u, err := s.users.Register(ctx, registry.RegisterInput{
			Username:      fu.Username,
			Email:         fu.Email,
			Password:      fu.Password,
			Role:          role,
			FullName:      fu.FullName,
			StudentNumber: fu.StudentNumber,
			FacultyNumber: fu.FacultyNumber,
		})
		if err != nil {
			return false, fmt.Errorf("seed user %s: %w", fu.Username, err)
		}
		users[u.Username] = u
	}

	courses := make(map[string]model.Course, len(f.Courses))
	for _, fc := range f.Courses {
		prof, ok := users[fc.Instructor]
		if !ok {
			return false, fmt.Errorf("%w: course %s names unknown instructor %s", model.ErrInvalidInput, fc.Code, fc.Instructor)
		}
		c, err := s.courses.Create(ctx, fc.Code, fc.Name, prof.ID)
		if err != nil {
			return false, fmt.Errorf("seed course %s: %w", fc.Code, err)
		}
		for _, name := range fc.Students {
			stu, ok := users[name]
			if !ok {
				return false, fmt.Errorf("%w: course %s names unknown student %s", model.ErrInvalidInput, fc.Code, name)
			}
			if c, err = s.courses.Enroll(ctx, c.ID, stu.ID); err != nil {
				return false, fmt.Errorf("seed enroll %s in %s: %w", name, fc.Code, err)
			}
		}
		courses[c.Code] = c
	}

	day := model.Day(today)
	for _, fm := range f.Markings {
		c, ok := courses[fm.Course]
		if !ok {
			return false, fmt.Errorf("%w: marking names unknown course %s", model.ErrInvalidInput, fm.Course)
		}
		stu, ok := users[fm.Student]
		if !ok {
			return false, fmt.Errorf("%w: marking names unknown student %s", model.ErrInvalidInput, fm.Student)
		}
		var at time.Time
		if fm.At != "" {
			if at, err = model.ParseClock(fm.At); err != nil {
				return false, err
			}
		}
		_, err := s.ledger.Mark(ctx, attendance.MarkInput{
			CourseID:   c.ID,
			StudentID:  stu.ID,
			Date:       day.AddDate(0, 0, fm.DayOffset),
			TimeMarked: at,
			Present:    fm.Present,
		})
		if err != nil {
			return false, fmt.Errorf("seed marking %s/%s: %w", fm.Course, fm.Student, err)
		}
	}
	s.log.Info("seeded demo data",
		zap.Int("users", len(f.Users)), zap.Int("courses", len(f.Courses)), zap.Int("markings", len(f.Markings)))
	return true, nil
}
