package model

import (
	"fmt"
	"strings"
	"time"

	"uniattend/internal/ident"
)

// Role is the kind of account a user holds.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleInstructor:
		return RoleInstructor, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleStudent || r == RoleInstructor }

// User represents a student or instructor account.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	FullName      string    `json:"full_name"`
	StudentNumber string    `json:"student_number,omitempty"`
	FacultyNumber string    `json:"faculty_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Course is a taught course with its enrolled students.
type Course struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	InstructorID string    `json:"instructor_id"`
	StudentIDs   []string  `json:"student_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasStudent reports whether studentID is enrolled.
func (c Course) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share the student slice.
func (c Course) Clone() Course {
	out := c
	out.StudentIDs = append([]string(nil), c.StudentIDs...)
	return out
}

// AttendanceRecord is a single presence marking for one student in one course on one day.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	Date       time.Time `json:"date"`
	TimeMarked time.Time `json:"time_marked"`
	Present    bool      `json:"present"`
}

// Key identifies the (course, student, day) slot a record belongs to.
func (r AttendanceRecord) Key() string {
	return r.CourseID + "|" + r.StudentID + "|" + r.Date.Format(DateLayout)
}

func (r AttendanceRecord) String() string {
	return fmt.Sprintf("AttendanceRecord{course=%s student=%s date=%s time=%s present=%t}",
		ident.Short(r.CourseID), ident.Short(r.StudentID), r.Date.Format(DateLayout), r.TimeMarked.Format("15:04"), r.Present)
}
