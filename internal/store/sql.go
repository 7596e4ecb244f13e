package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"uniattend/internal/model"
)

// tsLayout is fixed width so text timestamps sort chronologically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
	Schema      string
}

// Postgres is the dialect for github.com/jackc/pgx/v5/stdlib.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Schema: `
	CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		username       TEXT UNIQUE NOT NULL,
		email          TEXT UNIQUE NOT NULL,
		password_hash  TEXT NOT NULL,
		role           TEXT NOT NULL,
		full_name      TEXT NOT NULL DEFAULT '',
		student_number TEXT NOT NULL DEFAULT '',
		faculty_number TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS courses (
		id            TEXT PRIMARY KEY,
		code          TEXT NOT NULL,
		name          TEXT NOT NULL,
		instructor_id TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS course_students (
		course_id  TEXT NOT NULL REFERENCES courses(id),
		student_id TEXT NOT NULL,
		position   INTEGER NOT NULL,
		PRIMARY KEY (course_id, student_id)
	);
	CREATE TABLE IF NOT EXISTS attendance_records (
		seq         BIGSERIAL PRIMARY KEY,
		id          TEXT UNIQUE NOT NULL,
		course_id   TEXT NOT NULL,
		student_id  TEXT NOT NULL,
		day         TEXT NOT NULL,
		time_marked TEXT NOT NULL,
		present     BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_course ON attendance_records(course_id);
	CREATE INDEX IF NOT EXISTS idx_records_student ON attendance_records(student_id);
	`,
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
var SQLite = Dialect{
	Name:        "sqlite3",
	Placeholder: func(int) string { return "?" },
	Schema: `
	CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		username       TEXT UNIQUE NOT NULL,
		email          TEXT UNIQUE NOT NULL,
		password_hash  TEXT NOT NULL,
		role           TEXT NOT NULL,
		full_name      TEXT NOT NULL DEFAULT '',
		student_number TEXT NOT NULL DEFAULT '',
		faculty_number TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS courses (
		id            TEXT PRIMARY KEY,
		code          TEXT NOT NULL,
		name          TEXT NOT NULL,
		instructor_id TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS course_students (
		course_id  TEXT NOT NULL REFERENCES courses(id),
		student_id TEXT NOT NULL,
		position   INTEGER NOT NULL,
		PRIMARY KEY (course_id, student_id)
	);
	CREATE TABLE IF NOT EXISTS attendance_records (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT UNIQUE NOT NULL,
		course_id   TEXT NOT NULL,
		student_id  TEXT NOT NULL,
		day         TEXT NOT NULL,
		time_marked TEXT NOT NULL,
		present     BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_course ON attendance_records(course_id);
	CREATE INDEX IF NOT EXISTS idx_records_student ON attendance_records(student_id);
	`,
}

// SQL persists entities through database/sql.
type SQL struct {
	db *sql.DB
	d  Dialect
}

// NewSQL wraps an open database and applies the dialect schema.
func NewSQL(ctx context.Context, db *sql.DB, d Dialect) (*SQL, error) {
	if _, err := db.ExecContext(ctx, d.Schema); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", d.Name, err)
	}
	return &SQL{db: db, d: d}, nil
}

// DB exposes the underlying pool, e.g. for health checks.
func (s *SQL) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// bind rewrites "?" markers into the dialect's placeholders.
func (s *SQL) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const userColumns = `id, username, email, password_hash, role, full_name, student_number, faculty_number, created_at`

func (s *SQL) SaveUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			full_name = EXCLUDED.full_name,
			student_number = EXCLUDED.student_number,
			faculty_number = EXCLUDED.faculty_number
	`), u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.FullName, u.StudentNumber, u.FacultyNumber,
		u.CreatedAt.UTC().Format(tsLayout))
	return err
}

func (s *SQL) UserByID(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return u, err
}

func (s *SQL) QueryUsers(ctx context.Context, q UserQuery) ([]model.User, error) {
	var clauses []string
	var args []any
	if q.Username != "" {
		clauses = append(clauses, "username = ?")
		args = append(args, q.Username)
	}
	if q.Email != "" {
		clauses = append(clauses, "email = ?")
		args = append(args, q.Email)
	}
	if q.Role != "" {
		clauses = append(clauses, "role = ?")
		args = append(args, string(q.Role))
	}
	query := `SELECT ` + userColumns + ` FROM users` + where(clauses) + ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var role, created string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.FullName, &u.StudentNumber, &u.FacultyNumber, &created); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = parseTS(created)
	return u, nil
}

func (s *SQL) SaveCourse(ctx context.Context, c model.Course) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.bind(`
		INSERT INTO courses (id, code, name, instructor_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			instructor_id = EXCLUDED.instructor_id
	`), c.ID, c.Code, c.Name, c.InstructorID, c.CreatedAt.UTC().Format(tsLayout)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM course_students WHERE course_id = ?`), c.ID); err != nil {
		return err
	}
	for i, sid := range c.StudentIDs {
		if _, err := tx.ExecContext(ctx, s.bind(`
			INSERT INTO course_students (course_id, student_id, position) VALUES (?, ?, ?)
		`), c.ID, sid, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQL) CourseByID(ctx context.Context, id string) (model.Course, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT id, code, name, instructor_id, created_at FROM courses WHERE id = ?`), id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Course{}, fmt.Errorf("course %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Course{}, err
	}
	if c.StudentIDs, err = s.enrolled(ctx, c.ID); err != nil {
		return model.Course{}, err
	}
	return c, nil
}

func (s *SQL) QueryCourses(ctx context.Context, q CourseQuery) ([]model.Course, error) {
	var clauses []string
	var args []any
	if q.Code != "" {
		clauses = append(clauses, "code = ?")
		args = append(args, q.Code)
	}
	if q.InstructorID != "" {
		clauses = append(clauses, "instructor_id = ?")
		args = append(args, q.InstructorID)
	}
	if q.StudentID != "" {
		clauses = append(clauses, "id IN (SELECT course_id FROM course_students WHERE student_id = ?)")
		args = append(args, q.StudentID)
	}
	query := `SELECT id, code, name, instructor_id, created_at FROM courses` + where(clauses) + ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, err
	}
	var out []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].StudentIDs, err = s.enrolled(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQL) enrolled(ctx context.Context, courseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT student_id FROM course_students WHERE course_id = ? ORDER BY position
	`), courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCourse(row scanner) (model.Course, error) {
	var c model.Course
	var created string
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.InstructorID, &created); err != nil {
		return model.Course{}, err
	}
	c.CreatedAt = parseTS(created)
	return c, nil
}

const recordColumns = `id, course_id, student_id, day, time_marked, present`

func (s *SQL) AppendRecord(ctx context.Context, r model.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO attendance_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`), r.ID, r.CourseID, r.StudentID, r.Date.Format(model.DateLayout), r.TimeMarked.Format(model.ClockLayout), r.Present)
	return err
}

func (s *SQL) RecordByID(ctx context.Context, id string) (model.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+recordColumns+` FROM attendance_records WHERE id = ?`), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AttendanceRecord{}, fmt.Errorf("attendance record %s: %w", id, model.ErrNotFound)
	}
	return r, err
}

func (s *SQL) QueryRecords(ctx context.Context, q RecordQuery) ([]model.AttendanceRecord, error) {
	var clauses []string
	var args []any
	if q.CourseID != "" {
		clauses = append(clauses, "course_id = ?")
		args = append(args, q.CourseID)
	}
	if q.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, q.StudentID)
	}
	if !q.Date.IsZero() {
		clauses = append(clauses, "day = ?")
		args = append(args, model.Day(q.Date).Format(model.DateLayout))
	}
	query := `SELECT ` + recordColumns + ` FROM attendance_records` + where(clauses) + ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row scanner) (model.AttendanceRecord, error) {
	var r model.AttendanceRecord
	var day, clock string
	if err := row.Scan(&r.ID, &r.CourseID, &r.StudentID, &day, &clock, &r.Present); err != nil {
		return model.AttendanceRecord{}, err
	}
	var err error
	if r.Date, err = model.ParseDay(day); err != nil {
		return model.AttendanceRecord{}, err
	}
	if r.TimeMarked, err = model.ParseClock(clock); err != nil {
		return model.AttendanceRecord{}, err
	}
	return r, nil
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
