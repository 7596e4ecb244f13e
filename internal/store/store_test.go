package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uniattend/internal/model"
)

// backends returns every backend that can run without external services.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			return s
		},
		"bolt": func(t *testing.T) Store {
			s, err := OpenBolt(filepath.Join(t.TempDir(), "uniattend.db"))
			require.NoError(t, err)
			return s
		},
		"logged": func(t *testing.T) Store { return WithLogging(NewMemory(), zap.NewNop()) },
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			t.Run("users", func(t *testing.T) { testUsers(t, s) })
			t.Run("courses", func(t *testing.T) { testCourses(t, s) })
			t.Run("records", func(t *testing.T) { testRecords(t, s) })
		})
	}
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	prof := model.User{ID: "u-prof", Username: "profsmith", Email: "smith@university.edu", PasswordHash: "h1",
		Role: model.RoleInstructor, FullName: "Prof. John Smith", FacultyNumber: "F001", CreatedAt: base}
	john := model.User{ID: "u-john", Username: "johndoe", Email: "john@student.edu", PasswordHash: "h2",
		Role: model.RoleStudent, FullName: "John Doe", StudentNumber: "S001", CreatedAt: base.Add(time.Second)}
	require.NoError(t, s.SaveUser(ctx, prof))
	require.NoError(t, s.SaveUser(ctx, john))

	got, err := s.UserByID(ctx, "u-prof")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.PasswordHash)
	assert.Equal(t, "F001", got.FacultyNumber)
	assert.True(t, base.Equal(got.CreatedAt))

	_, err = s.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	byName, err := s.QueryUsers(ctx, UserQuery{Username: "johndoe"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "u-john", byName[0].ID)

	byEmail, err := s.QueryUsers(ctx, UserQuery{Email: "smith@university.edu"})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)

	students, err := s.QueryUsers(ctx, UserQuery{Role: model.RoleStudent})
	require.NoError(t, err)
	require.Len(t, students, 1)

	all, err := s.QueryUsers(ctx, UserQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u-prof", all[0].ID)

	john.FullName = "Johnny Doe"
	require.NoError(t, s.SaveUser(ctx, john))
	got, err = s.UserByID(ctx, "u-john")
	require.NoError(t, err)
	assert.Equal(t, "Johnny Doe", got.FullName)
	all, err = s.QueryUsers(ctx, UserQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testCourses(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	cs := model.Course{ID: "c-cs101", Code: "CS101", Name: "Intro to Programming", InstructorID: "u-prof",
		StudentIDs: []string{"u-john", "u-jane"}, CreatedAt: base}
	ma := model.Course{ID: "c-ma201", Code: "MA201", Name: "Calculus I", InstructorID: "u-prof",
		StudentIDs: []string{"u-john"}, CreatedAt: base.Add(time.Second)}
	require.NoError(t, s.SaveCourse(ctx, cs))
	require.NoError(t, s.SaveCourse(ctx, ma))

	got, err := s.CourseByID(ctx, "c-cs101")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-john", "u-jane"}, got.StudentIDs)

	_, err = s.CourseByID(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	byProf, err := s.QueryCourses(ctx, CourseQuery{InstructorID: "u-prof"})
	require.NoError(t, err)
	require.Len(t, byProf, 2)
	assert.Equal(t, "CS101", byProf[0].Code)
	assert.Equal(t, "MA201", byProf[1].Code)

	byJane, err := s.QueryCourses(ctx, CourseQuery{StudentID: "u-jane"})
	require.NoError(t, err)
	require.Len(t, byJane, 1)
	assert.Equal(t, "CS101", byJane[0].Code)

	byCode, err := s.QueryCourses(ctx, CourseQuery{Code: "MA201"})
	require.NoError(t, err)
	require.Len(t, byCode, 1)

	cs.StudentIDs = []string{"u-jane"}
	require.NoError(t, s.SaveCourse(ctx, cs))
	got, err = s.CourseByID(ctx, "c-cs101")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-jane"}, got.StudentIDs)
}

func testRecords(t *testing.T, s Store) {
	ctx := context.Background()
	today := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	clock := time.Date(0, 1, 1, 10, 15, 0, 0, time.UTC)
	recs := []model.AttendanceRecord{
		{ID: "r-3", CourseID: "c-cs101", StudentID: "u-john", Date: today, TimeMarked: clock, Present: true},
		{ID: "r-1", CourseID: "c-cs101", StudentID: "u-jane", Date: today, TimeMarked: clock, Present: false},
		{ID: "r-2", CourseID: "c-cs101", StudentID: "u-john", Date: yesterday, TimeMarked: clock, Present: true},
		{ID: "r-4", CourseID: "c-ma201", StudentID: "u-john", Date: today, TimeMarked: clock, Present: false},
	}
	for _, r := range recs {
		require.NoError(t, s.AppendRecord(ctx, r))
	}

	course, err := s.QueryRecords(ctx, RecordQuery{CourseID: "c-cs101"})
	require.NoError(t, err)
	require.Len(t, course, 3)
	assert.Equal(t, []string{"r-3", "r-1", "r-2"}, ids(course))
	assert.True(t, course[0].Present)
	assert.False(t, course[1].Present)
	assert.True(t, today.Equal(course[0].Date))
	assert.Equal(t, "10:15:00", course[0].TimeMarked.Format(model.ClockLayout))

	john, err := s.QueryRecords(ctx, RecordQuery{CourseID: "c-cs101", StudentID: "u-john"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r-3", "r-2"}, ids(john))

	onDay, err := s.QueryRecords(ctx, RecordQuery{Date: today.Add(13 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"r-3", "r-1", "r-4"}, ids(onDay))

	all, err := s.QueryRecords(ctx, RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	r, err := s.RecordByID(ctx, "r-2")
	require.NoError(t, err)
	assert.True(t, yesterday.Equal(r.Date))

	_, err = s.RecordByID(ctx, "r-9")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func ids(rs []model.AttendanceRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "mongo"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}

func TestSQLBindPlaceholders(t *testing.T) {
	s := &SQL{d: Postgres}
	assert.Equal(t, "a = $1 AND b = $2", s.bind("a = ? AND b = ?"))
	s = &SQL{d: SQLite}
	assert.Equal(t, "a = ? AND b = ?", s.bind("a = ? AND b = ?"))
}
