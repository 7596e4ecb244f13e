package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/faceclient"
	"uniattend/internal/metrics"
	"uniattend/internal/model"
	"uniattend/internal/queue"
	"uniattend/internal/rollup"
	"uniattend/internal/store"
	"uniattend/internal/system"
)

var now = time.Date(2024, 9, 2, 10, 30, 0, 0, time.UTC)

type fakeVerifier struct{ ok bool }

func (f fakeVerifier) Verify(_ context.Context, userID, _ string) (faceclient.Verification, error) {
	return faceclient.Verification{UserID: userID, Verified: f.ok}, nil
}

type env struct {
	t       *testing.T
	router  *gin.Engine
	sys     *system.System
	rollups *rollup.Memory
	face    *fakeVerifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sys := system.New(system.Deps{
		Store:  store.NewMemory(),
		Signer: auth.NewSigner("uniattend-test", "test-key", time.Hour),
		Hasher: auth.NewBcrypt(4),
		Now:    func() time.Time { return now },
	})
	_, err := sys.Seed(context.Background(), now)
	require.NoError(t, err)

	e := &env{t: t, sys: sys, rollups: rollup.NewMemory(), face: &fakeVerifier{ok: true}}
	e.router = NewRouter(sys, e.face, e.rollups, metrics.New(), nil, Options{
		Now:    func() time.Time { return now },
		Health: func(context.Context) map[string]bool { return map[string]bool{"store": true} },
	})
	return e
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) login(login string) (token, userID string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/v1/sessions", "", gin.H{"login": login, "password": "pass123"})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var resp loginResponse
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken, resp.User.ID
}

func (e *env) course(code string) model.Course {
	e.t.Helper()
	c, err := e.sys.Courses().ByCode(context.Background(), code)
	require.NoError(e.t, err)
	return c
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegister(t *testing.T) {
	e := newEnv(t)
	body := gin.H{"username": "maria", "email": "maria@student.edu", "password": "secret1", "role": "student", "full_name": "Maria"}

	w := e.do(http.MethodPost, "/v1/users", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	u := decode[map[string]any](t, w)
	assert.Equal(t, "STUDENT", u["role"])
	assert.NotContains(t, u, "PasswordHash")

	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/v1/users", "", body).Code)

	dup := gin.H{"username": "johndoe", "email": "other@student.edu", "password": "secret1", "role": "STUDENT"}
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/v1/users", "", dup).Code)

	bad := gin.H{"username": "x", "email": "x@student.edu", "password": "secret1", "role": "ADMIN"}
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/v1/users", "", bad).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/v1/users", "", gin.H{}).Code)

	long := gin.H{"username": "longpw", "email": "longpw@student.edu", "password": strings.Repeat("p", 80), "role": "STUDENT"}
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/v1/users", "", long).Code)
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/v1/sessions", "", gin.H{"login": "johndoe", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, id := e.login("john@student.edu")
	w = e.do(http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[model.User](t, w).ID)

	other, _ := e.login("johndoe")

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/v1/sessions/current", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/v1/me", token, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/v1/me", other, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/v1/me", "", nil).Code)
}

func TestProfile(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login("johndoe")

	w := e.do(http.MethodPatch, "/v1/me", token, gin.H{"full_name": "Johnathan Doe"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Johnathan Doe", decode[model.User](t, w).FullName)

	w = e.do(http.MethodPatch, "/v1/me", token, gin.H{"email": "jane@student.edu"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodPut, "/v1/me/password", token, gin.H{"current_password": "pass123", "new_password": "better1"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodPost, "/v1/sessions", "", gin.H{"login": "johndoe", "password": "better1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	prof, _ := e.login("profsmith")
	w = e.do(http.MethodGet, "/v1/users/nobody", prof, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCourses(t *testing.T) {
	e := newEnv(t)
	prof, _ := e.login("profsmith")
	jane, janeID := e.login("janesmith")

	w := e.do(http.MethodGet, "/v1/courses", prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct{ Courses []model.Course }](t, w).Courses, 2)

	w = e.do(http.MethodGet, "/v1/courses", jane, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct{ Courses []model.Course }](t, w).Courses, 1)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/v1/courses", jane, gin.H{"code": "X1", "name": "X"}).Code)

	w = e.do(http.MethodPost, "/v1/courses", prof, gin.H{"code": "PH110", "name": "Physics"})
	require.Equal(t, http.StatusCreated, w.Code)
	ph := decode[model.Course](t, w)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/courses/"+ph.ID, jane, nil).Code)

	path := "/v1/courses/" + ph.ID + "/students/" + janeID
	for i := 0; i < 2; i++ {
		w = e.do(http.MethodPut, path, prof, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{janeID}, decode[model.Course](t, w).StudentIDs)
	}
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/v1/courses/"+ph.ID, jane, nil).Code)

	w = e.do(http.MethodDelete, path, prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.Course](t, w).StudentIDs)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, path, prof, nil).Code)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, "/v1/courses/missing/students/"+janeID, prof, nil).Code)

	w = e.do(http.MethodPost, "/v1/users", "", gin.H{"username": "drlee", "email": "lee@university.edu", "password": "pass123", "role": "INSTRUCTOR"})
	require.Equal(t, http.StatusCreated, w.Code)
	lee, leeID := e.login("drlee")
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, lee, nil).Code)

	course := "/v1/courses/" + ph.ID
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, course, lee, gin.H{"name": "Stolen"}).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, course, jane, gin.H{"name": "Stolen"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, course, prof, gin.H{"code": ""}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPatch, "/v1/courses/missing", prof, gin.H{"name": "X"}).Code)

	w = e.do(http.MethodPatch, course, prof, gin.H{"name": "Physics I", "instructor_id": leeID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[model.Course](t, w)
	assert.Equal(t, "PH110", updated.Code)
	assert.Equal(t, "Physics I", updated.Name)
	assert.Equal(t, leeID, updated.InstructorID)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, course, prof, gin.H{"name": "Back"}).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, course, lee, nil).Code)
}

func TestAttendance(t *testing.T) {
	e := newEnv(t)
	prof, _ := e.login("profsmith")
	john, johnID := e.login("johndoe")
	cs := e.course("CS101")
	base := "/v1/courses/" + cs.ID

	w := e.do(http.MethodGet, base+"/attendance", prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct{ Records []recordResponse }](t, w).Records
	require.Len(t, all, 3)
	assert.Equal(t, []bool{true, false, true}, []bool{all[0].Present, all[1].Present, all[2].Present})

	w = e.do(http.MethodPost, base+"/attendance", prof, gin.H{"student_id": johnID, "present": false, "time": "11:00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[recordResponse](t, w)
	assert.Equal(t, "2024-09-02", rec.Date)
	assert.Equal(t, "11:00:00", rec.Time)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, base+"/attendance", prof, gin.H{"student_id": johnID}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, base+"/attendance", prof, gin.H{"student_id": johnID, "present": true, "date": "02/09/2024"}).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, base+"/attendance", john, gin.H{"student_id": johnID, "present": true}).Code)

	w = e.do(http.MethodGet, base+"/attendance", john, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[struct{ Records []recordResponse }](t, w).Records
	assert.Len(t, mine, 3)
	for _, r := range mine {
		assert.Equal(t, johnID, r.StudentID)
	}

	w = e.do(http.MethodGet, base+"/attendance?date=2024-09-02", prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	roster := decode[struct{ Records []recordResponse }](t, w).Records
	require.Len(t, roster, 2)
	assert.False(t, roster[0].Present)

	w = e.do(http.MethodGet, base+"/summary", prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[struct{ Students []attendance.StudentSummary }](t, w).Students
	require.Len(t, sum, 2)
	assert.Equal(t, johnID, sum[0].StudentID)
	assert.Equal(t, 1, sum[0].Attended)
	assert.Equal(t, 2, sum[0].Total)

	w = e.do(http.MethodGet, base+"/summary", john, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), johnID)
}

func TestCheckIn(t *testing.T) {
	e := newEnv(t)
	jane, janeID := e.login("janesmith")
	john, _ := e.login("johndoe")
	cs := e.course("CS101")
	ma := e.course("MA201")

	e.face.ok = false
	w := e.do(http.MethodPost, "/v1/courses/"+cs.ID+"/checkin", jane, gin.H{"image_url": "https://img/jane.jpg"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	e.face.ok = true
	w = e.do(http.MethodPost, "/v1/courses/"+cs.ID+"/checkin", jane, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[recordResponse](t, w)
	assert.Equal(t, janeID, rec.StudentID)
	assert.True(t, rec.Present)
	assert.Equal(t, "10:30:00", rec.Time)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/v1/courses/"+ma.ID+"/checkin", jane, nil).Code)

	prof, _ := e.login("profsmith")
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/v1/courses/"+cs.ID+"/checkin", prof, nil).Code)

	w = e.do(http.MethodGet, "/v1/courses/"+cs.ID+"/attendance?date=2024-09-02&effective=true", john, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct{ Records []recordResponse }](t, w).Records, 1)
}

func TestRollup(t *testing.T) {
	e := newEnv(t)
	prof, _ := e.login("profsmith")
	cs := e.course("CS101")
	ctx := context.Background()
	require.NoError(t, e.rollups.Add(ctx, queue.Marked{CourseID: cs.ID, Date: "2024-09-02", Present: true}))
	require.NoError(t, e.rollups.Add(ctx, queue.Marked{CourseID: cs.ID, Date: "2024-09-02", Present: false}))

	w := e.do(http.MethodGet, "/v1/courses/"+cs.ID+"/rollup", prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[rollup.Counts](t, w)
	assert.Equal(t, int64(1), got.Present)
	assert.Equal(t, int64(1), got.Absent)

	w = e.do(http.MethodGet, "/v1/courses/"+cs.ID+"/rollup?date=2024-09-01", prof, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[rollup.Counts](t, w).Present)

	john, _ := e.login("johndoe")
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/courses/"+cs.ID+"/rollup", john, nil).Code)
}

func TestInfraRoutes(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, true, decode[map[string]any](t, w)["store"])

	w = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uniattend_http_requests_total")

	req := httptest.NewRequest(http.MethodOptions, "/v1/courses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSConfig(t *testing.T) {
	open := corsConfig(nil)
	assert.False(t, open.AllowCredentials)
	require.NotNil(t, open.AllowOriginFunc)
	assert.True(t, open.AllowOriginFunc("https://anywhere.example"))

	listed := corsConfig([]string{"https://portal.university.edu"})
	assert.True(t, listed.AllowCredentials)
	assert.Nil(t, listed.AllowOriginFunc)
	assert.Equal(t, []string{"https://portal.university.edu"}, listed.AllowOrigins)
}

func TestStatusFor(t *testing.T) {
	tests := map[error]int{
		model.ErrInvalidInput:      http.StatusBadRequest,
		model.ErrAuthentication:    http.StatusUnauthorized,
		model.ErrForbidden:         http.StatusForbidden,
		model.ErrNotFound:          http.StatusNotFound,
		model.ErrDuplicateIdentity: http.StatusConflict,
		model.ErrDuplicateMarking:  http.StatusConflict,
		model.ErrReference:         http.StatusUnprocessableEntity,
		context.Canceled:           http.StatusInternalServerError,
	}
	for err, want := range tests {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
