package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/model"
)

type recordResponse struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Present   bool   `json:"present"`
}

func toRecord(r model.AttendanceRecord) recordResponse {
	return recordResponse{
		ID:        r.ID,
		CourseID:  r.CourseID,
		StudentID: r.StudentID,
		Date:      r.Date.Format(model.DateLayout),
		Time:      r.TimeMarked.Format(model.ClockLayout),
		Present:   r.Present,
	}
}

func toRecords(rs []model.AttendanceRecord) []recordResponse {
	out := make([]recordResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRecord(r))
	}
	return out
}

type markRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Present   *bool  `json:"present" binding:"required"`
}

func (h *Handler) markAttendance(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := attendance.MarkInput{CourseID: course.ID, StudentID: req.StudentID, Date: h.today(), Present: *req.Present}
	var err error
	if req.Date != "" {
		if in.Date, err = model.ParseDay(req.Date); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.Time != "" {
		if in.TimeMarked, err = model.ParseClock(req.Time); err != nil {
			h.fail(c, err)
			return
		}
	}
	rec, err := h.sys.Ledger().Mark(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRecord(rec))
}

type checkInRequest struct {
	ImageURL string `json:"image_url"`
}

// checkIn lets an enrolled student mark themselves present today, after face verification when configured.
func (h *Handler) checkIn(c *gin.Context) {
	course, ok := h.visibleCourse(c)
	if !ok {
		return
	}
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	if h.face != nil {
		v, err := h.face.Verify(c.Request.Context(), p.UserID, req.ImageURL)
		if err != nil {
			h.log.Warn("face verification failed", zap.String("user", p.UserID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "face verification unavailable"})
			return
		}
		if !v.Verified {
			h.fail(c, fmt.Errorf("%w: face not verified", model.ErrForbidden))
			return
		}
	}
	now := h.now()
	rec, err := h.sys.Ledger().Mark(c.Request.Context(), attendance.MarkInput{
		CourseID:   course.ID,
		StudentID:  p.UserID,
		Date:       now,
		TimeMarked: now,
		Present:    true,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRecord(rec))
}

// listAttendance returns all records to the instructor and only their own to a student.
// ?date= narrows to one day's effective roster; ?effective=true collapses re-markings.
func (h *Handler) listAttendance(c *gin.Context) {
	course, ok := h.visibleCourse(c)
	if !ok {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx := c.Request.Context()

	var (
		recs []model.AttendanceRecord
		err  error
	)
	switch {
	case c.Query("date") != "":
		day, perr := model.ParseDay(c.Query("date"))
		if perr != nil {
			h.fail(c, perr)
			return
		}
		recs, err = h.sys.Ledger().SessionRoster(ctx, course.ID, day)
	case p.Role == model.RoleInstructor:
		recs, err = h.sys.Ledger().RecordsForCourse(ctx, course.ID)
	default:
		recs, err = h.sys.Ledger().RecordsForStudentInCourse(ctx, p.UserID, course.ID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if p.Role != model.RoleInstructor {
		recs = onlyStudent(recs, p.UserID)
	}
	if effective, _ := strconv.ParseBool(c.Query("effective")); effective {
		recs = attendance.Effective(recs)
	}
	c.JSON(http.StatusOK, gin.H{"course_id": course.ID, "records": toRecords(recs)})
}

func (h *Handler) summary(c *gin.Context) {
	course, ok := h.visibleCourse(c)
	if !ok {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx := c.Request.Context()

	var (
		sum []attendance.StudentSummary
		err error
	)
	if p.Role == model.RoleInstructor {
		sum, err = h.sys.Ledger().Summary(ctx, course.ID)
	} else {
		var recs []model.AttendanceRecord
		recs, err = h.sys.Ledger().RecordsForStudentInCourse(ctx, p.UserID, course.ID)
		sum = attendance.Summarize(recs)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if sum == nil {
		sum = []attendance.StudentSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"course_id": course.ID, "students": sum})
}

func (h *Handler) rollup(c *gin.Context) {
	course, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	if h.rollups == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "roll-ups not configured"})
		return
	}
	day := h.today()
	if q := c.Query("date"); q != "" {
		var err error
		if day, err = model.ParseDay(q); err != nil {
			h.fail(c, err)
			return
		}
	}
	counts, err := h.rollups.Get(c.Request.Context(), course.ID, day.Format(model.DateLayout))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func onlyStudent(recs []model.AttendanceRecord, studentID string) []model.AttendanceRecord {
	out := recs[:0:0]
	for _, r := range recs {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out
}
