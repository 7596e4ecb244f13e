package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"uniattend/internal/auth"
	"uniattend/internal/model"
	"uniattend/internal/registry"
)

type createCourseRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	course, err := h.sys.Courses().Create(c.Request.Context(), req.Code, req.Name, p.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

type updateCourseRequest struct {
	Code         *string `json:"code"`
	Name         *string `json:"name"`
	InstructorID *string `json:"instructor_id"`
}

func (h *Handler) updateCourse(c *gin.Context) {
	if _, ok := h.ownedCourse(c); !ok {
		return
	}
	var req updateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	course, err := h.sys.Courses().Update(c.Request.Context(), c.Param("id"), registry.CourseUpdate(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) listCourses(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	var (
		courses []model.Course
		err     error
	)
	if p.Role == model.RoleInstructor {
		courses, err = h.sys.Courses().CoursesByInstructor(c.Request.Context(), p.UserID)
	} else {
		courses, err = h.sys.Courses().CoursesByStudent(c.Request.Context(), p.UserID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *Handler) getCourse(c *gin.Context) {
	course, ok := h.visibleCourse(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) enroll(c *gin.Context) {
	if _, ok := h.ownedCourse(c); !ok {
		return
	}
	course, err := h.sys.Courses().Enroll(c.Request.Context(), c.Param("id"), c.Param("studentID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) unenroll(c *gin.Context) {
	if _, ok := h.ownedCourse(c); !ok {
		return
	}
	course, err := h.sys.Courses().Unenroll(c.Request.Context(), c.Param("id"), c.Param("studentID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// ownedCourse loads the :id course and requires the caller to teach it.
func (h *Handler) ownedCourse(c *gin.Context) (model.Course, bool) {
	p, _ := auth.PrincipalFrom(c)
	course, err := h.sys.Courses().Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return model.Course{}, false
	}
	if course.InstructorID != p.UserID {
		h.fail(c, fmt.Errorf("%w: course %s is taught by someone else", model.ErrForbidden, course.Code))
		return model.Course{}, false
	}
	return course, true
}

// visibleCourse loads the :id course for its instructor or an enrolled student.
func (h *Handler) visibleCourse(c *gin.Context) (model.Course, bool) {
	p, _ := auth.PrincipalFrom(c)
	course, err := h.sys.Courses().Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return model.Course{}, false
	}
	if course.InstructorID != p.UserID && !course.HasStudent(p.UserID) {
		h.fail(c, fmt.Errorf("%w: not a member of course %s", model.ErrForbidden, course.Code))
		return model.Course{}, false
	}
	return course, true
}
