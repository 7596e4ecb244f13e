package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"uniattend/internal/auth"
	"uniattend/internal/model"
	"uniattend/internal/registry"
)

type registerRequest struct {
	Username      string `json:"username" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	Role          string `json:"role" binding:"required"`
	FullName      string `json:"full_name"`
	StudentNumber string `json:"student_number"`
	FacultyNumber string `json:"faculty_number"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	u, err := h.sys.Users().Register(c.Request.Context(), registry.RegisterInput{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		Role:          role,
		FullName:      req.FullName,
		StudentNumber: req.StudentNumber,
		FacultyNumber: req.FacultyNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   int64      `json:"expires_at"`
	SessionID   string     `json:"session_id"`
	User        model.User `json:"user"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.sys.Sessions().Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, loginResponse{
		AccessToken: g.Token.Value,
		ExpiresAt:   g.Token.ExpiresAt.Unix(),
		SessionID:   g.Session.ID,
		User:        g.User,
	})
}

func (h *Handler) logout(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	if err := h.sys.Sessions().Logout(c.Request.Context(), p.SessionID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	u, err := h.sys.Users().Lookup(c.Request.Context(), p.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type profileRequest struct {
	Username      *string `json:"username"`
	Email         *string `json:"email"`
	FullName      *string `json:"full_name"`
	StudentNumber *string `json:"student_number"`
	FacultyNumber *string `json:"faculty_number"`
}

func (h *Handler) updateMe(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	u, err := h.sys.Users().UpdateProfile(c.Request.Context(), p.UserID, registry.ProfileUpdate(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type passwordRequest struct {
	Current string `json:"current_password" binding:"required"`
	New     string `json:"new_password" binding:"required"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	if err := h.sys.Users().ChangePassword(c.Request.Context(), p.UserID, req.Current, req.New); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.sys.Users().Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) today() time.Time {
	return model.Day(h.now())
}
