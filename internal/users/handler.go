package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plagiarism-backend/internal/shared/server/middleware"
	"plagiarism-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/signup", h.signup)
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/logout", h.logout)
	rg.GET("/me", h.me)
	rg.PUT("/me", h.updateMe)
}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}

	user, token, err := h.Svc.Signup(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			respond.Error(c, http.StatusConflict, "conflict", "email or username already registered", nil)
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword):
			respond.Error(c, http.StatusBadRequest, "bad_request", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "signup failed", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{
		"accessToken": token,
		"user":        userPayload(user),
	})
}

func (h *Handler) login(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}

	user, token, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid email or password", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "login failed", nil)
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"accessToken": token,
		"user":        userPayload(user),
	})
}

// logout is stateless. The client discards the token.
func (h *Handler) logout(c *gin.Context) {
	respond.JSON(c, http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}

	userID := middleware.UserIDFromContext(c)
	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, userPayload(user))
}

func (h *Handler) updateMe(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}

	userID := middleware.UserIDFromContext(c)
	user, err := h.Svc.UpdateProfile(c.Request.Context(), userID, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
		case errors.Is(err, ErrConflict):
			respond.Error(c, http.StatusConflict, "conflict", "username already taken", nil)
		case errors.Is(err, ErrWeakPassword):
			respond.Error(c, http.StatusBadRequest, "bad_request", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "profile update failed", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, userPayload(user))
}

func userPayload(user User) gin.H {
	return gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"username":         user.Username,
		"subscriptionPlan": user.SubscriptionPlan,
		"createdAt":        user.CreatedAt,
	}
}
