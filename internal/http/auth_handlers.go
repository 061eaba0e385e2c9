package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"task-board/internal/auth"
	"task-board/internal/domain"
	"task-board/internal/service"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.internalError(c, "login failed", err)
		return
	}

	token, err := h.tokens.Issue(auth.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		h.internalError(c, "login failed", err)
		return
	}

	h.setSessionCookie(c, token, 0)
	h.logger.WithField("user_id", user.ID).Info("user logged in")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// me resolves the token's user against the store; a token whose account
// has since been removed is rejected.
func (h *Handler) me(c *gin.Context) {
	id, ok := h.currentIdentity(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reject(c)
			return
		}
		h.internalError(c, "failed to load user", err)
		return
	}

	c.JSON(http.StatusOK, auth.Identity{UserID: user.ID, Email: user.Email})
}

// setSessionCookie writes the token cookie. A zero maxAge leaves expiry to the
// token itself; a negative one clears the cookie.
func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.gate.CookieName(), value, maxAge, "/", "", h.secureCookie, true)
}
