package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/permitsync/permitsync/internal/middleware"
	"github.com/permitsync/permitsync/internal/services/auth"
)

type magicLinkRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestMagicLink mails a single-use login link. The response is the same
// whether or not the address is known, so it cannot be used to probe accounts.
func (h *Handler) RequestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid email is required"})
		return
	}

	if err := h.auth.RequestMagicLink(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("magic link request failed", "email", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send magic link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "if the address is valid, a login link has been sent"})
}

// VerifyMagicLink exchanges a magic-link token for a session.
func (h *Handler) VerifyMagicLink(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	signed, session, err := h.auth.VerifyMagicLink(c.Request.Context(), token)
	if errors.Is(err, auth.ErrTokenNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "link is invalid or expired"})
		return
	}
	if err != nil {
		h.logger.Error("magic link verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      signed,
		"email":      session.UserEmail,
		"expires_at": session.ExpiresAt,
	})
}

// Logout revokes the caller's session.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.GetToken(c)); err != nil {
		h.logger.Error("logout failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
