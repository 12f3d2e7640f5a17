package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// sessionSaveRequest carries the raw marketplace credential blob. It is
// encrypted at rest and never echoed back.
type sessionSaveRequest struct {
	Credentials json.RawMessage `json:"credentials"`
}

// saveSession stores marketplace credentials, replacing any previous session
// PUT /api/v1/session
func (r *Router) saveSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req sessionSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Credentials) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "A credentials payload is required",
		})
		return
	}

	session, err := r.vault.SaveSession(ctx, req.Credentials)
	if err != nil {
		r.logger.Error("failed to save session", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":    session.State,
		"identity": session.Identity,
	})
}

// sessionStatus reports the stored session's state and assigned identity
// GET /api/v1/session/status
func (r *Router) sessionStatus(c *gin.Context) {
	ctx := c.Request.Context()

	state, identity, err := r.vault.Status(ctx)
	if err != nil {
		r.logger.Error("failed to read session status", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read session status",
		})
		return
	}

	resp := gin.H{"state": state}
	if identity != nil {
		resp["identity"] = identity
	}
	c.JSON(http.StatusOK, resp)
}

// checkSession probes the marketplace with the stored credentials and
// updates the session state from the result
// POST /api/v1/session/check
func (r *Router) checkSession(c *gin.Context) {
	ctx := c.Request.Context()

	creds, session, err := r.vault.OpenSession(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "No usable session stored",
			})
			return
		}
		r.logger.Error("failed to open session", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to open session",
		})
		return
	}
	defer creds.Destroy()

	checkErr := r.checker.CheckSession(ctx, creds.Bytes(), session.Identity)
	switch {
	case checkErr == nil:
		if err := r.vault.MarkValidated(ctx); err != nil {
			r.logger.Warn("failed to record session validation", logger.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{
			"live":  true,
			"state": domain.SessionValid,
		})
	case errors.Is(checkErr, domain.ErrSessionInvalid):
		if err := r.vault.Invalidate(ctx); err != nil {
			r.logger.Warn("failed to invalidate session", logger.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{
			"live":  false,
			"state": domain.SessionExpired,
		})
	case errors.Is(checkErr, domain.ErrVerificationRequired):
		c.JSON(http.StatusOK, gin.H{
			"live":                  false,
			"state":                 session.State,
			"verification_required": true,
		})
	default:
		r.logger.Error("session liveness check failed", logger.Error(checkErr))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Session check failed",
		})
	}
}

// deleteSession wipes the stored session
// DELETE /api/v1/session
func (r *Router) deleteSession(c *gin.Context) {
	ctx := c.Request.Context()

	if err := r.vault.DeleteSession(ctx); err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Error("failed to delete session", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Session deleted",
	})
}
