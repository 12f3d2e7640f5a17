package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 200
)

// publishRequest carries the token issued by the prepare phase. DryRun
// rehearses the attempt without submitting to the marketplace.
type publishRequest struct {
	Token  string `json:"token"`
	DryRun bool   `json:"dry_run"`
}

// publish redeems a publish token and submits the listing. The caller
// supplies its own idempotency key so retries of a lost response never
// create a second listing.
// POST /api/v1/publish
func (r *Router) publish(c *gin.Context) {
	ctx := c.Request.Context()

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "A publish token is required",
		})
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Idempotency-Key header is required",
		})
		return
	}

	result, err := r.publisher.Publish(ctx, req.Token, idempotencyKey, req.DryRun)
	if err != nil {
		r.publishError(c, idempotencyKey, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// publishError maps publish protocol failures onto HTTP statuses.
func (r *Router) publishError(c *gin.Context, idempotencyKey string, err error) {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{
			"error": "Publish token is expired, spent, or no longer matches the draft",
		})
	case errors.Is(err, domain.ErrDuplicatePublish):
		c.JSON(http.StatusConflict, gin.H{
			"error": "This idempotency key was already used for a publish attempt",
		})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "draft not found",
		})
	case errors.Is(err, domain.ErrSessionInvalid):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Marketplace session is invalid; upload fresh credentials",
		})
	case errors.Is(err, domain.ErrVerificationRequired):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Marketplace demanded verification; manual action required",
			"outcome": domain.PublishVerificationRequired,
		})
	case errors.Is(err, domain.ErrExternalTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "Marketplace submission timed out; outcome unknown, key held",
			"outcome": domain.PublishTimeout,
		})
	default:
		r.logger.Error("publish attempt failed",
			logger.String("idempotency_key", idempotencyKey),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Publish attempt failed",
		})
	}
}

// cancelPublish revokes an unredeemed publish token
// POST /api/v1/publish/cancel
func (r *Router) cancelPublish(c *gin.Context) {
	ctx := c.Request.Context()

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "A publish token is required",
		})
		return
	}

	if err := r.publisher.Cancel(ctx, req.Token); err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			c.JSON(http.StatusGone, gin.H{
				"error": "Publish token is already expired or spent",
			})
			return
		}
		r.logger.Error("failed to cancel publish token", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel publish token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Publish token revoked",
	})
}

// listPublishLog returns the publish attempt audit trail
// GET /api/v1/publish-log?draft_id=<uuid>&limit=50
func (r *Router) listPublishLog(c *gin.Context) {
	ctx := c.Request.Context()

	limit := parseLimit(c, defaultLogPageSize, maxLogPageSize)

	entries, err := r.publishLog.ListLog(ctx, c.Query("draft_id"), limit)
	if err != nil {
		r.logger.Error("failed to list publish log", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list publish log",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
