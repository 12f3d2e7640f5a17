package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/listforge/listforge/internal/database"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/validation"
)

const (
	defaultDraftPageSize = 50
	maxDraftPageSize     = 200
)

// listDrafts returns drafts matching the query filters
// GET /api/v1/drafts?state=draft&publish_ready=true&limit=50&offset=0
func (r *Router) listDrafts(c *gin.Context) {
	ctx := c.Request.Context()

	filter := database.DraftFilter{
		State: domain.DraftState(c.Query("state")),
		Limit: parseLimit(c, defaultDraftPageSize, maxDraftPageSize),
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}
	if readyParam := c.Query("publish_ready"); readyParam != "" {
		ready := readyParam == "true"
		filter.PublishReady = &ready
	}

	drafts, err := r.drafts.List(ctx, filter)
	if err != nil {
		r.logger.Error("failed to list drafts", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list drafts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"drafts": drafts,
		"count":  len(drafts),
	})
}

// getDraft retrieves a draft by ID
// GET /api/v1/drafts/:id
func (r *Router) getDraft(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUID(c, "id", "draft")
	if !ok {
		return
	}

	draft, err := r.drafts.GetByID(ctx, id)
	if err != nil {
		handleRepositoryError(c, err, "draft", "get")
		return
	}

	c.JSON(http.StatusOK, draft)
}

// updateDraft applies a partial edit to a draft. Edits bump the draft's
// revision, which invalidates any outstanding publish token.
// PATCH /api/v1/drafts/:id
func (r *Router) updateDraft(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUID(c, "id", "draft")
	if !ok {
		return
	}

	var req database.DraftUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	if req.Price != nil && !req.Price.Ordered() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Price band must satisfy 0 < min <= target <= max",
		})
		return
	}

	draft, err := r.drafts.Update(ctx, id, req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The row may exist but be immutable; distinguish for the caller.
			if existing, getErr := r.drafts.GetByID(ctx, id); getErr == nil &&
				existing.State != domain.DraftStateDraft {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Only drafts in the draft state can be edited",
					"state": existing.State,
				})
				return
			}
		}
		handleRepositoryError(c, err, "draft", "update")
		return
	}

	// An edit can break a rule the stored verdict predates; keep the
	// persisted readiness flag in step with the content.
	verdict := validation.Validate(draft)
	if setErr := r.drafts.SetValidation(ctx, id, verdict); setErr != nil {
		r.logger.Error("failed to refresh draft validation",
			logger.String("draft_id", id),
			logger.Error(setErr))
	}
	draft.PublishReady = verdict.Ready
	draft.MissingFields = verdict.MissingFields

	c.JSON(http.StatusOK, draft)
}

// rejectDraft marks a draft as rejected so it is excluded from publishing
// POST /api/v1/drafts/:id/reject
func (r *Router) rejectDraft(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUID(c, "id", "draft")
	if !ok {
		return
	}

	if err := r.drafts.MarkRejected(ctx, id); err != nil {
		handleRepositoryError(c, err, "draft", "reject")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Draft rejected",
	})
}

// prepareRequest is the payload for the prepare phase.
type prepareRequest struct {
	DryRun bool `json:"dry_run"`
}

// prepareDraft re-validates a draft and issues a single-use publish token
// POST /api/v1/drafts/:id/prepare
func (r *Router) prepareDraft(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUID(c, "id", "draft")
	if !ok {
		return
	}

	var req prepareRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request payload",
				"details": err.Error(),
			})
			return
		}
	}

	token, result, err := r.publisher.Prepare(ctx, id, req.DryRun)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "draft not found",
			})
		case errors.Is(err, domain.ErrNotReady):
			resp := gin.H{"error": "Draft is not ready to publish"}
			if result != nil {
				resp["missing_fields"] = result.MissingFields
			}
			c.JSON(http.StatusUnprocessableEntity, resp)
		default:
			r.logger.Error("failed to prepare draft",
				logger.String("draft_id", id),
				logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to prepare draft",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"validation": result,
	})
}
