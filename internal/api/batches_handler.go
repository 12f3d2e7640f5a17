package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// batchCreateRequest is the payload for submitting a photo batch.
type batchCreateRequest struct {
	PhotoRefs        []string `json:"photo_refs"`
	AssumeSingleItem bool     `json:"assume_single_item"`
}

// createBatch submits a photo batch for clustering and draft generation
// POST /api/v1/batches
func (r *Router) createBatch(c *gin.Context) {
	ctx := c.Request.Context()

	var req batchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	batch, err := r.batches.Create(ctx, req.PhotoRefs, req.AssumeSingleItem)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyBatch):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Batch must contain at least one photo",
			})
		case errors.Is(err, domain.ErrBatchTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":       "Batch exceeds the photo limit",
				"max_photos":  domain.MaxBatchPhotos,
				"photo_count": len(req.PhotoRefs),
			})
		default:
			r.logger.Error("failed to create batch", logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create batch",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, batch)
}

// getBatch retrieves a batch job with its progress
// GET /api/v1/batches/:id
func (r *Router) getBatch(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUID(c, "id", "batch")
	if !ok {
		return
	}

	batch, err := r.batches.GetByID(ctx, id)
	if err != nil {
		handleRepositoryError(c, err, "batch", "get")
		return
	}

	c.JSON(http.StatusOK, batch)
}

// listBatchDrafts returns the drafts generated from a batch
// GET /api/v1/batches/:id/drafts
func (r *Router) listBatchDrafts(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUID(c, "id", "batch")
	if !ok {
		return
	}

	if _, err := r.batches.GetByID(ctx, id); err != nil {
		handleRepositoryError(c, err, "batch", "get")
		return
	}

	drafts, err := r.drafts.ListByBatch(ctx, id)
	if err != nil {
		r.logger.Error("failed to list batch drafts",
			logger.String("batch_id", id),
			logger.Error(err))
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
