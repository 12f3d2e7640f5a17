package domain

// BatchStats summarizes the batch job queue.
type BatchStats struct {
	Pending              int64   `json:"pending"`
	Processing           int64   `json:"processing"`
	Completed            int64   `json:"completed"`
	Failed               int64   `json:"failed"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
}

// DraftStats summarizes drafts by lifecycle state and readiness.
type DraftStats struct {
	Draft         int64 `json:"draft"`
	Published     int64 `json:"published"`
	Rejected      int64 `json:"rejected"`
	PublishReady  int64 `json:"publish_ready"`
	NeedingReview int64 `json:"needing_review"`
}

// PublishStats summarizes publish attempt outcomes.
type PublishStats struct {
	Success              int64 `json:"success"`
	Failed               int64 `json:"failed"`
	Duplicate            int64 `json:"duplicate"`
	VerificationRequired int64 `json:"verification_required"`
	Timeout              int64 `json:"timeout"`
	DryRun               int64 `json:"dry_run"`
}

// Stats is the aggregate operational snapshot served by the stats endpoint.
type Stats struct {
	Batches BatchStats   `json:"batches"`
	Drafts  DraftStats   `json:"drafts"`
	Publish PublishStats `json:"publish"`
}
