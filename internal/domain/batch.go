package domain

import (
	"time"

	"github.com/lib/pq"
)

// JobStatus represents the processing state of a photo batch job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// MaxBatchPhotos bounds the number of photo references accepted per batch.
const MaxBatchPhotos = 500

// PhotoBatch represents a submitted batch of product photographs processed
// as an asynchronous job. Callers poll by ID; Progress is monotonically
// non-decreasing while the job runs.
type PhotoBatch struct {
	ID               string         `db:"id"                 json:"id"`
	PhotoRefs        pq.StringArray `db:"photo_refs"         json:"photo_refs"`
	AssumeSingleItem bool           `db:"assume_single_item" json:"assume_single_item"`
	Status           JobStatus      `db:"status"             json:"status"`
	Progress         int            `db:"progress"           json:"progress"`
	ProcessedCount   int            `db:"processed_count"    json:"processed_count"`
	ClusterCount     int            `db:"cluster_count"      json:"cluster_count"`
	FailureReason    *string        `db:"failure_reason"     json:"failure_reason,omitempty"`
	CreatedAt        time.Time      `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"         json:"updated_at"`
}

// LabelKind classifies a detected label-type photo.
type LabelKind string

const (
	LabelNone  LabelKind = ""
	LabelCare  LabelKind = "care"
	LabelBrand LabelKind = "brand"
	LabelSize  LabelKind = "size"
)

// LabelPhoto is a detected label-type photo attached to a cluster.
type LabelPhoto struct {
	Ref  string    `json:"ref"`
	Kind LabelKind `json:"kind"`
}

// ItemCluster is a group of photos believed to depict one physical item.
// Label photos (care tags, brand tags, size labels) are attached to the
// cluster rather than forming clusters of their own.
type ItemCluster struct {
	Index      int          `json:"index"`
	PhotoRefs  []string     `json:"photo_refs"`
	Labels     []LabelPhoto `json:"labels,omitempty"`
	Confidence float64      `json:"confidence"`
}

// Size returns the number of item photos in the cluster, excluding
// attached label photos.
func (c *ItemCluster) Size() int {
	return len(c.PhotoRefs)
}
