// Package cluster groups a photo batch into candidate item clusters using
// perceptual hashing, with detected label photos attached to the nearest
// item cluster rather than surfaced as clusters of their own.
package cluster

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

const (
	// defaultDistanceThreshold is the maximum Hamming distance at which two
	// photos are considered to depict the same item.
	defaultDistanceThreshold = 14

	// minClusterSize is the photo count at or below which a cluster is
	// merged into the nearest larger cluster instead of surfacing as a
	// separate item. Prevents fragmenting one garment into spurious drafts.
	minClusterSize = 2

	// singleItemMax is the batch size at or below which the
	// assume_single_item hint short-circuits clustering.
	singleItemMax = 10

	hashBits = 64
)

// PhotoSource resolves a photo reference to decoded image data.
type PhotoSource interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
}

// Clusterer groups batches of photos into item clusters.
type Clusterer struct {
	source    PhotoSource
	threshold int
	logger    logger.Logger
}

// New creates a Clusterer reading photos from source.
func New(source PhotoSource, log logger.Logger) *Clusterer {
	return &Clusterer{
		source:    source,
		threshold: defaultDistanceThreshold,
		logger:    log,
	}
}

type photo struct {
	ref   string
	hash  Hash
	label domain.LabelKind
}

// Cluster groups the ordered photo references into item clusters. The result
// is deterministic for a given ordered input: photos are visited in order and
// ties resolve to the earlier cluster. An unreachable photo source fails the
// whole batch; partial results are never returned as complete.
func (c *Clusterer) Cluster(ctx context.Context, refs []string, assumeSingleItem bool) ([]domain.ItemCluster, error) {
	if len(refs) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(refs) > domain.MaxBatchPhotos {
		return nil, domain.ErrBatchTooLarge
	}

	photos, err := c.analyze(ctx, refs)
	if err != nil {
		return nil, err
	}

	if assumeSingleItem && len(refs) <= singleItemMax {
		return []domain.ItemCluster{singleCluster(photos)}, nil
	}

	groups := c.group(photos)
	clusters := mergeSmall(groups, c.threshold)
	attachLabels(clusters, photos)

	for i := range clusters {
		clusters[i].Index = i
	}

	c.logger.Debug("batch clustered",
		logger.Int("photos", len(refs)),
		logger.Int("clusters", len(clusters)))

	return clusters, nil
}

// analyze fetches and hashes every photo. Any fetch failure aborts the batch.
func (c *Clusterer) analyze(ctx context.Context, refs []string) ([]photo, error) {
	photos := make([]photo, 0, len(refs))
	for _, ref := range refs {
		img, err := c.source.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("fetch photo %s: %w", ref, err)
		}
		photos = append(photos, photo{
			ref:   ref,
			hash:  ComputeHash(img),
			label: detectLabel(ref),
		})
	}
	return photos, nil
}

// internal grouping cluster, keeps hashes for distance computations.
type group struct {
	photos []photo
}

func (g *group) distanceTo(h Hash) int {
	best := hashBits + 1
	for _, p := range g.photos {
		if d := Distance(p.hash, h); d < best {
			best = d
		}
	}
	return best
}

// group greedily assigns non-label photos to clusters in input order.
func (c *Clusterer) group(photos []photo) []*group {
	var groups []*group
	for _, p := range photos {
		if p.label != domain.LabelNone {
			continue
		}

		assigned := false
		for _, g := range groups {
			if g.distanceTo(p.hash) <= c.threshold {
				g.photos = append(g.photos, p)
				assigned = true
				break
			}
		}
		if !assigned {
			groups = append(groups, &group{photos: []photo{p}})
		}
	}
	return groups
}

// mergeSmall folds clusters at or below minClusterSize into the nearest
// larger cluster, then converts groups to domain clusters with confidence
// derived from intra-cluster cohesion.
func mergeSmall(groups []*group, threshold int) []domain.ItemCluster {
	var large, small []*group
	for _, g := range groups {
		if len(g.photos) > minClusterSize {
			large = append(large, g)
		} else {
			small = append(small, g)
		}
	}

	// Nothing bigger to merge into: keep the first group as the anchor.
	if len(large) == 0 && len(small) > 0 {
		large = small[:1]
		small = small[1:]
	}

	for _, s := range small {
		target := large[0]
		best := hashBits + 1
		for _, l := range large {
			for _, p := range s.photos {
				if d := l.distanceTo(p.hash); d < best {
					best = d
					target = l
				}
			}
		}
		target.photos = append(target.photos, s.photos...)
	}

	clusters := make([]domain.ItemCluster, 0, len(large))
	for _, g := range large {
		clusters = append(clusters, toCluster(g, threshold))
	}
	return clusters
}

func toCluster(g *group, threshold int) domain.ItemCluster {
	refs := make([]string, 0, len(g.photos))
	for _, p := range g.photos {
		refs = append(refs, p.ref)
	}
	return domain.ItemCluster{
		PhotoRefs:  refs,
		Confidence: cohesion(g, threshold),
	}
}

// cohesion scores how tightly a cluster's photos hash together, in (0, 1].
func cohesion(g *group, threshold int) float64 {
	if len(g.photos) <= 1 {
		return 0.5
	}

	total := 0
	pairs := 0
	for i := 0; i < len(g.photos); i++ {
		for j := i + 1; j < len(g.photos); j++ {
			total += Distance(g.photos[i].hash, g.photos[j].hash)
			pairs++
		}
	}
	avg := float64(total) / float64(pairs)

	score := 1.0 - avg/float64(2*threshold)
	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// attachLabels assigns each detected label photo to the hash-nearest cluster.
func attachLabels(clusters []domain.ItemCluster, photos []photo) {
	if len(clusters) == 0 {
		return
	}

	hashesByRef := make(map[string]Hash, len(photos))
	for _, p := range photos {
		hashesByRef[p.ref] = p.hash
	}

	for _, p := range photos {
		if p.label == domain.LabelNone {
			continue
		}

		bestIdx := 0
		best := hashBits + 1
		for i := range clusters {
			for _, ref := range clusters[i].PhotoRefs {
				if d := Distance(hashesByRef[ref], p.hash); d < best {
					best = d
					bestIdx = i
				}
			}
		}
		clusters[bestIdx].Labels = append(clusters[bestIdx].Labels, domain.LabelPhoto{
			Ref:  p.ref,
			Kind: p.label,
		})
	}
}

func singleCluster(photos []photo) domain.ItemCluster {
	c := domain.ItemCluster{Index: 0, Confidence: 0.95}
	for _, p := range photos {
		if p.label != domain.LabelNone {
			c.Labels = append(c.Labels, domain.LabelPhoto{Ref: p.ref, Kind: p.label})
			continue
		}
		c.PhotoRefs = append(c.PhotoRefs, p.ref)
	}
	return c
}

// detectLabel classifies a photo reference as a label-type shot based on
// capture annotations in the reference name. Upload clients tag label
// close-ups when capturing them.
func detectLabel(ref string) domain.LabelKind {
	lower := strings.ToLower(ref)
	switch {
	case strings.Contains(lower, "care"):
		return domain.LabelCare
	case strings.Contains(lower, "brand") || strings.Contains(lower, "logo"):
		return domain.LabelBrand
	case strings.Contains(lower, "size"):
		return domain.LabelSize
	case strings.Contains(lower, "label") || strings.Contains(lower, "tag"):
		return domain.LabelCare
	default:
		return domain.LabelNone
	}
}
