package cluster_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/listforge/listforge/internal/cluster"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// fakeSource serves pre-built images by reference.
type fakeSource struct {
	images map[string]image.Image
	err    error
}

func (f *fakeSource) Fetch(_ context.Context, ref string) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	img, ok := f.images[ref]
	if !ok {
		return nil, errors.New("unknown ref: " + ref)
	}
	return img, nil
}

// patternImage builds a 90x80 image of 10x10 blocks whose brightness is
// drawn from a seeded PRNG. The block grid survives downscaling, so images
// with the same seed hash identically and different seeds hash far apart.
func patternImage(seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, 90, 80))
	levels := []uint8{0, 128, 255}
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 9; bx++ {
			v := levels[rng.Intn(len(levels))]
			fillBlock(img, bx, by, v)
		}
	}
	return img
}

// nearImage is patternImage with one block mildly darkened, simulating
// another shot of the same item.
func nearImage(seed int64) image.Image {
	img := patternImage(seed).(*image.RGBA)
	// Nudge the top-left block without crossing another block's level.
	i := img.PixOffset(0, 0)
	v := img.Pix[i]
	if v >= 30 {
		v -= 25
	} else {
		v += 25
	}
	fillBlock(img, 0, 0, v)
	return img
}

func fillBlock(img *image.RGBA, bx, by int, v uint8) {
	for y := by * 10; y < (by+1)*10; y++ {
		for x := bx * 10; x < (bx+1)*10; x++ {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func newClusterer(src cluster.PhotoSource) *cluster.Clusterer {
	return cluster.New(src, logger.NewNop())
}

func TestClusterEmptyBatch(t *testing.T) {
	c := newClusterer(&fakeSource{})
	_, err := c.Cluster(context.Background(), nil, false)
	if !errors.Is(err, domain.ErrEmptyBatch) {
		t.Errorf("Cluster() error = %v, want ErrEmptyBatch", err)
	}
}

func TestClusterTooLarge(t *testing.T) {
	refs := make([]string, domain.MaxBatchPhotos+1)
	for i := range refs {
		refs[i] = "p.jpg"
	}
	c := newClusterer(&fakeSource{})
	_, err := c.Cluster(context.Background(), refs, false)
	if !errors.Is(err, domain.ErrBatchTooLarge) {
		t.Errorf("Cluster() error = %v, want ErrBatchTooLarge", err)
	}
}

func TestClusterSourceFailureFailsBatch(t *testing.T) {
	c := newClusterer(&fakeSource{err: errors.New("service unavailable")})
	_, err := c.Cluster(context.Background(), []string{"a.jpg", "b.jpg", "c.jpg"}, false)
	if err == nil {
		t.Fatal("Cluster() expected error when photo source is unavailable")
	}
}

func TestClusterSingleItemHint(t *testing.T) {
	src := &fakeSource{images: map[string]image.Image{
		"front.jpg":     patternImage(5),
		"back.jpg":      nearImage(5),
		"detail.jpg":    patternImage(90),
		"care_tag.jpg":  patternImage(41),
		"size_shot.jpg": patternImage(17),
		"worn.jpg":      nearImage(90),
	}}
	refs := []string{"front.jpg", "back.jpg", "detail.jpg", "care_tag.jpg", "size_shot.jpg", "worn.jpg"}

	clusters, err := newClusterer(src).Cluster(context.Background(), refs, true)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("Cluster() returned %d clusters, want 1", len(clusters))
	}

	got := clusters[0]
	if got.Size() != 4 {
		t.Errorf("cluster has %d item photos, want 4 (labels excluded)", got.Size())
	}
	if len(got.Labels) != 2 {
		t.Errorf("cluster has %d labels, want 2", len(got.Labels))
	}
}

func TestClusterGroupsSimilarPhotos(t *testing.T) {
	src := &fakeSource{images: map[string]image.Image{
		"item1_a.jpg": patternImage(5),
		"item1_b.jpg": nearImage(5),
		"item1_c.jpg": patternImage(5),
		"item2_a.jpg": patternImage(111),
		"item2_b.jpg": nearImage(111),
		"item2_c.jpg": patternImage(111),
	}}
	refs := []string{"item1_a.jpg", "item1_b.jpg", "item1_c.jpg", "item2_a.jpg", "item2_b.jpg", "item2_c.jpg"}

	clusters, err := newClusterer(src).Cluster(context.Background(), refs, false)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("Cluster() returned %d clusters, want 2", len(clusters))
	}

	for _, c := range clusters {
		if c.Confidence <= 0 || c.Confidence > 1 {
			t.Errorf("confidence %v out of range (0,1]", c.Confidence)
		}
	}
}

func TestClusterDeterminism(t *testing.T) {
	src := &fakeSource{images: map[string]image.Image{
		"a.jpg": patternImage(3),
		"b.jpg": nearImage(3),
		"c.jpg": patternImage(3),
		"d.jpg": patternImage(77),
		"e.jpg": nearImage(77),
		"f.jpg": patternImage(77),
	}}
	refs := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"}

	c := newClusterer(src)
	first, err := c.Cluster(context.Background(), refs, false)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	for run := 0; run < 3; run++ {
		again, err := c.Cluster(context.Background(), refs, false)
		if err != nil {
			t.Fatalf("Cluster() run %d error = %v", run, err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: cluster count %d != %d", run, len(again), len(first))
		}
		for i := range first {
			if len(again[i].PhotoRefs) != len(first[i].PhotoRefs) {
				t.Errorf("run %d cluster %d: membership differs", run, i)
				continue
			}
			for j := range first[i].PhotoRefs {
				if again[i].PhotoRefs[j] != first[i].PhotoRefs[j] {
					t.Errorf("run %d cluster %d photo %d: %q != %q",
						run, i, j, again[i].PhotoRefs[j], first[i].PhotoRefs[j])
				}
			}
		}
	}
}

func TestLabelPhotosNeverStandalone(t *testing.T) {
	// Two label photos hash far from everything; they must still attach to
	// an item cluster instead of forming their own.
	src := &fakeSource{images: map[string]image.Image{
		"item_a.jpg":    patternImage(5),
		"item_b.jpg":    nearImage(5),
		"item_c.jpg":    patternImage(5),
		"care_tag.jpg":  patternImage(201),
		"size_tag.jpg":  patternImage(149),
		"brand_tag.jpg": patternImage(233),
	}}
	refs := []string{"item_a.jpg", "item_b.jpg", "item_c.jpg", "care_tag.jpg", "size_tag.jpg", "brand_tag.jpg"}

	clusters, err := newClusterer(src).Cluster(context.Background(), refs, false)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	totalLabels := 0
	for _, c := range clusters {
		for _, ref := range c.PhotoRefs {
			for _, l := range c.Labels {
				if ref == l.Ref {
					t.Errorf("photo %q is both item photo and label", ref)
				}
			}
		}
		totalLabels += len(c.Labels)

		if c.Size() == 0 {
			t.Error("cluster consists only of label photos")
		}
	}
	if totalLabels != 3 {
		t.Errorf("attached %d labels, want 3", totalLabels)
	}
}

func TestSmallClustersMergedIntoNearest(t *testing.T) {
	// One dominant item plus a lone outlier shot: the outlier must merge
	// rather than surface as its own item.
	src := &fakeSource{images: map[string]image.Image{
		"main_a.jpg": patternImage(9),
		"main_b.jpg": nearImage(9),
		"main_c.jpg": patternImage(9),
		"main_d.jpg": nearImage(9),
		"stray.jpg":  patternImage(187),
	}}
	refs := []string{"main_a.jpg", "main_b.jpg", "main_c.jpg", "main_d.jpg", "stray.jpg"}

	clusters, err := newClusterer(src).Cluster(context.Background(), refs, false)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("Cluster() returned %d clusters, want 1 after merge", len(clusters))
	}
	if clusters[0].Size() != 5 {
		t.Errorf("merged cluster has %d photos, want 5", clusters[0].Size())
	}
}

func TestHashDistance(t *testing.T) {
	a := cluster.ComputeHash(patternImage(5))
	b := cluster.ComputeHash(nearImage(5))
	far := cluster.ComputeHash(patternImage(150))

	if d := cluster.Distance(a, a); d != 0 {
		t.Errorf("Distance(a, a) = %d, want 0", d)
	}
	if near, distant := cluster.Distance(a, b), cluster.Distance(a, far); near >= distant {
		t.Errorf("near distance %d should be below distant %d", near, distant)
	}
}
