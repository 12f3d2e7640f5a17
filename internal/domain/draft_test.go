package domain

import "testing"

func TestFailedClusterDraftIsRejectedPlaceholder(t *testing.T) {
	c := ItemCluster{
		Index:     2,
		PhotoRefs: []string{"a.jpg", "b.jpg"},
		Labels:    []LabelPhoto{{Ref: "tag.jpg", Kind: LabelBrand}},
	}

	d := FailedClusterDraft("batch-1", c)

	if d.State != DraftStateRejected {
		t.Errorf("State = %v, want rejected", d.State)
	}
	if d.PublishReady {
		t.Error("placeholder must never be publish-ready")
	}
	if len(d.MissingFields) == 0 {
		t.Error("placeholder must name the failed rule")
	}
	if len(d.PhotoRefs) != 3 {
		t.Errorf("PhotoRefs = %v, want cluster photos plus label", d.PhotoRefs)
	}
	if d.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", d.Confidence)
	}
}

func TestPriceRangeOrdered(t *testing.T) {
	tests := []struct {
		name string
		p    PriceRange
		want bool
	}{
		{"ordered band", PriceRange{Min: 10, Target: 15, Max: 20}, true},
		{"target below min", PriceRange{Min: 15, Target: 10, Max: 20}, false},
		{"max below target", PriceRange{Min: 10, Target: 25, Max: 20}, false},
		{"zero min", PriceRange{Min: 0, Target: 15, Max: 20}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Ordered(); got != tt.want {
				t.Errorf("Ordered() = %v, want %v", got, tt.want)
			}
		})
	}
}
