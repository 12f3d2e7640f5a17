package draftgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// fakeVision returns canned analyses and records the requests it saw.
type fakeVision struct {
	analysis clusterAnalysis
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeVision) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	body, _ := json.Marshal(f.analysis)
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: string(body)}},
		},
	}, nil
}

func goodAnalysis() clusterAnalysis {
	return clusterAnalysis{
		Title:       "Hoodie black size L – very good condition",
		Description: "Black cotton hoodie. Light wear on the cuffs. No stains.",
		Brand:       "Carhartt",
		Category:    "hoodies",
		Size:        "L",
		Condition:   "very good",
		Color:       "black",
		Hashtags:    []string{"#hoodie", "#carhartt", "#black", "#streetwear", "#vintage"},
		Confidence:  0.9,
	}
}

func testCluster(n int) domain.ItemCluster {
	c := domain.ItemCluster{Index: 0, Confidence: 0.9}
	for i := 0; i < n; i++ {
		c.PhotoRefs = append(c.PhotoRefs, fmt.Sprintf("photo_%d.jpg", i))
	}
	return c
}

func newGenerator(v Vision) *Generator {
	return NewWithClient(v, config.OpenAIConfig{Model: "gpt-4o", MaxPerCall: 25}, logger.NewNop())
}

func TestGenerateProducesReadyDraft(t *testing.T) {
	fake := &fakeVision{analysis: goodAnalysis()}
	g := newGenerator(fake)

	draft, err := g.Generate(context.Background(), "batch-1", testCluster(4))
	require.NoError(t, err)

	assert.True(t, draft.PublishReady, "missing: %v", draft.MissingFields)
	assert.Equal(t, "batch-1", draft.BatchID)
	assert.Equal(t, domain.DraftStateDraft, draft.State)
	assert.Equal(t, 1, draft.Revision)
	assert.Len(t, draft.PhotoRefs, 4)
	assert.True(t, draft.Price.Ordered(), "price = %+v", draft.Price)
	assert.InDelta(t, 0.81, draft.Confidence, 0.001)
}

func TestGenerateEnforcesTitleLimit(t *testing.T) {
	a := goodAnalysis()
	a.Title = strings.Repeat("longword ", 20)
	g := newGenerator(&fakeVision{analysis: a})

	draft, err := g.Generate(context.Background(), "batch-1", testCluster(2))
	require.NoError(t, err)

	assert.LessOrEqual(t, len([]rune(draft.Title)), 70)
	assert.False(t, strings.HasSuffix(draft.Title, " "))
}

func TestGenerateReplacesMarketingTitle(t *testing.T) {
	a := goodAnalysis()
	a.Title = "AMAZING hoodie, the best you will find 🔥"
	g := newGenerator(&fakeVision{analysis: a})

	draft, err := g.Generate(context.Background(), "batch-1", testCluster(2))
	require.NoError(t, err)

	assert.NotContains(t, strings.ToLower(draft.Title), "amazing")
	assert.NotContains(t, draft.Title, "🔥")
	assert.Contains(t, draft.Title, "Carhartt")
}

func TestGenerateDefaultsRequiredAttributes(t *testing.T) {
	a := goodAnalysis()
	a.Size = ""
	a.Condition = ""
	g := newGenerator(&fakeVision{analysis: a})

	draft, err := g.Generate(context.Background(), "batch-1", testCluster(2))
	require.NoError(t, err)

	assert.NotEmpty(t, draft.Size, "size must never be left empty")
	assert.NotEmpty(t, draft.Condition, "condition must never be left empty")
}

func TestGenerateNormalizesHashtags(t *testing.T) {
	a := goodAnalysis()
	a.Hashtags = []string{"hoodie", "#Hoodie", ""}
	g := newGenerator(&fakeVision{analysis: a})

	draft, err := g.Generate(context.Background(), "batch-1", testCluster(2))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(draft.Hashtags), 3)
	assert.LessOrEqual(t, len(draft.Hashtags), 5)
	for _, tag := range draft.Hashtags {
		assert.True(t, strings.HasPrefix(tag, "#"), "tag %q lacks #", tag)
		assert.Equal(t, strings.ToLower(tag), tag, "tag %q not lowercase", tag)
	}
}

func TestNormalizeHashtagsWithoutAttributes(t *testing.T) {
	// No model tags and no garment attributes still yields the minimum.
	tags := normalizeHashtags(nil, "", "", "")

	assert.GreaterOrEqual(t, len(tags), 3)
	for _, tag := range tags {
		assert.True(t, strings.HasPrefix(tag, "#"), "tag %q lacks #", tag)
	}
}

func TestGenerateBatchesLargeClusters(t *testing.T) {
	fake := &fakeVision{analysis: goodAnalysis()}
	g := newGenerator(fake)

	_, err := g.Generate(context.Background(), "batch-1", testCluster(60))
	require.NoError(t, err)

	// 60 photos at 25 per call means three calls.
	assert.Len(t, fake.requests, 3)
	for _, req := range fake.requests {
		require.Len(t, req.Messages, 2)
		parts := req.Messages[1].MultiContent
		imageParts := 0
		for _, p := range parts {
			if p.Type == openai.ChatMessagePartTypeImageURL {
				imageParts++
			}
		}
		assert.LessOrEqual(t, imageParts, 25)
	}
}

func TestGenerateIncludesLabelPhotos(t *testing.T) {
	fake := &fakeVision{analysis: goodAnalysis()}
	g := newGenerator(fake)

	c := testCluster(3)
	c.Labels = []domain.LabelPhoto{{Ref: "care.jpg", Kind: domain.LabelCare}}

	draft, err := g.Generate(context.Background(), "batch-1", c)
	require.NoError(t, err)
	assert.Contains(t, []string(draft.PhotoRefs), "care.jpg")
}

func TestGenerateAnalysisError(t *testing.T) {
	g := newGenerator(&fakeVision{err: errors.New("rate limited")})

	_, err := g.Generate(context.Background(), "batch-1", testCluster(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestSuggestPrice(t *testing.T) {
	tests := []struct {
		name      string
		category  string
		brand     string
		condition string
	}{
		{"premium brand hoodie", "hoodies", "Carhartt", "very good"},
		{"fast fashion tshirt", "tshirts", "H&M", "fair"},
		{"unknown everything", "", "", ""},
		{"new with tags coat", "coats", "Moncler", "new with tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SuggestPrice(tt.category, tt.brand, tt.condition)
			assert.True(t, p.Ordered(), "price = %+v", p)
		})
	}
}

func TestPriceReflectsBrandTier(t *testing.T) {
	premium := SuggestPrice("hoodies", "Stone Island", "very good")
	budget := SuggestPrice("hoodies", "Primark", "very good")
	assert.Greater(t, premium.Target, budget.Target)
}
