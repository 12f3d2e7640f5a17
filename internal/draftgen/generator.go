// Package draftgen turns item clusters into marketplace-ready draft
// listings using vision analysis, enforcing the content policy before
// handing drafts to the validation gate.
package draftgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/validation"
)

// ErrAnalysisFailed is returned when the vision model cannot produce a
// usable analysis for a cluster. The cluster still gets an explicit
// failure record; it is never silently dropped.
var ErrAnalysisFailed = errors.New("cluster analysis failed")

// Vision abstracts the chat-completion call so tests can stub the model.
type Vision interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator produces one draft per item cluster.
type Generator struct {
	client      Vision
	model       string
	maxPerCall  int
	temperature float32
	logger      logger.Logger
}

// New creates a Generator backed by the OpenAI API. The API key is read
// from OPENAI_API_KEY.
func New(cfg config.OpenAIConfig, log logger.Logger) (*Generator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return NewWithClient(openai.NewClient(apiKey), cfg, log), nil
}

// NewWithClient creates a Generator with an explicit vision client.
func NewWithClient(client Vision, cfg config.OpenAIConfig, log logger.Logger) *Generator {
	maxPerCall := cfg.MaxPerCall
	if maxPerCall <= 0 {
		maxPerCall = 25
	}
	return &Generator{
		client:      client,
		model:       cfg.Model,
		maxPerCall:  maxPerCall,
		temperature: cfg.Temperature,
		logger:      log,
	}
}

// clusterAnalysis is the JSON shape the model is instructed to return.
type clusterAnalysis struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Size        string   `json:"size"`
	Condition   string   `json:"condition"`
	Color       string   `json:"color"`
	Hashtags    []string `json:"hashtags"`
	Confidence  float64  `json:"confidence"`
}

// Generate produces exactly one draft for the cluster. A cluster that
// cannot be confidently analyzed still yields a draft, with low confidence
// and publish_ready=false; only a failed model call returns an error.
func (g *Generator) Generate(ctx context.Context, batchID string, c domain.ItemCluster) (*domain.Draft, error) {
	analysis, err := g.analyze(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	draft := g.buildDraft(batchID, c, analysis)

	result := validation.Validate(draft)
	draft.PublishReady = result.Ready
	draft.MissingFields = result.MissingFields

	g.logger.Debug("draft generated",
		logger.String("batch_id", batchID),
		logger.Int("cluster", c.Index),
		logger.Bool("publish_ready", draft.PublishReady),
		logger.Float64("confidence", draft.Confidence))

	return draft, nil
}

// analyze sends the cluster's photos to the vision model in bounded groups
// and merges the results. Later groups only fill fields the first group
// left empty; confidence is the minimum across groups.
func (g *Generator) analyze(ctx context.Context, c domain.ItemCluster) (*clusterAnalysis, error) {
	refs := append([]string{}, c.PhotoRefs...)
	for _, l := range c.Labels {
		refs = append(refs, l.Ref)
	}

	var merged *clusterAnalysis
	for start := 0; start < len(refs); start += g.maxPerCall {
		end := start + g.maxPerCall
		if end > len(refs) {
			end = len(refs)
		}

		analysis, err := g.analyzeGroup(ctx, refs[start:end])
		if err != nil {
			return nil, err
		}

		if merged == nil {
			merged = analysis
			continue
		}
		mergeAnalysis(merged, analysis)
	}

	if merged == nil {
		return nil, errors.New("cluster has no photos")
	}
	return merged, nil
}

func (g *Generator) analyzeGroup(ctx context.Context, refs []string) (*clusterAnalysis, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: analysisPrompt},
	}
	for _, ref := range refs {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    ref,
				Detail: openai.ImageURLDetailLow,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("vision call returned no choices")
	}

	var analysis clusterAnalysis
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	return &analysis, nil
}

func mergeAnalysis(dst, src *clusterAnalysis) {
	if dst.Brand == "" {
		dst.Brand = src.Brand
	}
	if dst.Size == "" {
		dst.Size = src.Size
	}
	if dst.Color == "" {
		dst.Color = src.Color
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if src.Confidence < dst.Confidence {
		dst.Confidence = src.Confidence
	}
}

// buildDraft applies the content policy to a raw analysis: title bounded,
// description scrubbed, required attributes defaulted, hashtags appended,
// pricing computed.
func (g *Generator) buildDraft(batchID string, c domain.ItemCluster, a *clusterAnalysis) *domain.Draft {
	size := strings.TrimSpace(a.Size)
	if size == "" {
		size = defaultSize
	}
	condition := strings.TrimSpace(a.Condition)
	if condition == "" {
		condition = defaultCondition
	}

	title := scrubTitle(a.Title, a.Brand, a.Category, a.Color, size, condition)
	description := scrubDescription(a.Description)
	hashtags := normalizeHashtags(a.Hashtags, a.Brand, a.Category, a.Color)

	refs := append([]string{}, c.PhotoRefs...)
	for _, l := range c.Labels {
		refs = append(refs, l.Ref)
	}

	confidence := a.Confidence * c.Confidence

	return &domain.Draft{
		ID:           uuid.NewString(),
		BatchID:      batchID,
		ClusterIndex: c.Index,
		Title:        title,
		Description:  description,
		Brand:        strings.TrimSpace(a.Brand),
		Category:     strings.TrimSpace(a.Category),
		Size:         size,
		Condition:    condition,
		Color:        strings.TrimSpace(a.Color),
		PhotoRefs:    refs,
		Price:        SuggestPrice(a.Category, a.Brand, condition),
		Hashtags:     hashtags,
		Confidence:   confidence,
		State:        domain.DraftStateDraft,
		Revision:     1,
	}
}
