// Package llm wraps the generative-language providers used for grading and
// problem generation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/tutor/internal/llm/prompts"
)

// Scores a grading response may carry.
const (
	ScoreIncorrect = 0
	ScoreCorrect   = 100
)

// GradeInput is one answer to grade.
type GradeInput struct {
	Question      string
	StudentAnswer string
	CorrectAnswer string
	Explanation   string
	Objective     bool
}

// GradeResult holds the model's verdict on a single answer.
type GradeResult struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

var gradeSchema = &Schema{
	Name:        "grade-result",
	Description: "Verdict on one quiz answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":    map[string]any{"type": "integer", "enum": []any{ScoreIncorrect, ScoreCorrect}},
			"feedback": map[string]any{"type": "string"},
		},
		"required":             []any{"score", "feedback"},
		"additionalProperties": false,
	},
}

// Client grades answers through a Provider.
type Client struct {
	provider Provider
	variant  prompts.PromptVariant
	timeout  time.Duration
}

// New creates a Client. An unknown variant is an error.
func New(provider Provider, variant string, timeout time.Duration) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("LLM provider is required")
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &Client{
		provider: provider,
		variant:  prompts.PromptVariant(variant),
		timeout:  timeout,
	}, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// GradeAnswer asks the model whether the answer is correct.
func (c *Client) GradeAnswer(ctx context.Context, in GradeInput) (*GradeResult, error) {
	prompt, err := prompts.BuildGradePrompt(c.variant, prompts.GradeData{
		Question:      in.Question,
		CorrectAnswer: in.CorrectAnswer,
		Explanation:   in.Explanation,
		Objective:     in.Objective,
		Answer:        in.StudentAnswer,
	})
	if err != nil {
		return nil, fmt.Errorf("build grade prompt: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.provider.Generate(ctx, Request{
		Messages:    UserMessage(prompt),
		Schema:      gradeSchema,
		MaxTokens:   512,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading call: %w", err)
	}
	slog.Debug("LLM grade response", "raw", string(resp.Content))

	var result GradeResult
	if err := json.Unmarshal(resp.Content, &result); err != nil {
		return nil, invalidResponse("decode grade: %w", err)
	}
	return &result, nil
}
