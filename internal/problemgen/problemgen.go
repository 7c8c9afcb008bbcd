// Package problemgen asks a language model for new quiz problems.
package problemgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/weakness"
)

// MaxCount bounds the problems requested in one call.
const MaxCount = 20

// Spec describes the problems to generate.
type Spec struct {
	Subject    string            `json:"subject"`
	Grade      string            `json:"grade"`
	Type       model.ProblemType `json:"type"`
	Difficulty model.Difficulty  `json:"difficulty"`
	Keywords   []string          `json:"keywords"`
	Count      int               `json:"count"`
}

// Validate fills defaults and rejects unusable specs.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Subject) == "" {
		s.Subject = "English"
	}
	if s.Type == "" {
		s.Type = model.ProblemObjective
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("unknown problem type %q", s.Type)
	}
	if s.Difficulty == "" {
		s.Difficulty = model.DifficultyMedium
	}
	if s.Count <= 0 {
		s.Count = 5
	}
	if s.Count > MaxCount {
		return fmt.Errorf("count %d exceeds the maximum of %d", s.Count, MaxCount)
	}
	return nil
}

type generated struct {
	Content       string   `json:"content"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Keywords      string   `json:"keywords"`
}

var problemsSchema = &llm.Schema{
	Name:        "generated-problems",
	Description: "A batch of English quiz problems",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"problems": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"content":        map[string]any{"type": "string"},
						"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"correct_answer": map[string]any{"type": "string"},
						"explanation":    map[string]any{"type": "string"},
						"keywords":       map[string]any{"type": "string"},
					},
					"required":             []any{"content", "options", "correct_answer", "explanation", "keywords"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"problems"},
		"additionalProperties": false,
	},
}

// Generator produces problems through a Provider.
type Generator struct {
	provider llm.Provider
	newID    func() string
}

// New creates a Generator.
func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider, newID: uuid.NewString}
}

// Generate requests spec.Count problems and returns the usable ones with
// fresh IDs. Problems that fail validation are dropped and logged.
func (g *Generator) Generate(ctx context.Context, spec Spec) ([]model.Problem, error) {
	if g.provider == nil {
		return nil, errors.New("no LLM provider configured")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	prompt, err := prompts.BuildGeneratePrompt(prompts.GenerateData{
		Subject:    spec.Subject,
		Grade:      spec.Grade,
		Type:       string(spec.Type),
		Difficulty: string(spec.Difficulty),
		Keywords:   spec.Keywords,
		Count:      spec.Count,
		MaxOptions: model.MaxOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("build generate prompt: %w", err)
	}

	resp, err := g.provider.Generate(ctx, llm.Request{
		Messages:    llm.UserMessage(prompt),
		Schema:      problemsSchema,
		MaxTokens:   4096,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("generate problems: %w", err)
	}

	var out struct {
		Problems []generated `json:"problems"`
	}
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("parse generated problems: %w", err)
	}

	var problems []model.Problem
	for i, gp := range out.Problems {
		p, err := g.toProblem(spec, gp)
		if err != nil {
			slog.Warn("dropping generated problem", "index", i, "error", err)
			continue
		}
		problems = append(problems, p)
	}
	slog.Info("generated problems", "requested", spec.Count, "returned", len(out.Problems), "kept", len(problems), "model", g.provider.ModelID())
	return problems, nil
}

func (g *Generator) toProblem(spec Spec, gp generated) (model.Problem, error) {
	keywords := weakness.ExtractKeywords(gp.Keywords)
	if len(keywords) == 0 {
		keywords = weakness.ExtractKeywords(strings.Join(spec.Keywords, ","))
	}

	p := model.Problem{
		ID:            g.newID(),
		Subject:       spec.Subject,
		Grade:         spec.Grade,
		Type:          spec.Type,
		Difficulty:    spec.Difficulty,
		KeywordTag:    strings.Join(keywords, ", "),
		Content:       strings.TrimSpace(gp.Content),
		CorrectAnswer: strings.TrimSpace(gp.CorrectAnswer),
		Explanation:   strings.TrimSpace(gp.Explanation),
	}
	if spec.Type == model.ProblemObjective {
		for _, opt := range gp.Options {
			if opt = strings.TrimSpace(opt); opt != "" {
				p.Options = append(p.Options, opt)
			}
		}
		if len(p.Options) > 0 && !slices.Contains(p.Options, p.CorrectAnswer) {
			return p, fmt.Errorf("%w: correct answer %q is not among the options", model.ErrMalformedRecord, p.CorrectAnswer)
		}
	}
	return p, p.Validate()
}
