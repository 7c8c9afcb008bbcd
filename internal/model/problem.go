package model

import (
	"fmt"
	"strings"
)

// ProblemType distinguishes how an answer is checked.
type ProblemType string

const (
	ProblemObjective   ProblemType = "objective"
	ProblemShortAnswer ProblemType = "short_answer"
)

// IsValid reports whether t is a known problem type.
func (t ProblemType) IsValid() bool {
	return t == ProblemObjective || t == ProblemShortAnswer
}

// Difficulty represents problem difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// MaxOptions is the number of labeled options an objective problem may carry.
const MaxOptions = 5

// Problem is a quiz item. Problems are immutable once stored.
type Problem struct {
	ID            string      `json:"id"`
	Subject       string      `json:"subject"`
	Grade         string      `json:"grade"`
	Type          ProblemType `json:"type"`
	Difficulty    Difficulty  `json:"difficulty"`
	KeywordTag    string      `json:"keywords"`
	Content       string      `json:"content"`
	Options       []string    `json:"options,omitempty"`
	CorrectAnswer string      `json:"correct_answer"`
	Explanation   string      `json:"explanation"`
}

// Validate checks the fields every stored problem must carry.
func (p Problem) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: problem id is empty", ErrMalformedRecord)
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: problem %s has no content", ErrMalformedRecord, p.ID)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: problem %s has unknown type %q", ErrMalformedRecord, p.ID, p.Type)
	}
	if strings.TrimSpace(p.CorrectAnswer) == "" {
		return fmt.Errorf("%w: problem %s has no correct answer", ErrMalformedRecord, p.ID)
	}
	if len(p.Options) > MaxOptions {
		return fmt.Errorf("%w: problem %s has %d options", ErrMalformedRecord, p.ID, len(p.Options))
	}
	if p.Type == ProblemObjective && len(p.Options) == 0 {
		return fmt.Errorf("%w: objective problem %s has no options", ErrMalformedRecord, p.ID)
	}
	return nil
}

// ProblemFilter narrows the problem bank for an exam session.
// Empty fields match everything.
type ProblemFilter struct {
	Subject    string      `json:"subject,omitempty"`
	Grade      string      `json:"grade,omitempty"`
	Type       ProblemType `json:"type,omitempty"`
	Difficulty Difficulty  `json:"difficulty,omitempty"`
}

// Match reports whether p satisfies the filter.
func (f ProblemFilter) Match(p Problem) bool {
	if f.Subject != "" && !strings.EqualFold(f.Subject, p.Subject) {
		return false
	}
	if f.Grade != "" && f.Grade != p.Grade {
		return false
	}
	if f.Type != "" && f.Type != p.Type {
		return false
	}
	if f.Difficulty != "" && f.Difficulty != p.Difficulty {
		return false
	}
	return true
}
