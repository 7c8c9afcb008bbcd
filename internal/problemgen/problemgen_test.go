package problemgen

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/model"
)

func newTestGenerator(responses ...llm.MockResponse) (*Generator, *llm.MockProvider) {
	mock := llm.NewMockProvider(responses...)
	g := New(mock)
	n := 0
	g.newID = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	return g, mock
}

const batch = `{"problems": [
  {"content": "I ___ a student.", "options": ["am", "is", "are"], "correct_answer": "am", "explanation": "First person singular.", "keywords": "be-verb, present tense, be-verb"},
  {"content": "She ___ apples.", "options": ["like", "likes"], "correct_answer": "liked", "explanation": "x", "keywords": "present tense"},
  {"content": "Pick one.", "options": [], "correct_answer": "a", "explanation": "x", "keywords": "article"},
  {"content": "___ umbrella", "options": ["a", "an"], "correct_answer": "an", "explanation": "Vowel sound.", "keywords": ""}
]}`

func TestGenerate(t *testing.T) {
	g, mock := newTestGenerator(llm.MockResponse{Content: json.RawMessage(batch)})

	problems, err := g.Generate(context.Background(), Spec{
		Grade:      "7",
		Type:       model.ProblemObjective,
		Difficulty: model.DifficultyEasy,
		Keywords:   []string{"article"},
		Count:      4,
	})
	require.NoError(t, err)
	require.Len(t, problems, 2)

	first := problems[0]
	assert.Equal(t, "gen-1", first.ID)
	assert.Equal(t, "English", first.Subject)
	assert.Equal(t, "7", first.Grade)
	assert.Equal(t, "be-verb, present tense", first.KeywordTag)
	assert.Equal(t, []string{"am", "is", "are"}, first.Options)

	// Missing keywords fall back to the requested ones.
	assert.Equal(t, "article", problems[1].KeywordTag)

	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, "generated-problems", mock.Calls[0].Schema.Name)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "Write 4 new problems")
}

func TestGenerateShortAnswer(t *testing.T) {
	resp := `{"problems": [{"content": "Plural of child?", "options": [], "correct_answer": "children", "explanation": "Irregular plural.", "keywords": "plural"}]}`
	g, _ := newTestGenerator(llm.MockResponse{Content: json.RawMessage(resp)})

	problems, err := g.Generate(context.Background(), Spec{Type: model.ProblemShortAnswer, Count: 1})
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Empty(t, problems[0].Options)
	assert.Equal(t, model.DifficultyMedium, problems[0].Difficulty)
}

func TestGenerateInvalidResponse(t *testing.T) {
	g, _ := newTestGenerator(llm.MockResponse{Content: json.RawMessage(`{"items": []}`)})

	_, err := g.Generate(context.Background(), Spec{Count: 1})
	assert.ErrorIs(t, err, llm.ErrInvalidResponse)
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"defaults", Spec{}, false},
		{"bad type", Spec{Type: "essay"}, true},
		{"too many", Spec{Count: MaxCount + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 5, tt.spec.Count)
			assert.Equal(t, model.ProblemObjective, tt.spec.Type)
		})
	}
}

func TestGenerateWithoutProvider(t *testing.T) {
	_, err := New(nil).Generate(context.Background(), Spec{})
	assert.Error(t, err)
}
