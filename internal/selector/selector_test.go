package selector

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
	"github.com/pavelanni/tutor/internal/weakness"
)

// staticWeaknesses serves a fixed profile.
type staticWeaknesses struct {
	stats   map[string]model.WeaknessStat
	outcome model.Outcome
}

func (s staticWeaknesses) GetWeaknesses(context.Context, string) (map[string]model.WeaknessStat, model.Outcome) {
	if s.outcome == "" {
		return s.stats, model.OutcomeOK
	}
	return s.stats, s.outcome
}

func stat(attempts, correct int) model.WeaknessStat {
	return model.WeaknessRecord{Attempts: attempts, Correct: correct}.Stat()
}

func problem(id, tag string) model.Problem {
	return model.Problem{ID: id, KeywordTag: tag, Type: model.ProblemShortAnswer, Content: "q", CorrectAnswer: "a"}
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}

// keywordCounts runs n selections and counts the tag of each chosen problem.
func keywordCounts(t *testing.T, s *Selector, pool []model.Problem, n int) map[string]int {
	t.Helper()
	counts := make(map[string]int)
	for range n {
		p, _ := s.SelectNext(context.Background(), "s1", pool)
		require.NotNil(t, p)
		counts[p.KeywordTag]++
	}
	return counts
}

func TestSelectNextEmptyPool(t *testing.T) {
	s := New(staticWeaknesses{}, DefaultConfig(), seeded())
	p, out := s.SelectNext(context.Background(), "s1", nil)
	assert.Nil(t, p)
	assert.Equal(t, model.OutcomeOK, out)
}

func TestColdStartCoversEveryKeyword(t *testing.T) {
	pool := []model.Problem{
		problem("a1", "A"), problem("a2", "A"), problem("a3", "A"), problem("a4", "A"),
		problem("b1", "B"),
		problem("c1", "C"),
	}
	s := New(staticWeaknesses{}, DefaultConfig(), seeded())

	counts := keywordCounts(t, s, pool, 600)
	for _, kw := range []string{"A", "B", "C"} {
		// Keywords are drawn uniformly, not by problem count.
		assert.Greater(t, counts[kw], 120, "keyword %s selected %d times", kw, counts[kw])
	}
}

func TestColdStartPrefersUnseenKeyword(t *testing.T) {
	pool := []model.Problem{problem("a1", "A"), problem("b1", "B"), problem("c1", "C")}
	ws := staticWeaknesses{stats: map[string]model.WeaknessStat{
		"A": stat(2, 1),
		"B": stat(1, 0),
	}}
	s := New(ws, DefaultConfig(), seeded())

	for range 50 {
		p, _ := s.SelectNext(context.Background(), "s1", pool)
		require.NotNil(t, p)
		assert.Equal(t, "c1", p.ID)
	}
}

func TestColdStartLeastAttempted(t *testing.T) {
	pool := []model.Problem{problem("a1", "A"), problem("b1", "B")}
	ws := staticWeaknesses{stats: map[string]model.WeaknessStat{
		"A": stat(3, 1),
		"B": stat(1, 1),
	}}
	s := New(ws, DefaultConfig(), seeded())

	for range 50 {
		p, _ := s.SelectNext(context.Background(), "s1", pool)
		require.NotNil(t, p)
		assert.Equal(t, "b1", p.ID)
	}
}

func TestColdStartLeastAttemptedOutsidePool(t *testing.T) {
	pool := []model.Problem{problem("a1", "A"), problem("b1", "B")}
	ws := staticWeaknesses{stats: map[string]model.WeaknessStat{
		"A": stat(3, 1),
		"B": stat(2, 1),
		"Z": stat(1, 0),
	}}
	s := New(ws, DefaultConfig(), seeded())

	counts := keywordCounts(t, s, pool, 400)
	assert.Greater(t, counts["A"], 100)
	assert.Greater(t, counts["B"], 100)
}

func TestUntaggedProblemsStillServed(t *testing.T) {
	pool := []model.Problem{problem("x1", ""), problem("x2", " , ")}
	s := New(staticWeaknesses{}, DefaultConfig(), seeded())

	seen := make(map[string]bool)
	for range 100 {
		p, _ := s.SelectNext(context.Background(), "s1", pool)
		require.NotNil(t, p)
		seen[p.ID] = true
	}
	assert.True(t, seen["x1"])
	assert.True(t, seen["x2"])
}

func TestSteadyStateFavorsWeakKeyword(t *testing.T) {
	pool := []model.Problem{
		problem("a1", "A"), problem("a2", "A"),
		problem("b1", "B"), problem("b2", "B"),
	}
	ws := staticWeaknesses{stats: map[string]model.WeaknessStat{
		"A": stat(10, 1), // weakness 0.9
		"B": stat(10, 9), // weakness 0.1
		"C": stat(5, 5),
		"D": stat(5, 5),
		"E": stat(5, 5),
	}}
	s := New(ws, DefaultConfig(), seeded())

	counts := keywordCounts(t, s, pool, 4000)
	assert.Greater(t, counts["A"], 2*counts["B"], "A=%d B=%d", counts["A"], counts["B"])
	assert.Greater(t, counts["B"], 0, "exploration floor must keep B reachable")
}

func TestSteadyStateAlwaysWeightedWithoutExploration(t *testing.T) {
	pool := []model.Problem{problem("a1", "A"), problem("b1", "B")}
	ws := staticWeaknesses{stats: map[string]model.WeaknessStat{
		"A": stat(4, 0),
		"B": stat(4, 4),
		"C": stat(4, 4),
	}}
	cfg := Config{MinKeywords: 2, MinSeasonedKeywords: 2, SeasonedAttempts: 3, WeightedProbability: 1, WeightFloor: 0}
	s := New(ws, cfg, seeded())

	// With a zero floor B and C carry no weight, so only A can be drawn.
	counts := keywordCounts(t, s, pool, 200)
	assert.Equal(t, 200, counts["A"])
}

func TestDegradedProfileStillSelects(t *testing.T) {
	pool := []model.Problem{problem("a1", "A")}
	s := New(staticWeaknesses{outcome: model.OutcomeDegraded}, DefaultConfig(), seeded())

	p, out := s.SelectNext(context.Background(), "s1", pool)
	require.NotNil(t, p)
	assert.Equal(t, "a1", p.ID)
	assert.Equal(t, model.OutcomeDegraded, out)
}

func TestSeededSelectionRepeats(t *testing.T) {
	pool := []model.Problem{problem("a1", "A"), problem("b1", "B"), problem("c1", "C"), problem("d1", "")}
	ws := staticWeaknesses{stats: map[string]model.WeaknessStat{"A": stat(1, 0)}}

	run := func() []string {
		s := New(ws, DefaultConfig(), seeded())
		var ids []string
		for range 20 {
			p, _ := s.SelectNext(context.Background(), "s1", pool)
			ids = append(ids, p.ID)
		}
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestTenseFavoredAfterRepeatedMistakes(t *testing.T) {
	ctx := context.Background()
	ws := weakness.New(recordstore.NewMemory())

	for range 4 {
		ws.RecordAttempt(ctx, "S", "tense", false)
	}
	for _, kw := range []string{"article", "plural", "preposition", "pronoun"} {
		for range 3 {
			ws.RecordAttempt(ctx, "S", kw, true)
		}
	}

	stats, _ := ws.GetWeaknesses(ctx, "S")
	require.Equal(t, 4, stats["tense"].Attempts)
	assert.Equal(t, 1.0, stats["tense"].WeaknessScore)

	pool := []model.Problem{
		problem("t1", "tense"), problem("t2", "tense"),
		problem("ar1", "article"), problem("ar2", "article"),
	}
	s := New(ws, DefaultConfig(), seeded())
	counts := make(map[string]int)
	for range 2000 {
		p, out := s.SelectNext(ctx, "S", pool)
		require.Equal(t, model.OutcomeOK, out)
		counts[p.KeywordTag]++
	}
	assert.Greater(t, counts["tense"], counts["article"]*3/2, "tense=%d article=%d", counts["tense"], counts["article"])
}

func TestRemaining(t *testing.T) {
	all := []model.Problem{problem("p1", "A"), problem("p2", "B"), problem("p3", "C"), problem("p2", "B")}

	tests := []struct {
		name   string
		served []string
		want   []string
	}{
		{"nothing served", nil, []string{"p1", "p2", "p3"}},
		{"one served", []string{"p2"}, []string{"p1", "p3"}},
		{"all served", []string{"p1", "p2", "p3"}, []string{}},
		{"unknown id", []string{"zz"}, []string{"p1", "p2", "p3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(all, tt.served)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative keywords", func(c *Config) { c.MinKeywords = -1 }, true},
		{"probability above one", func(c *Config) { c.WeightedProbability = 1.5 }, true},
		{"negative floor", func(c *Config) { c.WeightFloor = -0.1 }, true},
		{"always weighted", func(c *Config) { c.WeightedProbability = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
