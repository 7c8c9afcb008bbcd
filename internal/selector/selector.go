// Package selector picks the next problem to serve a student, balancing
// coverage of unseen keywords against practice on weak ones.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/weakness"
)

// Config holds the selection thresholds.
type Config struct {
	// MinKeywords is the number of keywords with data needed to leave cold start.
	MinKeywords int
	// MinSeasonedKeywords is how many of those must have SeasonedAttempts attempts.
	MinSeasonedKeywords int
	SeasonedAttempts    int
	// WeightedProbability is the chance of a weakness-weighted draw in steady state.
	WeightedProbability float64
	// WeightFloor keeps well-known keywords in the weighted draw.
	WeightFloor float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinKeywords:         5,
		MinSeasonedKeywords: 3,
		SeasonedAttempts:    3,
		WeightedProbability: 0.7,
		WeightFloor:         0.1,
	}
}

// Validate rejects thresholds the selector cannot work with.
func (c Config) Validate() error {
	switch {
	case c.MinKeywords < 0 || c.MinSeasonedKeywords < 0 || c.SeasonedAttempts < 0:
		return errors.New("selector thresholds must not be negative")
	case c.WeightedProbability < 0 || c.WeightedProbability > 1:
		return fmt.Errorf("weighted probability %v is outside [0, 1]", c.WeightedProbability)
	case c.WeightFloor < 0 || c.WeightFloor > 1:
		return fmt.Errorf("weight floor %v is outside [0, 1]", c.WeightFloor)
	}
	return nil
}

// WeaknessSource provides a student's per-keyword stats.
type WeaknessSource interface {
	GetWeaknesses(ctx context.Context, studentID string) (map[string]model.WeaknessStat, model.Outcome)
}

// Selector chooses problems. It is safe for concurrent use.
type Selector struct {
	weaknesses WeaknessSource
	cfg        Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Selector. A nil rng gets a randomly seeded generator.
func New(weaknesses WeaknessSource, cfg Config, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{weaknesses: weaknesses, cfg: cfg, rng: rng}
}

// SelectNext returns the next problem from pool, or nil when pool is empty.
// When the weakness profile cannot be loaded the student is treated as having
// no history and the outcome is OutcomeDegraded.
func (s *Selector) SelectNext(ctx context.Context, studentID string, pool []model.Problem) (*model.Problem, model.Outcome) {
	if len(pool) == 0 {
		return nil, model.OutcomeOK
	}

	stats, outcome := s.weaknesses.GetWeaknesses(ctx, studentID)
	if outcome != model.OutcomeOK {
		outcome = model.OutcomeDegraded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var p model.Problem
	if s.coldStart(stats) {
		p = s.explore(stats, pool)
		slog.Debug("selected problem", "student_id", studentID, "phase", "cold_start", "problem_id", p.ID)
	} else {
		p = s.exploit(stats, pool)
		slog.Debug("selected problem", "student_id", studentID, "phase", "steady", "problem_id", p.ID)
	}
	return &p, outcome
}

func (s *Selector) coldStart(stats map[string]model.WeaknessStat) bool {
	withData, seasoned := 0, 0
	for _, st := range stats {
		if st.Attempts <= 0 {
			continue
		}
		withData++
		if st.Attempts >= s.cfg.SeasonedAttempts {
			seasoned++
		}
	}
	return withData < s.cfg.MinKeywords || seasoned < s.cfg.MinSeasonedKeywords
}

// explore prefers keywords the student has never attempted, then the least
// attempted keyword, then anything.
func (s *Selector) explore(stats map[string]model.WeaknessStat, pool []model.Problem) model.Problem {
	groups := groupByKeyword(pool)

	var unseen []string
	for _, kw := range sortedKeys(groups) {
		if st, ok := stats[kw]; !ok || st.Attempts <= 0 {
			unseen = append(unseen, kw)
		}
	}
	if len(unseen) > 0 {
		kw := unseen[s.rng.IntN(len(unseen))]
		return s.pick(groups[kw])
	}

	minAttempts := math.MaxInt
	var least []string
	for _, kw := range sortedKeys(stats) {
		a := stats[kw].Attempts
		switch {
		case a < minAttempts:
			minAttempts = a
			least = []string{kw}
		case a == minAttempts:
			least = append(least, kw)
		}
	}
	if len(least) > 0 {
		kw := least[s.rng.IntN(len(least))]
		if matches := groups[kw]; len(matches) > 0 {
			return s.pick(matches)
		}
	}
	return s.pick(pool)
}

// exploit draws a keyword in proportion to the student's error rate on it,
// with probability WeightedProbability; otherwise it picks from the whole pool.
func (s *Selector) exploit(stats map[string]model.WeaknessStat, pool []model.Problem) model.Problem {
	if s.rng.Float64() >= s.cfg.WeightedProbability {
		return s.pick(pool)
	}

	var bag []string
	for _, kw := range sortedKeys(stats) {
		st := stats[kw]
		if st.Attempts <= 0 {
			continue
		}
		w := max(s.cfg.WeightFloor, float64(st.Attempts-st.Correct)/float64(st.Attempts))
		for range int(math.Round(w * 10)) {
			bag = append(bag, kw)
		}
	}
	if len(bag) == 0 {
		return s.pick(pool)
	}

	kw := bag[s.rng.IntN(len(bag))]
	if matches := groupByKeyword(pool)[kw]; len(matches) > 0 {
		return s.pick(matches)
	}
	return s.pick(pool)
}

func (s *Selector) pick(ps []model.Problem) model.Problem {
	return ps[s.rng.IntN(len(ps))]
}

// groupByKeyword indexes pool by keyword. A problem appears under each of its
// keywords; untagged problems appear nowhere.
func groupByKeyword(pool []model.Problem) map[string][]model.Problem {
	groups := make(map[string][]model.Problem)
	for _, p := range pool {
		for _, kw := range weakness.ExtractKeywords(p.KeywordTag) {
			groups[kw] = append(groups[kw], p)
		}
	}
	return groups
}

// sortedKeys gives map iteration a fixed order so seeded runs repeat.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
