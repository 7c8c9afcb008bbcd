// Package report summarizes answer histories for students and teachers.
package report

import (
	"cmp"
	"slices"

	"github.com/pavelanni/tutor/internal/model"
)

const (
	// TrendLength is how many recent answers RecentTrend covers.
	TrendLength = 10
	// MinRankedAttempts is the attempt count a keyword needs to be ranked.
	MinRankedAttempts = 2
)

// Summarize computes a student's totals, recent trend and ranked weaknesses.
// An empty history yields NoData with zero ratios.
func Summarize(studentID string, history []model.AnswerEvent, weaknesses map[string]model.WeaknessStat) model.PerformanceSummary {
	sum := model.PerformanceSummary{
		StudentID:        studentID,
		TotalProblems:    len(history),
		RecentTrend:      []bool{},
		RankedWeaknesses: RankWeaknesses(weaknesses),
	}
	if len(history) == 0 {
		sum.NoData = true
		return sum
	}

	for _, ev := range history {
		if ev.Correct {
			sum.CorrectAnswers++
		}
	}
	sum.IncorrectAnswers = sum.TotalProblems - sum.CorrectAnswers
	sum.Accuracy = float64(sum.CorrectAnswers) / float64(sum.TotalProblems)

	// Newest first; the stable sort keeps insertion order among equal times.
	ordered := slices.Clone(history)
	slices.SortStableFunc(ordered, func(a, b model.AnswerEvent) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	n := min(TrendLength, len(ordered))
	for _, ev := range ordered[:n] {
		sum.RecentTrend = append(sum.RecentTrend, ev.Correct)
	}
	return sum
}

// RankWeaknesses lists keywords with at least MinRankedAttempts attempts,
// weakest first, ties by keyword.
func RankWeaknesses(weaknesses map[string]model.WeaknessStat) []model.KeywordWeakness {
	ranked := []model.KeywordWeakness{}
	for kw, st := range weaknesses {
		if st.Attempts < MinRankedAttempts {
			continue
		}
		ranked = append(ranked, model.KeywordWeakness{Keyword: kw, WeaknessStat: st})
	}
	slices.SortFunc(ranked, func(a, b model.KeywordWeakness) int {
		if c := cmp.Compare(b.WeaknessScore, a.WeaknessScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})
	return ranked
}
