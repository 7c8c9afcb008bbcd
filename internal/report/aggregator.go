package report

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
)

// overviewWorkers bounds concurrent summaries in Overview.
const overviewWorkers = 8

// commonWeakThreshold is the weakness score at which a ranked keyword counts
// toward the class-wide list.
const commonWeakThreshold = 0.5

// maxCommonWeak caps the class-wide weak keyword list.
const maxCommonWeak = 10

// WeaknessSource provides a student's per-keyword stats.
type WeaknessSource interface {
	GetWeaknesses(ctx context.Context, studentID string) (map[string]model.WeaknessStat, model.Outcome)
}

// Aggregator loads answer histories and weaknesses and summarizes them.
type Aggregator struct {
	records    recordstore.Store
	weaknesses WeaknessSource
}

// NewAggregator creates an Aggregator.
func NewAggregator(records recordstore.Store, weaknesses WeaknessSource) *Aggregator {
	return &Aggregator{records: records, weaknesses: weaknesses}
}

// History returns a student's answer events in insertion order. Malformed
// rows are skipped.
func (a *Aggregator) History(ctx context.Context, studentID string) ([]model.AnswerEvent, error) {
	rows, err := a.records.Get(ctx, recordstore.Answers, recordstore.Filter{model.FieldStudentID: studentID})
	if err != nil {
		return nil, err
	}
	events := make([]model.AnswerEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := model.AnswerFromFields(row)
		if err != nil {
			slog.Warn("skipping malformed answer record", "student_id", studentID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Summarize builds the student's summary. When the history cannot be loaded
// the result is a NoData summary with OutcomeDegraded.
func (a *Aggregator) Summarize(ctx context.Context, studentID string) (model.PerformanceSummary, model.Outcome) {
	weak, outcome := a.weaknesses.GetWeaknesses(ctx, studentID)
	if outcome != model.OutcomeOK {
		outcome = model.OutcomeDegraded
	}

	history, err := a.History(ctx, studentID)
	if err != nil {
		slog.Error("failed to load answer history", "student_id", studentID, "error", err)
		return Summarize(studentID, nil, weak), model.OutcomeDegraded
	}
	return Summarize(studentID, history, weak), outcome
}

// Overview summarizes every student concurrently and adds class-wide totals.
// Summaries keep the order of studentIDs.
func (a *Aggregator) Overview(ctx context.Context, studentIDs []string) (model.ClassOverview, model.Outcome) {
	summaries := make([]model.PerformanceSummary, len(studentIDs))
	outcomes := make([]model.Outcome, len(studentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewWorkers)
	for i, id := range studentIDs {
		g.Go(func() error {
			summaries[i], outcomes[i] = a.Summarize(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	outcome := model.OutcomeOK
	for _, o := range outcomes {
		outcome = outcome.Worst(o)
	}
	return buildOverview(summaries), outcome
}

func buildOverview(summaries []model.PerformanceSummary) model.ClassOverview {
	ov := model.ClassOverview{
		Students:        len(summaries),
		CommonWeakWords: []model.KeywordCount{},
		Summaries:       summaries,
	}

	weakCounts := make(map[string]int)
	for _, s := range summaries {
		ov.TotalProblems += s.TotalProblems
		ov.CorrectAnswers += s.CorrectAnswers
		for _, w := range s.RankedWeaknesses {
			if w.WeaknessScore >= commonWeakThreshold {
				weakCounts[w.Keyword]++
			}
		}
	}
	if ov.TotalProblems > 0 {
		ov.Accuracy = float64(ov.CorrectAnswers) / float64(ov.TotalProblems)
	}

	for kw, n := range weakCounts {
		ov.CommonWeakWords = append(ov.CommonWeakWords, model.KeywordCount{Keyword: kw, Students: n})
	}
	slices.SortFunc(ov.CommonWeakWords, func(a, b model.KeywordCount) int {
		if c := cmp.Compare(b.Students, a.Students); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})
	if len(ov.CommonWeakWords) > maxCommonWeak {
		ov.CommonWeakWords = ov.CommonWeakWords[:maxCommonWeak]
	}
	return ov
}
