package report

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
	"github.com/pavelanni/tutor/internal/weakness"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func event(i int, correct bool) model.AnswerEvent {
	return model.AnswerEvent{
		ID:          "e" + strconv.Itoa(i),
		StudentID:   "s1",
		ProblemID:   "p" + strconv.Itoa(i),
		Correct:     correct,
		SubmittedAt: base.Add(time.Duration(i) * time.Minute),
	}
}

func TestSummarizeTwelveEvents(t *testing.T) {
	var history []model.AnswerEvent
	for i := range 12 {
		history = append(history, event(i, i < 7))
	}

	sum := Summarize("s1", history, nil)
	assert.False(t, sum.NoData)
	assert.Equal(t, 12, sum.TotalProblems)
	assert.Equal(t, 7, sum.CorrectAnswers)
	assert.Equal(t, 5, sum.IncorrectAnswers)
	assert.InDelta(t, 0.5833, sum.Accuracy, 0.0001)
	require.Len(t, sum.RecentTrend, 10)

	// Newest first: events 11..7 were wrong, 6..2 right.
	want := []bool{false, false, false, false, false, true, true, true, true, true}
	assert.Equal(t, want, sum.RecentTrend)
}

func TestSummarizeEmptyHistory(t *testing.T) {
	sum := Summarize("s1", nil, nil)
	assert.True(t, sum.NoData)
	assert.Zero(t, sum.TotalProblems)
	assert.Zero(t, sum.Accuracy)
	assert.Empty(t, sum.RecentTrend)
	assert.NotNil(t, sum.RecentTrend)
}

func TestSummarizeShortHistory(t *testing.T) {
	history := []model.AnswerEvent{event(0, true), event(1, false), event(2, true)}
	sum := Summarize("s1", history, nil)
	assert.Equal(t, []bool{true, false, true}, sum.RecentTrend)
}

func TestTrendTiesKeepInsertionOrder(t *testing.T) {
	same := base
	history := []model.AnswerEvent{
		{ID: "old", Correct: true, SubmittedAt: same.Add(-time.Hour)},
		{ID: "first", Correct: false, SubmittedAt: same},
		{ID: "second", Correct: true, SubmittedAt: same},
	}
	sum := Summarize("s1", history, nil)
	assert.Equal(t, []bool{false, true, true}, sum.RecentTrend)
}

func TestTrendUsesTimestampsNotInsertion(t *testing.T) {
	history := []model.AnswerEvent{event(5, true), event(1, false), event(9, false)}
	sum := Summarize("s1", history, nil)
	assert.Equal(t, []bool{false, true, false}, sum.RecentTrend)
}

func TestRankWeaknesses(t *testing.T) {
	stats := map[string]model.WeaknessStat{
		"tense":   model.WeaknessRecord{Attempts: 4, Correct: 0}.Stat(),
		"article": model.WeaknessRecord{Attempts: 4, Correct: 2}.Stat(),
		"plural":  model.WeaknessRecord{Attempts: 2, Correct: 1}.Stat(),
		"pronoun": model.WeaknessRecord{Attempts: 1, Correct: 0}.Stat(),
		"verb":    model.WeaknessRecord{Attempts: 5, Correct: 5}.Stat(),
	}
	ranked := RankWeaknesses(stats)

	var keywords []string
	for _, w := range ranked {
		keywords = append(keywords, w.Keyword)
	}
	assert.Equal(t, []string{"tense", "article", "plural", "verb"}, keywords)
	assert.Equal(t, 1.0, ranked[0].WeaknessScore)
}

func newAggregator(t *testing.T) (*Aggregator, *recordstore.Memory, *weakness.Store) {
	t.Helper()
	mem := recordstore.NewMemory()
	ws := weakness.New(mem)
	return NewAggregator(mem, ws), mem, ws
}

func TestAggregatorSummarize(t *testing.T) {
	ctx := context.Background()
	agg, mem, ws := newAggregator(t)

	for i := range 3 {
		ev := event(i, i == 0)
		require.NoError(t, mem.Append(ctx, recordstore.Answers, ev.Fields()))
		ws.RecordAnswer(ctx, "s1", "tense", ev.Correct)
	}
	// Another student's answer and a broken row stay out of the summary.
	other := event(9, true)
	other.StudentID = "s2"
	require.NoError(t, mem.Append(ctx, recordstore.Answers, other.Fields()))
	require.NoError(t, mem.Append(ctx, recordstore.Answers, recordstore.Record{model.FieldStudentID: "s1"}))

	sum, out := agg.Summarize(ctx, "s1")
	assert.Equal(t, model.OutcomeOK, out)
	assert.Equal(t, 3, sum.TotalProblems)
	assert.Equal(t, 1, sum.CorrectAnswers)
	require.Len(t, sum.RankedWeaknesses, 1)
	assert.Equal(t, "tense", sum.RankedWeaknesses[0].Keyword)
	assert.Equal(t, []bool{false, false, true}, sum.RecentTrend)
}

func TestAggregatorUnavailable(t *testing.T) {
	ctx := context.Background()
	agg, mem, _ := newAggregator(t)
	require.NoError(t, mem.Close())

	sum, out := agg.Summarize(ctx, "s1")
	assert.Equal(t, model.OutcomeDegraded, out)
	assert.True(t, sum.NoData)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	agg, mem, ws := newAggregator(t)

	record := func(student string, i int, tag string, correct bool) {
		ev := event(i, correct)
		ev.StudentID = student
		require.NoError(t, mem.Append(ctx, recordstore.Answers, ev.Fields()))
		ws.RecordAnswer(ctx, student, tag, correct)
	}
	record("s1", 0, "tense", false)
	record("s1", 1, "tense", false)
	record("s1", 2, "article", true)
	record("s2", 0, "tense", false)
	record("s2", 1, "tense", true)
	record("s2", 2, "article", false)
	record("s2", 3, "article", false)

	ov, out := agg.Overview(ctx, []string{"s1", "s2", "s3"})
	assert.Equal(t, model.OutcomeOK, out)
	assert.Equal(t, 3, ov.Students)
	assert.Equal(t, 7, ov.TotalProblems)
	assert.Equal(t, 2, ov.CorrectAnswers)
	assert.InDelta(t, 2.0/7.0, ov.Accuracy, 1e-9)

	require.Len(t, ov.Summaries, 3)
	assert.Equal(t, "s1", ov.Summaries[0].StudentID)
	assert.True(t, ov.Summaries[2].NoData)

	want := []model.KeywordCount{{Keyword: "tense", Students: 2}, {Keyword: "article", Students: 1}}
	assert.Equal(t, want, ov.CommonWeakWords)
}
