package model

import "time"

// ReportExport is the top-level JSON structure for a roster performance export.
type ReportExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Teacher     string          `json:"teacher,omitempty"`
	Overview    ClassOverview   `json:"overview"`
	Students    []StudentReport `json:"students"`
}

// StudentReport holds one student's performance for export.
type StudentReport struct {
	UserID      int64              `json:"user_id"`
	Username    string             `json:"username"`
	DisplayName string             `json:"display_name"`
	Active      bool               `json:"active"`
	Summary     PerformanceSummary `json:"summary"`
}

// ClassOverview aggregates the summaries of a roster.
type ClassOverview struct {
	Students        int                  `json:"students"`
	ActiveStudents  int                  `json:"active_students"`
	TotalProblems   int                  `json:"total_problems"`
	CorrectAnswers  int                  `json:"correct_answers"`
	Accuracy        float64              `json:"accuracy"`
	CommonWeakWords []KeywordCount       `json:"common_weak_keywords"`
	Summaries       []PerformanceSummary `json:"-"`
}

// KeywordCount counts how many students rank a keyword among their weaknesses.
type KeywordCount struct {
	Keyword  string `json:"keyword"`
	Students int    `json:"students"`
}
