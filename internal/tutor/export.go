package tutor

import (
	"context"

	"github.com/pavelanni/tutor/internal/model"
)

// ExportReport builds the roster export. teacher labels the export and may
// be empty.
func (s *Service) ExportReport(ctx context.Context, teacher string, students []model.User) (model.ReportExport, model.Outcome) {
	ov, outcome := s.Overview(ctx, students)

	exp := model.ReportExport{
		GeneratedAt: s.now().UTC(),
		Teacher:     teacher,
		Overview:    ov,
		Students:    make([]model.StudentReport, 0, len(students)),
	}
	for i, u := range students {
		exp.Students = append(exp.Students, model.StudentReport{
			UserID:      u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Active:      u.Active,
			Summary:     ov.Summaries[i],
		})
	}
	return exp, outcome
}

