package selector

import "github.com/pavelanni/tutor/internal/model"

// Remaining returns the problems of all that have not been served yet, in
// their original order. Duplicate IDs in all are kept once.
func Remaining(all []model.Problem, served []string) []model.Problem {
	seen := make(map[string]bool, len(served)+len(all))
	for _, id := range served {
		seen[id] = true
	}
	out := make([]model.Problem, 0, len(all))
	for _, p := range all {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
