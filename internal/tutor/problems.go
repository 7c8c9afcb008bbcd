package tutor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
	"github.com/pavelanni/tutor/internal/weakness"
)

// ImportLedger remembers which problem files were imported.
type ImportLedger interface {
	GetImportedFileHash(name string) (string, error)
	SetImportedFileHash(name, hash string) error
}

// ImportResult reports what ImportFile did.
type ImportResult struct {
	Name      string `json:"name"`
	Imported  int    `json:"imported"`
	Duplicate bool   `json:"duplicate"`
}

// problemBank holds the problems last read from or written to the record
// store. It answers reads while the store is unreachable.
type problemBank struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]model.Problem
}

func newProblemBank() *problemBank {
	return &problemBank{byID: make(map[string]model.Problem)}
}

func (b *problemBank) replace(problems []model.Problem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = b.order[:0]
	clear(b.byID)
	for _, p := range problems {
		if _, ok := b.byID[p.ID]; !ok {
			b.order = append(b.order, p.ID)
		}
		b.byID[p.ID] = p
	}
}

func (b *problemBank) put(p model.Problem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[p.ID]; !ok {
		b.order = append(b.order, p.ID)
	}
	b.byID[p.ID] = p
}

func (b *problemBank) get(id string) (model.Problem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.byID[id]
	return p, ok
}

func (b *problemBank) all() []model.Problem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Problem, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

// ListProblems returns the bank's problems matching filter. Malformed rows
// are skipped. While the record store is unreachable the last loaded bank is
// served with OutcomeUnavailable.
func (s *Service) ListProblems(ctx context.Context, filter model.ProblemFilter) ([]model.Problem, model.Outcome, error) {
	all, outcome, err := s.loadProblems(ctx)
	if err != nil {
		return nil, outcome, err
	}
	problems := make([]model.Problem, 0, len(all))
	for _, p := range all {
		if filter.Match(p) {
			problems = append(problems, p)
		}
	}
	return problems, outcome, nil
}

func (s *Service) loadProblems(ctx context.Context) ([]model.Problem, model.Outcome, error) {
	rows, err := s.records.Get(ctx, recordstore.Problems, nil)
	if errors.Is(err, recordstore.ErrUnavailable) {
		cached := s.bank.all()
		slog.Warn("record store unavailable, using cached problem bank", "problems", len(cached), "error", err)
		return cached, model.OutcomeUnavailable, nil
	}
	if err != nil {
		return nil, model.OutcomeOK, fmt.Errorf("load problems: %w", err)
	}
	problems := make([]model.Problem, 0, len(rows))
	for _, row := range rows {
		p, err := model.ProblemFromFields(row)
		if err != nil {
			slog.Warn("skipping malformed problem record", "problem_id", row[model.FieldProblemID], "error", err)
			continue
		}
		problems = append(problems, p)
	}
	s.bank.replace(problems)
	return problems, model.OutcomeOK, nil
}

// problem loads one problem, falling back to the cached bank when the record
// store is unreachable.
func (s *Service) problem(ctx context.Context, id string) (*model.Problem, model.Outcome, error) {
	rows, err := s.records.Get(ctx, recordstore.Problems, recordstore.Filter{model.FieldProblemID: id})
	if err != nil {
		if p, ok := s.bank.get(id); ok && errors.Is(err, recordstore.ErrUnavailable) {
			slog.Warn("record store unavailable, using cached problem", "problem_id", id, "error", err)
			return &p, model.OutcomeUnavailable, nil
		}
		return nil, errOutcome(err), fmt.Errorf("load problem %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, model.OutcomeOK, fmt.Errorf("%w: %s", ErrProblemNotFound, id)
	}
	p, err := model.ProblemFromFields(rows[len(rows)-1])
	if err != nil {
		return nil, model.OutcomeOK, fmt.Errorf("%w: %w", ErrProblemNotFound, err)
	}
	s.bank.put(p)
	return &p, model.OutcomeOK, nil
}

// ImportProblems validates every problem and then stores them all. Missing
// IDs are generated, keyword tags are normalized, and a problem whose ID is
// already in the bank replaces it.
func (s *Service) ImportProblems(ctx context.Context, problems []model.Problem) (int, error) {
	for i := range problems {
		p := &problems[i]
		if p.ID == "" {
			p.ID = s.newID()
		}
		p.KeywordTag = strings.Join(weakness.ExtractKeywords(p.KeywordTag), ", ")
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("problem %d: %w", i+1, err)
		}
	}
	for i, p := range problems {
		if err := s.records.Upsert(ctx, recordstore.Problems, p.ID, p.Fields()); err != nil {
			return i, fmt.Errorf("store problem %s: %w", p.ID, err)
		}
		s.bank.put(p)
	}
	return len(problems), nil
}

// ImportFile imports a JSON array of problems unless a file with the same
// name and content was imported before.
func (s *Service) ImportFile(ctx context.Context, ledger ImportLedger, name string, data []byte) (ImportResult, error) {
	res := ImportResult{Name: name}
	hash := sha256sum(data)
	stored, err := ledger.GetImportedFileHash(name)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("problem file unchanged, skipping", "name", name)
		res.Duplicate = true
		return res, nil
	}

	var problems []model.Problem
	if err := json.Unmarshal(data, &problems); err != nil {
		return res, fmt.Errorf("%w: parse %s: %w", ErrInvalidFile, name, err)
	}
	if res.Imported, err = s.ImportProblems(ctx, problems); err != nil {
		return res, fmt.Errorf("import %s: %w", name, err)
	}
	if err := ledger.SetImportedFileHash(name, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported problems", "name", name, "count", res.Imported, "replaced_previous", stored != "")
	return res, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
