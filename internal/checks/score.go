package checks

import "auditor/internal/domain"

// Priority weights for scoring. Critical failures weigh most, optional least.
var priorityWeight = map[domain.Priority]int{
	domain.PriorityCritical:    4,
	domain.PriorityRecommended: 2,
	domain.PriorityOptional:    1,
}

// verdict credit in half-points so warnings land between passed and failed.
// Flipping any failed check to passed can only raise a score (monotonicity).
func credit(v domain.Verdict) int {
	switch v {
	case domain.VerdictPassed:
		return 2
	case domain.VerdictWarning:
		return 1
	default:
		return 0
	}
}

// Score aggregates check verdicts into an overall score and one score per
// category, each a priority-weighted pass rate bounded to [0, 100].
func Score(checks []domain.Check) (overall int, categories map[string]int) {
	categories = make(map[string]int)

	type tally struct{ earned, possible int }
	perCategory := make(map[string]*tally)
	var total tally

	for _, c := range checks {
		w := priorityWeight[c.Priority]
		if w == 0 {
			w = 1
		}
		earned := w * credit(c.Verdict)
		possible := w * 2

		total.earned += earned
		total.possible += possible

		t := perCategory[c.Category]
		if t == nil {
			t = &tally{}
			perCategory[c.Category] = t
		}
		t.earned += earned
		t.possible += possible
	}

	overall = ratio(total.earned, total.possible)
	for cat, t := range perCategory {
		categories[cat] = ratio(t.earned, t.possible)
	}
	return overall, categories
}

func ratio(earned, possible int) int {
	if possible == 0 {
		return 0
	}
	score := (earned*100 + possible/2) / possible // round half up
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
