// Package assign decides which manager handles a ticket: a cascading
// competency filter narrows the candidates, then a hash-bucketed
// round-robin alternates between the two least-loaded survivors.
package assign

import (
	"strings"

	"ticketflow/pkg/model"
)

// Eligible applies the competency cascade for one ticket at one office.
// Office and seniority rules are hard; the language rule falls back to
// the unfiltered set when nobody speaks the required language. Pure over
// its inputs.
func Eligible(t *model.Ticket, officeName string, managers []*model.Manager) []*model.Manager {
	var candidates []*model.Manager
	for _, m := range managers {
		if strings.EqualFold(m.Office, officeName) && m.Active {
			candidates = append(candidates, m)
		}
	}

	// VIP and Priority customers, and anything near-critical, need the
	// VIP skill.
	if t.Segment.IsVIPTier() || t.PriorityScore >= 8 {
		candidates = keepSkilled(candidates, model.SkillVIP)
	}

	// Personal-data changes are restricted to chief specialists.
	if t.RequestType == model.DataChange {
		var chiefs []*model.Manager
		for _, m := range candidates {
			if m.Position.IsChief() {
				chiefs = append(chiefs, m)
			}
		}
		candidates = chiefs
	}

	switch t.Language {
	case model.LangKZ:
		if skilled := keepSkilled(candidates, model.SkillKZ); len(skilled) > 0 {
			candidates = skilled
		}
	case model.LangENG:
		if skilled := keepSkilled(candidates, model.SkillENG); len(skilled) > 0 {
			candidates = skilled
		}
	}

	return candidates
}

func keepSkilled(managers []*model.Manager, skill string) []*model.Manager {
	var out []*model.Manager
	for _, m := range managers {
		if m.HasSkill(skill) {
			out = append(out, m)
		}
	}
	return out
}
