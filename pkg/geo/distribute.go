package geo

import (
	"strings"

	"ticketflow/pkg/model"
)

var astanaTokens = []string{"астана", "astana", "нур-султан", "nur-sultan", "нурсултан"}
var almatyTokens = []string{"алматы", "almaty", "алма-ата"}

// FiftyFifty alternates strictly between the Astana and Almaty offices.
// It serves tickets that cannot be routed by distance (no coordinates or
// foreign country) when the 50/50 fallback mode is enabled. Not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type FiftyFifty struct {
	next int
}

// Next returns the office for the next unroutable ticket, or nil when
// neither city has an office in the set. With both present the picks
// alternate; with one present it is always chosen.
func (f *FiftyFifty) Next(offices []model.Office) *model.Office {
	astana := findByTokens(offices, astanaTokens)
	almaty := findByTokens(offices, almatyTokens)

	var choices []*model.Office
	for _, o := range []*model.Office{astana, almaty} {
		if o != nil {
			choices = append(choices, o)
		}
	}
	if len(choices) == 0 {
		return nil
	}
	chosen := choices[f.next%len(choices)]
	f.next++
	return chosen
}

func findByTokens(offices []model.Office, tokens []string) *model.Office {
	for i := range offices {
		name := strings.ToLower(offices[i].Name)
		for _, t := range tokens {
			if strings.Contains(name, t) {
				return &offices[i]
			}
		}
	}
	return nil
}
