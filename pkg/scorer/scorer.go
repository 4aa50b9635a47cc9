// Package scorer turns NLP labels into a 1..10 priority score.
//
// Scores are computed from the raw model output (Russian labels) rather
// than the canonicalized values, but every label is run through the
// pkg/model parsers first, so any string input yields a valid score.
package scorer

import "ticketflow/pkg/model"

// Base weight per request type. Spam is handled before these apply.
var baseWeights = map[model.RequestType]int{
	model.Fraud:        9,
	model.AppFailure:   7,
	model.Complaint:    6,
	model.DataChange:   5,
	model.Claim:        4,
	model.Consultation: 4,
	model.Spam:         1,
}

// Sentiment modifiers.
var sentimentWeights = map[model.Sentiment]int{
	model.Negative: 2,
	model.Neutral:  0,
	model.Positive: -1,
}

// Segment modifiers.
var segmentWeights = map[model.Segment]int{
	model.SegmentVIP:      2,
	model.SegmentPriority: 1,
	model.SegmentMass:     0,
}

// Bounds of the final score.
const (
	MinScore = 1
	MaxScore = 10
)

// Score computes the priority for one ticket. requestType and sentiment
// are the raw NLP labels (Russian or canonical), segment is the
// caller-supplied tier. Unknown labels degrade to their defaults
// (Consultation / Neutral / Mass), so the function is total.
//
// Spam short-circuits to the minimum before any modifier. Fraud is floored
// at 9 after clamping so no modifier can demote it below near-maximum.
func Score(requestType, sentiment, segment string) int {
	rt := model.ParseRequestType(requestType)
	if rt == model.Spam {
		return MinScore
	}

	score := baseWeights[rt]
	score += sentimentWeights[model.ParseSentiment(sentiment)]
	score += segmentWeights[model.ParseSegment(segment)]

	if score < MinScore {
		score = MinScore
	} else if score > MaxScore {
		score = MaxScore
	}

	if rt == model.Fraud && score < 9 {
		score = 9
	}
	return score
}
