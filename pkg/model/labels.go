package model

import "strings"

// Classification labels live in two alphabets: the NLP model and the CSV
// exports speak Russian, the canonical values stored and served are English.
// The Parse* functions accept both and always return a canonical value, so
// downstream code never branches on raw label spelling.

// RequestType classifies what the customer wants.
type RequestType string

const (
	Consultation RequestType = "Consultation"
	Complaint    RequestType = "Complaint"
	Claim        RequestType = "Claim"
	DataChange   RequestType = "DataChange"
	Fraud        RequestType = "Fraud"
	AppFailure   RequestType = "AppFailure"
	Spam         RequestType = "Spam"
)

var requestTypeAliases = map[string]RequestType{
	"консультация":                   Consultation,
	"жалоба":                         Complaint,
	"претензия":                      Claim,
	"смена данных":                   DataChange,
	"мошеннические действия":         Fraud,
	"неработоспособность приложения": AppFailure,
	"спам":         Spam,
	"consultation": Consultation,
	"complaint":    Complaint,
	"claim":        Claim,
	"datachange":   DataChange,
	"data change":  DataChange,
	"fraud":        Fraud,
	"appfailure":   AppFailure,
	"app failure":  AppFailure,
	"spam":         Spam,
}

// LookupRequestType resolves a raw label to its canonical value and
// reports whether the spelling is known.
func LookupRequestType(raw string) (RequestType, bool) {
	t, ok := requestTypeAliases[normLabel(raw)]
	return t, ok
}

// ParseRequestType maps a raw Russian or English label to its canonical
// value. Unknown labels fall back to Consultation.
func ParseRequestType(raw string) RequestType {
	if t, ok := LookupRequestType(raw); ok {
		return t
	}
	return Consultation
}

// Sentiment is the emotional tone of the request.
type Sentiment string

const (
	Negative Sentiment = "Negative"
	Neutral  Sentiment = "Neutral"
	Positive Sentiment = "Positive"
)

var sentimentAliases = map[string]Sentiment{
	"негативная":    Negative,
	"негативный":    Negative,
	"нейтральная":   Neutral,
	"нейтральный":   Neutral,
	"положительная": Positive,
	"положительный": Positive,
	"negative":      Negative,
	"neutral":       Neutral,
	"positive":      Positive,
}

// LookupSentiment resolves a raw label to its canonical value and
// reports whether the spelling is known.
func LookupSentiment(raw string) (Sentiment, bool) {
	s, ok := sentimentAliases[normLabel(raw)]
	return s, ok
}

// ParseSentiment maps a raw label to its canonical value, defaulting to
// Neutral.
func ParseSentiment(raw string) Sentiment {
	if s, ok := LookupSentiment(raw); ok {
		return s
	}
	return Neutral
}

// Language of the ticket description.
type Language string

const (
	LangRU  Language = "RU"
	LangKZ  Language = "KZ"
	LangENG Language = "ENG"
)

var languageAliases = map[string]Language{
	"ru": LangRU, "rus": LangRU, "russian": LangRU, "русский": LangRU,
	"kz": LangKZ, "kk": LangKZ, "kaz": LangKZ, "kazakh": LangKZ, "казахский": LangKZ,
	"eng": LangENG, "en": LangENG, "english": LangENG, "английский": LangENG,
}

// LookupLanguage resolves a raw label to its canonical value and
// reports whether the spelling is known.
func LookupLanguage(raw string) (Language, bool) {
	l, ok := languageAliases[normLabel(raw)]
	return l, ok
}

// ParseLanguage maps a raw label to its canonical value, defaulting to RU.
func ParseLanguage(raw string) Language {
	if l, ok := LookupLanguage(raw); ok {
		return l
	}
	return LangRU
}

// Segment is the customer's service tier.
type Segment string

const (
	SegmentMass     Segment = "Mass"
	SegmentPriority Segment = "Priority"
	SegmentVIP      Segment = "VIP"
)

// LookupSegment resolves a raw tier label and reports whether the
// spelling is known.
func LookupSegment(raw string) (Segment, bool) {
	switch norm := normLabel(raw); {
	case norm == "vip" || norm == "вип":
		return SegmentVIP, true
	case norm == "priority" || strings.HasPrefix(norm, "приоритет"):
		return SegmentPriority, true
	case norm == "mass" || strings.HasPrefix(norm, "масс"):
		return SegmentMass, true
	}
	return "", false
}

// ParseSegment maps a raw tier label to its canonical value, defaulting to
// Mass.
func ParseSegment(raw string) Segment {
	if s, ok := LookupSegment(raw); ok {
		return s
	}
	return SegmentMass
}

// IsVIPTier reports whether the segment gets VIP handling (VIP itself and
// the Priority tier).
func (s Segment) IsVIPTier() bool {
	return s == SegmentVIP || s == SegmentPriority
}

// Position is a manager's seniority level.
type Position string

const (
	Specialist       Position = "Specialist"
	SeniorSpecialist Position = "SeniorSpecialist"
	ChiefSpecialist  Position = "ChiefSpecialist"
)

// ParsePosition maps a raw position label to its canonical value,
// defaulting to Specialist.
func ParsePosition(raw string) Position {
	switch strings.ReplaceAll(normLabel(raw), " ", "") {
	case "chiefspecialist", "главныйспециалист":
		return ChiefSpecialist
	case "seniorspecialist", "старшийспециалист":
		return SeniorSpecialist
	default:
		return Specialist
	}
}

// IsChief reports whether the position may handle data-change requests.
func (p Position) IsChief() bool {
	return p == ChiefSpecialist
}

// Outcome tags how the assignment stage ended for one ticket.
type Outcome string

const (
	OutcomeAssigned    Outcome = "assigned"     // manager picked, workload bumped
	OutcomeSpamSkipped Outcome = "spam_skipped" // office known, manager intentionally left empty
	OutcomeNoManager   Outcome = "no_manager"   // no eligible manager at any office
	OutcomeUnmapped    Outcome = "unmapped"     // no office could be determined
)

func normLabel(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
