// Package langdetect classifies ticket descriptions as Russian, Kazakh or
// English. Statistical detection (lingua) is augmented with script and
// vocabulary rules because Kazakh and Russian share an alphabet and short
// banking texts give the statistical model little to work with.
package langdetect

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pemistahl/lingua-go"

	"ticketflow/pkg/model"
)

const (
	highConfidence   = 0.8
	lowConfidence    = 0.4
	engMinConfidence = 0.90

	// Share of Kazakh-specific letters among alphabetic runes.
	kzNoiseThreshold  = 0.03
	kzStrongThreshold = 0.15
)

// Letters that exist in Kazakh Cyrillic but not in Russian.
const kazakhChars = "әғқңөұүһіӘҒҚҢӨҰҮҺІ"

var kazakhFunctionWords = map[string]bool{
	"және": true, "бұл": true, "мен": true, "бар": true, "деп": true,
	"үшін": true, "бір": true, "не": true, "да": true, "де": true,
	"ол": true, "біз": true, "сіз": true, "жоқ": true, "болды": true,
	"бола": true, "туралы": true, "дейін": true, "егер": true,
	"немесе": true, "себебі": true,
}

var englishCommonWords = map[string]bool{
	"i": true, "the": true, "is": true, "are": true, "you": true,
	"my": true, "me": true, "we": true, "it": true, "to": true,
	"in": true, "of": true, "and": true, "a": true, "an": true,
	"this": true, "that": true, "for": true, "not": true, "can": true,
	"do": true, "have": true, "please": true, "hello": true, "hi": true,
	"hey": true, "your": true, "with": true, "from": true, "been": true,
	"was": true, "am": true, "be": true, "but": true, "they": true,
	"there": true, "what": true, "how": true, "why": true, "when": true,
	"will": true, "no": true,
}

var urlPattern = regexp.MustCompile(`http\S+`)

// Forward/reply markers appear verbatim in exported email subjects.
var markerReplacer = strings.NewReplacer("FW:", "", "RE:", "")

// Detector wraps a lingua detector restricted to the three supported
// languages. Safe for concurrent use.
type Detector struct {
	lingua lingua.LanguageDetector
}

// New builds a Detector. Language models are loaded lazily by lingua on
// first use.
func New() *Detector {
	det := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.Russian, lingua.Kazakh, lingua.English).
		Build()
	return &Detector{lingua: det}
}

// Detect returns the language of text. Empty or unusable input defaults
// to RU. The result is deterministic for a fixed input.
func (d *Detector) Detect(text string) model.Language {
	if strings.TrimSpace(text) == "" {
		return model.LangRU
	}
	text = preprocess(text)
	if text == "" {
		return model.LangRU
	}

	var confs []confidence
	for _, cv := range d.lingua.ComputeLanguageConfidenceValues(text) {
		switch cv.Language() {
		case lingua.Russian:
			confs = append(confs, confidence{model.LangRU, cv.Value()})
		case lingua.Kazakh:
			confs = append(confs, confidence{model.LangKZ, cv.Value()})
		case lingua.English:
			confs = append(confs, confidence{model.LangENG, cv.Value()})
		}
	}

	return decide(confs, kazakhCharRatio(text),
		hasWordFrom(text, kazakhFunctionWords),
		hasWordFrom(text, englishCommonWords))
}

type confidence struct {
	lang  model.Language
	value float64
}

// decide applies the rule layer on top of the statistical confidences.
// confs is ordered as reported by lingua (highest first); on ties the
// earlier entry wins.
func decide(confs []confidence, kzRatio float64, hasKZWords, hasENWords bool) model.Language {
	if len(confs) == 0 {
		if kzRatio >= kzStrongThreshold || hasKZWords {
			return model.LangKZ
		}
		return model.LangRU
	}

	top := confs[0]
	for _, c := range confs[1:] {
		if c.value > top.value {
			top = c
		}
	}

	if top.value >= highConfidence {
		// English claims need corroboration: near-certain confidence
		// plus at least one common English word.
		if top.lang == model.LangENG && (top.value < engMinConfidence || !hasENWords) {
			return model.LangRU
		}
		return top.lang
	}

	if top.value >= lowConfidence {
		if kzRatio >= kzStrongThreshold || hasKZWords {
			return model.LangKZ
		}
		// Weak Kazakh guesses without any Kazakh evidence are usually
		// transliterated noise; fall back to the RU/ENG runner-up.
		if top.lang == model.LangKZ && top.value < 0.55 && kzRatio < kzNoiseThreshold && !hasKZWords {
			if confValue(confs, model.LangENG) > confValue(confs, model.LangRU) {
				return model.LangENG
			}
			return model.LangRU
		}
		return top.lang
	}

	if kzRatio >= kzStrongThreshold || hasKZWords {
		return model.LangKZ
	}
	return model.LangRU
}

func confValue(confs []confidence, lang model.Language) float64 {
	for _, c := range confs {
		if c.lang == lang {
			return c.value
		}
	}
	return 0
}

func preprocess(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = markerReplacer.Replace(text)
	return strings.TrimSpace(text)
}

func kazakhCharRatio(text string) float64 {
	var alpha, kz int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		alpha++
		if strings.ContainsRune(kazakhChars, r) {
			kz++
		}
	}
	if alpha == 0 {
		return 0
	}
	return float64(kz) / float64(alpha)
}

func hasWordFrom(text string, words map[string]bool) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if words[w] {
			return true
		}
	}
	return false
}
