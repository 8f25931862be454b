package service

import "strings"

// Classification is the funnel reading of a free-text message.
type Classification int

const (
	Neither Classification = iota
	Affirmative
	Negative
)

func (c Classification) String() string {
	switch c {
	case Affirmative:
		return "affirmative"
	case Negative:
		return "negative"
	default:
		return "neither"
	}
}

var defaultPositivePhrases = []string{
	"oui", "yes", "bien sûr", "bien sur", "ok", "d'accord", "daccord",
	"chaud", "partant", "go", "ouais", "yep", "yeah",
}

var defaultNegativePhrases = []string{
	"non", "no", "jamais", "pas intéressé", "pas interesse", "arrête", "arrete", "stop",
}

// Classifier matches free text against affirmative and negative phrase sets.
type Classifier struct {
	positive []string
	negative []string
}

// NewClassifier builds a classifier; nil phrase lists select the defaults.
func NewClassifier(positive, negative []string) *Classifier {
	if positive == nil {
		positive = defaultPositivePhrases
	}
	if negative == nil {
		negative = defaultNegativePhrases
	}
	return &Classifier{positive: positive, negative: negative}
}

// Classify normalizes the text and checks it against both phrase sets by
// substring. Negative takes precedence when both match, so a refusal that
// happens to contain an affirmative phrase ("non merci, pas ok") is never
// read as a conversion.
func (c *Classifier) Classify(text string) Classification {
	value := strings.ToLower(strings.TrimSpace(text))
	if value == "" {
		return Neither
	}
	for _, phrase := range c.negative {
		if strings.Contains(value, phrase) {
			return Negative
		}
	}
	for _, phrase := range c.positive {
		if strings.Contains(value, phrase) {
			return Affirmative
		}
	}
	return Neither
}
