package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAffirmative(t *testing.T) {
	c := NewClassifier(nil, nil)
	for _, text := range []string{
		"oui",
		"OUI",
		"  Ouais  ",
		"ok vas-y",
		"je suis chaud",
		"yes bien sûr",
	} {
		assert.Equal(t, Affirmative, c.Classify(text), "text %q", text)
	}
}

func TestClassifyNegative(t *testing.T) {
	c := NewClassifier(nil, nil)
	for _, text := range []string{
		"non",
		"NON merci",
		"jamais de la vie",
		"pas intéressé",
		"stop",
	} {
		assert.Equal(t, Negative, c.Classify(text), "text %q", text)
	}
}

func TestClassifyNeither(t *testing.T) {
	c := NewClassifier(nil, nil)
	for _, text := range []string{
		"",
		"   ",
		"bonjour",
		"c'est quoi ce bot ?",
	} {
		assert.Equal(t, Neither, c.Classify(text), "text %q", text)
	}
}

func TestClassifyNegativeWinsOnConflict(t *testing.T) {
	c := NewClassifier(nil, nil)
	// Both sets match: the refusal must never read as a conversion.
	assert.Equal(t, Negative, c.Classify("non mais ok"))
	assert.Equal(t, Negative, c.Classify("oui enfin non, stop"))
}

func TestClassifyCustomPhrases(t *testing.T) {
	c := NewClassifier([]string{"si"}, []string{"nope"})
	assert.Equal(t, Affirmative, c.Classify("si si"))
	assert.Equal(t, Negative, c.Classify("nope"))
	assert.Equal(t, Neither, c.Classify("oui"))
}
