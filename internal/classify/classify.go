// Package classify learns which items a reader finds boring from their
// ratings and predicts it for unrated items with a naive Bayes model.
package classify

import (
	"strings"
	"sync"
	"unicode"

	"github.com/jbrukh/bayesian"
	"github.com/kljensen/snowball/english"

	"headlines/internal/content"
)

const (
	// Boring is the class of items rated at or below the boring threshold.
	Boring bayesian.Class = "boring"
	// Interesting is the class of every other rated item.
	Interesting bayesian.Class = "interesting"
)

const minTokenLength = 2

// Sample is one rated item used for training.
type Sample struct {
	Text   string
	Boring bool
}

// Classifier wraps a bayesian.Classifier that is rebuilt from scratch on
// every Train call. It is safe for concurrent use.
type Classifier struct {
	model       *bayesian.Classifier
	boring      int
	interesting int
	mu          sync.RWMutex
}

// New returns an untrained Classifier.
func New() *Classifier {
	return &Classifier{model: bayesian.NewClassifier(Boring, Interesting)}
}

// Train replaces everything learned so far with samples.
func (c *Classifier) Train(samples []Sample) {
	model := bayesian.NewClassifier(Boring, Interesting)
	boring, interesting := 0, 0

	for _, sample := range samples {
		tokens := Tokenize(sample.Text)
		if len(tokens) == 0 {
			continue
		}

		if sample.Boring {
			model.Learn(tokens, Boring)
			boring++
		} else {
			model.Learn(tokens, Interesting)
			interesting++
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.model = model
	c.boring = boring
	c.interesting = interesting
}

// Ready reports whether both classes have seen at least one sample.
func (c *Classifier) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.boring > 0 && c.interesting > 0
}

// Counts returns how many boring and interesting samples were learned.
func (c *Classifier) Counts() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.boring, c.interesting
}

// Classify predicts whether an item with the given title and summary is
// boring. ok is false when the model is not ready, the text has no usable
// tokens, or both classes score the same.
func (c *Classifier) Classify(title, summary string) (bool, bool) {
	tokens := Tokenize(ItemText(title, summary))
	if len(tokens) == 0 {
		return false, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.boring == 0 || c.interesting == 0 {
		return false, false
	}

	_, best, strict := c.model.LogScores(tokens)
	if !strict {
		return false, false
	}

	return best == 0, true
}

// ItemText joins an item's title and the plain text of its summary.
func ItemText(title, summary string) string {
	return strings.TrimSpace(title + " " + content.PlainText(summary))
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit, drops short tokens and English stop words, and stems the rest.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))

	for _, field := range fields {
		if len([]rune(field)) < minTokenLength || english.IsStopWord(field) {
			continue
		}

		tokens = append(tokens, english.Stem(field, false))
	}

	return tokens
}
