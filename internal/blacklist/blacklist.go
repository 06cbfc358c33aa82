// Package blacklist compiles and evaluates the patterns used to keep
// unwanted items out of the database.
package blacklist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyPattern is returned for a blank pattern.
	ErrEmptyPattern = errors.New("blacklist pattern is empty")
	// ErrInvalidPattern wraps regular expression syntax errors.
	ErrInvalidPattern = errors.New("blacklist pattern is invalid")
)

// Compile turns a pattern source into a case-insensitive regular expression.
// The source is normalized to NFC so composed and decomposed forms match the
// same text.
func Compile(source string) (*regexp.Regexp, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, ErrEmptyPattern
	}

	re, err := regexp.Compile("(?i)" + norm.NFC.String(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	return re, nil
}

// Matcher reports whether any of its patterns matches a piece of text.
type Matcher struct {
	patterns []*regexp.Regexp
	sources  []string
}

// NewMatcher compiles sources. Patterns that fail to compile are skipped and
// returned joined in the error; the matcher is usable either way.
func NewMatcher(sources []string) (*Matcher, error) {
	m := &Matcher{}

	var errs []error

	for _, source := range sources {
		re, err := Compile(source)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %q: %w", source, err))

			continue
		}

		m.patterns = append(m.patterns, re)
		m.sources = append(m.sources, strings.TrimSpace(source))
	}

	return m, errors.Join(errs...)
}

// Len returns the number of usable patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}

	return len(m.patterns)
}

// Match returns the source of the first pattern matching any of texts.
func (m *Matcher) Match(texts ...string) (string, bool) {
	if m.Len() == 0 {
		return "", false
	}

	for _, text := range texts {
		if text == "" {
			continue
		}

		normalized := norm.NFC.String(text)

		for idx, re := range m.patterns {
			if re.MatchString(normalized) {
				return m.sources[idx], true
			}
		}
	}

	return "", false
}
