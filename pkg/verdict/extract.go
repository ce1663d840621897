// Package verdict pulls a signed integer score out of free-form judge or
// reviewer text.
package verdict

import (
	"regexp"
	"strconv"
	"strings"
)

// Strategy attempts to read a score from text. The boolean is false when
// the strategy found nothing it recognizes.
type Strategy func(text string) (int, bool)

// StandaloneLines is how many leading lines Standalone inspects by default.
const StandaloneLines = 10

// LabeledPatterns are tried in order before the standalone fallback.
var LabeledPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Score:\s*([+-]?\d+)`),
	regexp.MustCompile(`(?i)\*\*Score:\*\*\s*([+-]?\d+)`),
	regexp.MustCompile(`(?i)Gerrit Score:\s*([+-]?\d+)`),
}

var standaloneRe = regexp.MustCompile(`^[+-]?[012]$`)

// Default is the strategy used by Extract.
var Default = New(StandaloneLines)

// New returns the labeled patterns followed by a standalone search of the
// first n lines.
func New(n int) Strategy {
	return FirstOf(append(labeled(LabeledPatterns), Standalone(n))...)
}

// Extract returns the first score found by Default, or 0.
func Extract(text string) int {
	v, _ := Default(text)
	return v
}

// Find is Extract that also reports whether any strategy matched.
func Find(text string) (int, bool) {
	return Default(text)
}

// FirstOf returns the result of the first strategy that matches.
func FirstOf(strategies ...Strategy) Strategy {
	return func(text string) (int, bool) {
		for _, s := range strategies {
			if v, ok := s(text); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// Labeled matches re against text and parses its first capture group.
func Labeled(re *regexp.Regexp) Strategy {
	return func(text string) (int, bool) {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			return 0, false
		}
		return parse(m[1])
	}
}

// Standalone looks for a line holding only a value in -2..2 among the first
// n lines of text.
func Standalone(n int) Strategy {
	return func(text string) (int, bool) {
		lines := strings.Split(text, "\n")
		if n >= 0 && len(lines) > n {
			lines = lines[:n]
		}
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if standaloneRe.MatchString(line) {
				return parse(line)
			}
		}
		return 0, false
	}
}

func labeled(res []*regexp.Regexp) []Strategy {
	out := make([]Strategy, 0, len(res))
	for _, re := range res {
		out = append(out, Labeled(re))
	}
	return out
}

func parse(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
