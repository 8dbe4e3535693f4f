// Package moderation masks censored words in incoming chat text.
// Matching ignores case, punctuation and common leet substitutions.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

const DefaultMask = '*'

// Filter implements the timeline masker.
type Filter struct {
	log     *slog.Logger
	machine *goahocorasick.Machine
	mask    rune
}

// folded is a text reduced to its significant runes, each one remembering
// its position in the original text.
type folded struct {
	runes []rune
	index []int
}

// NewFilter builds the automaton from words. Words made only of punctuation or
// spaces are ignored, an empty list gives a filter that never matches.
func NewFilter(log *slog.Logger, words []string, mask rune) (*Filter, error) {
	if mask == 0 {
		mask = DefaultMask
	}
	patterns := lo.UniqBy(
		lo.Filter(lo.Map(words, func(w string, _ int) []rune { return fold(w).runes }),
			func(p []rune, _ int) bool { return len(p) > 0 }),
		func(p []rune) string { return string(p) },
	)
	f := &Filter{log: log, mask: mask}
	if len(patterns) == 0 {
		return f, nil
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	f.machine = m
	log.Debug("Content filter ready", "words", len(patterns))
	return f, nil
}

// Censor replaces every matched word by the mask, keeping the noise around it
// and inside it as long as it belongs to the match span.
func (f *Filter) Censor(text string) string {
	masked, _ := f.censor(text)
	return masked
}

// Matches lists the normalized words found in text, in match order.
func (f *Filter) Matches(text string) []string {
	_, words := f.censor(text)
	return words
}

func (f *Filter) censor(text string) (string, []string) {
	if f.machine == nil || text == "" {
		return text, nil
	}
	mapping := fold(text)
	if len(mapping.runes) == 0 {
		return text, nil
	}
	terms := f.machine.MultiPatternSearch(mapping.runes, false)
	if len(terms) == 0 {
		return text, nil
	}
	original := []rune(text)
	var words []string
	for _, term := range terms {
		end := term.Pos + len(term.Word)
		if term.Pos < 0 || end > len(mapping.index) {
			continue
		}
		for i := mapping.index[term.Pos]; i <= mapping.index[end-1]; i++ {
			original[i] = f.mask
		}
		words = append(words, string(term.Word))
	}
	return string(original), words
}

func fold(text string) folded {
	runes := []rune(text)
	out := folded{runes: make([]rune, 0, len(runes)), index: make([]int, 0, len(runes))}
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out.runes = append(out.runes, unicode.ToLower(r))
		out.index = append(out.index, i)
	}
	return out
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
