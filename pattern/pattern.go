// Package pattern implements the matching contract §6 of the language
// specification describes: a compiled Pattern whose byte-identical
// source round-trips through serialization, and a Matcher that produces
// capture lists.
//
// The specification's reference implementation targets PCRE. None of
// the retrieved example repositories import a PCRE binding (cgo-based
// or pure Go), so this package ships a Matcher backed by the standard
// library's regexp (RE2) engine instead, behind the same interface a
// PCRE-backed Matcher would implement. Compile accepts a factory so a
// PCRE engine can be swapped in without touching callers.
package pattern

import "regexp"

// Matcher is the contract a pattern-matching backend must satisfy.
type Matcher interface {
	// Match returns the capture groups (index 0 is the whole match) for
	// the first match in subject, or nil if there is no match.
	Match(subject string) []string
	// MatchAll returns the capture groups for every non-overlapping
	// match in subject, or nil if there are none.
	MatchAll(subject string) [][]string
}

// Factory builds a Matcher from a pattern's source text. The default is
// regexpFactory; override with SetDefaultFactory to plug in a different
// engine (e.g. a future PCRE binding) process-wide.
type Factory func(source string) (Matcher, error)

var defaultFactory Factory = regexpFactory

// SetDefaultFactory overrides the engine used by Compile.
func SetDefaultFactory(f Factory) { defaultFactory = f }

// Pattern is an opaque handle whose Source survives round-trips through
// serialization untouched (used by bytecode caching, §6).
type Pattern struct {
	Source  string
	matcher Matcher
}

// Compile parses source with the default factory and returns a Pattern.
func Compile(source string) (*Pattern, error) {
	m, err := defaultFactory(source)
	if err != nil {
		return nil, err
	}
	return &Pattern{Source: source, matcher: m}, nil
}

// Match returns captures 0..N for the first match, or nil.
func (p *Pattern) Match(subject string) []string {
	return p.matcher.Match(subject)
}

// MatchAll returns a list of capture lists, or nil if there are no matches.
func (p *Pattern) MatchAll(subject string) [][]string {
	return p.matcher.MatchAll(subject)
}

// regexpMatcher adapts regexp.Regexp to the Matcher contract.
type regexpMatcher struct {
	re *regexp.Regexp
}

func regexpFactory(source string) (Matcher, error) {
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	return &regexpMatcher{re: re}, nil
}

func (m *regexpMatcher) Match(subject string) []string {
	groups := m.re.FindStringSubmatch(subject)
	if groups == nil {
		return nil
	}
	return groups
}

func (m *regexpMatcher) MatchAll(subject string) [][]string {
	all := m.re.FindAllStringSubmatch(subject, -1)
	if all == nil {
		return nil
	}
	return all
}
