// Package filter implements virt-who's wildcard/regex include-exclude
// predicate factory over hypervisor identifiers (spec.md §4.4).
package filter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Type selects how patterns are interpreted.
type Type int

const (
	// Auto tries wildcard (fnmatch-style) matching first, then regex.
	Auto Type = iota
	Wildcards
	Regex
)

// ParseType maps a config value to a Type. Empty string means Auto.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null":
		return Auto, nil
	case "wildcards":
		return Wildcards, nil
	case "regex":
		return Regex, nil
	default:
		return Auto, fmt.Errorf("unknown filter_type %q", s)
	}
}

type pattern struct {
	lower string
	re    *regexp.Regexp
}

func compile(raw string, t Type) (pattern, error) {
	p := pattern{lower: strings.ToLower(raw)}
	if t == Regex || t == Auto {
		re, err := regexp.Compile("(?i)^" + raw + "$")
		if err != nil {
			if t == Regex {
				return p, fmt.Errorf("compile regex %q: %w", raw, err)
			}
			// Auto: an invalid regex just means this pattern only matches as a wildcard.
		} else {
			p.re = re
		}
	}
	return p, nil
}

func (p pattern) matches(idLower, id string, t Type) bool {
	switch t {
	case Wildcards:
		ok, _ := path.Match(p.lower, idLower)
		return ok
	case Regex:
		return p.re != nil && p.re.MatchString(id)
	default: // Auto: wildcard first, then regex
		if ok, _ := path.Match(p.lower, idLower); ok {
			return true
		}
		return p.re != nil && p.re.MatchString(id)
	}
}

// Matcher is the compiled predicate produced by New.
type Matcher struct {
	include []pattern
	exclude []pattern
	typ     Type
}

// New compiles an include/exclude pattern list into a Matcher.
// Exclude takes precedence over include. An empty include list means
// "include everything". All comparisons are case-insensitive.
func New(include, exclude []string, t Type) (*Matcher, error) {
	m := &Matcher{typ: t}
	for _, raw := range include {
		p, err := compile(raw, t)
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", raw, err)
		}
		m.include = append(m.include, p)
	}
	for _, raw := range exclude {
		p, err := compile(raw, t)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", raw, err)
		}
		m.exclude = append(m.exclude, p)
	}
	return m, nil
}

// Matches reports whether id should be retained: false whenever id matches
// any exclude pattern; true whenever include is empty and no exclude
// pattern matches; otherwise true iff id matches an include pattern.
func (m *Matcher) Matches(id string) bool {
	idLower := strings.ToLower(id)
	for _, p := range m.exclude {
		if p.matches(idLower, id, m.typ) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		if p.matches(idLower, id, m.typ) {
			return true
		}
	}
	return false
}

// Empty reports whether the Matcher has no include/exclude patterns at all
// (i.e. always matches).
func (m *Matcher) Empty() bool {
	return m == nil || (len(m.include) == 0 && len(m.exclude) == 0)
}
