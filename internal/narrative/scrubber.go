// Package narrative replaces known original values in free text.
package narrative

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Kind selects the minimum-length threshold applied to a pair.
type Kind int

const (
	KindName Kind = iota
	KindOrganization
	KindLocation
)

// Pair maps an original value to its replacement.
type Pair struct {
	Original    string
	Replacement string
	Kind        Kind
}

// Policy holds the matching thresholds. Short originals are skipped to
// avoid scrubbing common words.
type Policy struct {
	MinNameLength int
	MinOrgLength  int
	MinMRNLength  int
	// WholeWords anchors candidates at word boundaries where the candidate
	// starts or ends with a letter, digit or underscore. Off by default:
	// originals are replaced wherever they occur, even inside a token.
	WholeWords bool
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{MinNameLength: 2, MinOrgLength: 3, MinMRNLength: 3}
}

func (p Policy) minLength(k Kind) int {
	if k == KindOrganization {
		return p.MinOrgLength
	}
	return p.MinNameLength
}

// MRN maps the patient's original record number to its fake.
type MRN struct {
	Original    string
	Replacement string
}

// Scrubber rewrites free text using a fixed replacement map.
type Scrubber struct {
	pattern    *regexp.Regexp
	candidates []string
	lookup     map[string]string

	mrn, mrnFake string

	collisions []string
}

// New compiles the replacement map. The first pair for an original wins.
// A zero MRN disables the MRN pass.
func New(pairs []Pair, mrn MRN, policy Policy) *Scrubber {
	s := &Scrubber{lookup: make(map[string]string)}

	for _, p := range pairs {
		orig := strings.TrimSpace(p.Original)
		if orig == "" || p.Replacement == "" || strings.EqualFold(orig, p.Replacement) {
			continue
		}
		if utf8.RuneCountInString(orig) < policy.minLength(p.Kind) {
			continue
		}
		key := strings.ToLower(orig)
		if _, ok := s.lookup[key]; ok {
			continue
		}
		s.lookup[key] = p.Replacement
		s.candidates = append(s.candidates, orig)
	}

	sort.Slice(s.candidates, func(i, j int) bool {
		a, b := s.candidates[i], s.candidates[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	if len(s.candidates) > 0 {
		alts := make([]string, len(s.candidates))
		for i, c := range s.candidates {
			alts[i] = quote(c, policy.WholeWords)
		}
		s.pattern = regexp.MustCompile("(?i)(?:" + strings.Join(alts, "|") + ")")

		for _, c := range s.candidates {
			if fake := s.lookup[strings.ToLower(c)]; s.pattern.MatchString(fake) {
				s.collisions = append(s.collisions, fake)
			}
		}
	}

	orig := strings.TrimSpace(mrn.Original)
	if len(orig) >= policy.MinMRNLength && mrn.Replacement != "" && orig != mrn.Replacement {
		s.mrn, s.mrnFake = orig, mrn.Replacement
	}
	return s
}

func quote(c string, wholeWords bool) string {
	q := regexp.QuoteMeta(c)
	if !wholeWords {
		return q
	}
	if isWordByte(c[0]) {
		q = `\b` + q
	}
	if isWordByte(c[len(c)-1]) {
		q += `\b`
	}
	return q
}

func isWordByte(b byte) bool {
	return b == '_' || isAlnum(b)
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// Empty reports whether the scrubber has nothing to replace.
func (s *Scrubber) Empty() bool { return s.pattern == nil && s.mrn == "" }

// Collisions returns replacement values that the pattern itself would
// match. Text containing them is not stable under a second pass.
func (s *Scrubber) Collisions() []string { return s.collisions }

// Candidates returns the originals in match priority order.
func (s *Scrubber) Candidates() []string { return s.candidates }

// Scrub replaces every candidate occurrence, then every standalone MRN
// occurrence. Replacements use the mapped value's case.
func (s *Scrubber) Scrub(text string) string {
	if s.pattern != nil {
		text = s.pattern.ReplaceAllStringFunc(text, s.replacement)
	}
	if s.mrn != "" {
		text = s.scrubMRN(text)
	}
	return text
}

func (s *Scrubber) replacement(match string) string {
	if r, ok := s.lookup[strings.ToLower(match)]; ok {
		return r
	}
	for _, c := range s.candidates {
		if strings.EqualFold(c, match) {
			return s.lookup[strings.ToLower(c)]
		}
	}
	return match
}

// scrubMRN skips occurrences joined by a hyphen to a letter or digit, as
// in "TX-00045213-A". Any other occurrence is replaced.
func (s *Scrubber) scrubMRN(text string) string {
	var b strings.Builder
	rest := text
	offset := 0
	for {
		i := strings.Index(rest, s.mrn)
		if i < 0 {
			break
		}
		start, end := offset+i, offset+i+len(s.mrn)
		b.WriteString(rest[:i])
		if standalone(text, start, end) {
			b.WriteString(s.mrnFake)
		} else {
			b.WriteString(s.mrn)
		}
		rest = text[end:]
		offset = end
	}
	if offset == 0 {
		return text
	}
	b.WriteString(rest)
	return b.String()
}

func standalone(text string, start, end int) bool {
	if start > 0 {
		prev := text[start-1]
		if prev == '-' && start > 1 && isAlnum(text[start-2]) {
			return false
		}
	}
	if end < len(text) {
		next := text[end]
		if next == '-' && end+1 < len(text) && isAlnum(text[end+1]) {
			return false
		}
	}
	return true
}
