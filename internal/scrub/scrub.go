// Package scrub redacts payment data, government ids and credentials from
// webhook payloads before they are written to the audit log.
//
// Callers read card numbers and account details aloud during SOP interviews,
// so transcripts are treated as untrusted text.
package scrub

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultReplacement is substituted for every match.
const DefaultReplacement = "[REDACTED]"

// Rule detects one kind of sensitive value.
type Rule struct {
	ID       string
	Pattern  string
	Keywords []string
	// Validate, when set, must accept the match for it to be redacted.
	Validate func(match string) bool
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// Scrubber redacts rule matches from text.
type Scrubber struct {
	rules       []compiledRule
	replacement string
}

// Result is the outcome of one Scrub call.
type Result struct {
	Scrubbed string
	// ByRule counts redactions per rule id. Matched values are never kept.
	ByRule map[string]int
}

// Total returns the number of redactions.
func (r Result) Total() int {
	n := 0
	for _, c := range r.ByRule {
		n += c
	}
	return n
}

// New compiles rules. A nil slice uses DefaultRules.
func New(rules []Rule) (*Scrubber, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	s := &Scrubber{replacement: DefaultReplacement}
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		s.rules = append(s.rules, compiledRule{Rule: r, pattern: re, keywords: kws})
	}
	return s, nil
}

// MustNew is New for static rule sets.
func MustNew(rules []Rule) *Scrubber {
	s, err := New(rules)
	if err != nil {
		panic(err)
	}
	return s
}

type span struct{ start, end int }

// Scrub returns content with every match replaced.
func (s *Scrubber) Scrub(content string) Result {
	res := Result{Scrubbed: content, ByRule: map[string]int{}}
	if s == nil || content == "" {
		return res
	}
	lower := strings.ToLower(content)

	var spans []span
	for _, r := range s.rules {
		if !hasKeyword(lower, r.keywords) {
			continue
		}
		for _, m := range r.pattern.FindAllStringIndex(content, -1) {
			if r.Validate != nil && !r.Validate(content[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{m[0], m[1]})
			res.ByRule[r.ID]++
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(content[last:sp.start])
		b.WriteString(s.replacement)
		last = sp.end
	}
	b.WriteString(content[last:])
	res.Scrubbed = b.String()
	return res
}

// ScrubBytes is Scrub for raw payloads.
func (s *Scrubber) ScrubBytes(content []byte) []byte {
	res := s.Scrub(string(content))
	if res.Total() == 0 {
		return content
	}
	return []byte(res.Scrubbed)
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}
