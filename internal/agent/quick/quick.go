// Package quick answers common back-office questions straight from the
// document store, without a model round trip.
package quick

import (
	"context"
	"strings"
	"unicode"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

// Match carries the normalized query and the submatches of the pattern
// that fired. Groups[0] is the whole match.
type Match struct {
	Rule   string
	Query  string
	Groups []string
}

// Group returns submatch i or "" when it did not participate.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Answer is the output of a rule handler.
type Answer struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Handler computes the answer for a matched query.
type Handler func(ctx context.Context, m Match) (Answer, error)

// Rule is an ordered fast-path entry. Patterns are tried in order against
// the normalized query.
type Rule struct {
	Name     string
	Patterns []*re2.Regexp
	Handler  Handler
}

// Matcher holds rules in priority order.
type Matcher struct {
	rules  []Rule
	logger *logger.Logger
}

// NewMatcher creates a matcher over rules.
func NewMatcher(log *logger.Logger, rules ...Rule) *Matcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Matcher{rules: rules, logger: log.Component("quick")}
}

// Add appends rule with the lowest priority.
func (m *Matcher) Add(rule Rule) {
	m.rules = append(m.rules, rule)
}

// Rules returns the rule names in priority order.
func (m *Matcher) Rules() []string {
	names := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		names = append(names, r.Name)
	}
	return names
}

// Match returns the first rule with a pattern matching query.
func (m *Matcher) Match(query string) (Rule, Match, bool) {
	q := Normalize(query)
	if q == "" {
		return Rule{}, Match{}, false
	}
	for _, r := range m.rules {
		for _, p := range r.Patterns {
			if groups := p.FindStringSubmatch(q); groups != nil {
				return r, Match{Rule: r.Name, Query: q, Groups: groups}, true
			}
		}
	}
	return Rule{}, Match{}, false
}

// Answer runs the first matching rule. ok is false when nothing matched or
// the handler failed; handler failures are logged and the caller is
// expected to fall back to the model.
func (m *Matcher) Answer(ctx context.Context, query string) (Answer, bool) {
	rule, match, ok := m.Match(query)
	if !ok {
		return Answer{}, false
	}

	ans, err := rule.Handler(ctx, match)
	if err != nil {
		m.logger.WarnCtx(ctx, "quick query handler failed, falling back",
			logger.Field{Key: "rule", Value: rule.Name},
			logger.Field{Key: "error", Value: err.Error()})
		return Answer{}, false
	}
	if ans.Rule == "" {
		ans.Rule = rule.Name
	}
	m.logger.DebugCtx(ctx, "quick query answered", logger.Field{Key: "rule", Value: rule.Name})
	return ans, true
}

// Normalize folds compatibility forms (NFKC), lower-cases, collapses
// whitespace and trims trailing punctuation.
func Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == '?' || r == '!' || r == '.' || unicode.IsSpace(r)
	})
}
