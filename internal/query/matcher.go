// Package query evaluates a small search-operator DSL against hydrated
// messages. The incremental change feed has no server-side filtering, so
// watch consumers reproduce the search semantics client-side with this
// matcher.
package query

import (
	"log/slog"
	"strings"

	"github.com/shaneholloman/zele-sub000/internal/mailapi"
)

// knownOperators is the vocabulary this matcher evaluates locally.
var knownOperators = map[string]bool{
	"from":    true,
	"to":      true,
	"cc":      true,
	"subject": true,
	"label":   true,
	"is":      true,
	"has":     true,
}

type term struct {
	negated bool
	op      string
	value   string
}

// Matcher evaluates queries against parsed messages. Operators outside the
// local vocabulary are skipped with a logged warning rather than failing
// the match, since they are meaningful only to the server-side search.
type Matcher struct {
	logger *slog.Logger
}

// New creates a matcher. The logger receives skipped-operator warnings.
func New(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

// Matches reports whether item satisfies query. All terms are
// AND-combined; a negated term inverts its own result before the AND. An
// empty query matches everything.
func (m *Matcher) Matches(item *mailapi.ParsedMessage, query string) bool {
	for _, t := range m.parse(query) {
		matched := m.evalTerm(item, t)
		if t.negated {
			matched = !matched
		}
		if !matched {
			return false
		}
	}
	return true
}

// parse splits query into terms. Quoted phrases are single terms; a
// leading '-' negates; an unrecognized operator drops its term with a
// warning.
func (m *Matcher) parse(query string) []term {
	var terms []term
	for _, tok := range tokenize(query) {
		t := term{}
		if strings.HasPrefix(tok, "-") {
			t.negated = true
			tok = tok[1:]
		}
		if tok == "" {
			continue
		}

		if i := strings.Index(tok, ":"); i >= 0 {
			op := strings.ToLower(tok[:i])
			if !knownOperators[op] {
				m.logger.Warn("skipping unsupported query operator",
					slog.String("operator", op))
				continue
			}
			t.op = op
			t.value = unquote(tok[i+1:])
		} else {
			t.value = unquote(tok)
		}
		if t.value == "" {
			continue
		}
		// Unsupported operator values are dropped here, not during
		// evaluation: a skipped term must never fail the conjunction,
		// which it would under negation if evaluation returned a
		// placeholder result.
		if !m.supported(t) {
			continue
		}
		terms = append(terms, t)
	}
	return terms
}

// supported reports whether the term's operator value is one this matcher
// evaluates, warning for the ones it drops.
func (m *Matcher) supported(t term) bool {
	switch t.op {
	case "is":
		switch strings.ToLower(t.value) {
		case "unread", "read", "starred":
			return true
		}
		m.logger.Warn("skipping unsupported is: value",
			slog.String("value", t.value))
		return false
	case "has":
		if strings.EqualFold(t.value, "attachment") {
			return true
		}
		m.logger.Warn("skipping unsupported has: value",
			slog.String("value", t.value))
		return false
	default:
		return true
	}
}

func (m *Matcher) evalTerm(item *mailapi.ParsedMessage, t term) bool {
	switch t.op {
	case "from":
		return containsFold(item.From, t.value)
	case "to":
		return containsFold(item.To, t.value)
	case "cc":
		return containsFold(item.Cc, t.value)
	case "subject":
		return containsFold(item.Subject, t.value)
	case "label":
		for _, l := range item.Labels {
			if strings.EqualFold(l, t.value) {
				return true
			}
		}
		return false
	case "is":
		switch strings.ToLower(t.value) {
		case "unread":
			return item.Unread
		case "read":
			return !item.Unread
		case "starred":
			return item.Starred
		}
		return false
	case "has":
		return item.HasAttachment
	default:
		// bare term: match the default field set
		return containsFold(item.Subject, t.value) || containsFold(item.From, t.value)
	}
}

// tokenize splits on whitespace, keeping double-quoted spans (including
// the quotes) inside one token so subject:"weekly report" parses as one
// term.
func tokenize(query string) []string {
	var tokens []string
	var b strings.Builder
	inQuotes := false

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case !inQuotes && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
