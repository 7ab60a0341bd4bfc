package nl2sql

import (
	"regexp"
	"strings"
)

type Position int

const (
	PositionPrefix Position = iota
	PositionSuffix
	PositionAnywhere
)

// SanitizeRule strips one known formatting artifact from model output. A
// rule matches either a literal Token or, for prefixes, a Pattern anchored at
// the start of the text.
type SanitizeRule struct {
	Name     string
	Position Position
	Token    string
	Pattern  *regexp.Regexp
}

// dialectTag is a language word a model may put after an opening fence or on
// its own first line. Longer names come first so sqlite3 is not cut to sqlite.
const dialectTag = `(?:sqlite3|sqlite|postgresql|postgres|duckdb|sql)`

// DefaultSanitizeRules lists every artifact the sanitizer knows about, applied
// in order. Anything not listed here reaches the store unchanged. The rules
// are cosmetic only and make no attempt to reject unsafe statements.
var DefaultSanitizeRules = []SanitizeRule{
	{Name: "fence_open", Position: PositionPrefix, Pattern: regexp.MustCompile("(?i)^```[ \\t]*(?:" + dialectTag + "\\b)?")},
	{Name: "fence_close", Position: PositionSuffix, Token: "```"},
	{Name: "dialect_tag", Position: PositionPrefix, Pattern: regexp.MustCompile(`(?i)^` + dialectTag + `[ \t]*\r?\n`)},
	{Name: "label_sqlquery", Position: PositionPrefix, Pattern: regexp.MustCompile(`(?i)^SQLQuery:`)},
}

type Sanitizer struct {
	Rules []SanitizeRule
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{Rules: DefaultSanitizeRules}
}

// Apply returns the cleaned statement and the names of the rules that fired.
func (s *Sanitizer) Apply(raw string) (string, []string) {
	out := strings.TrimSpace(raw)
	var fired []string
	for _, rule := range s.Rules {
		before := out
		out = rule.apply(out)
		if out != before {
			fired = append(fired, rule.Name)
			out = strings.TrimSpace(out)
		}
	}
	return out, fired
}

func (r SanitizeRule) apply(s string) string {
	if r.Pattern != nil {
		if r.Position != PositionPrefix {
			return r.Pattern.ReplaceAllString(s, "")
		}
		if loc := r.Pattern.FindStringIndex(s); loc != nil && loc[0] == 0 {
			return s[loc[1]:]
		}
		return s
	}
	if r.Token == "" {
		return s
	}
	switch r.Position {
	case PositionPrefix:
		return strings.TrimPrefix(s, r.Token)
	case PositionSuffix:
		return strings.TrimSuffix(s, r.Token)
	default:
		return strings.ReplaceAll(s, r.Token, "")
	}
}

func Sanitize(raw string) string {
	out, _ := NewSanitizer().Apply(raw)
	return out
}
