package query

import (
	"fmt"
	"strings"
	"unicode"
)

var readOnlyKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"PRAGMA":   true,
	"SHOW":     true,
	"DESCRIBE": true,
}

// writeKeywords may not appear anywhere in a read-only statement, including
// CTE bodies and the statement following a WITH clause.
var writeKeywords = map[string]bool{
	"INSERT":     true,
	"UPDATE":     true,
	"DELETE":     true,
	"MERGE":      true,
	"UPSERT":     true,
	"CREATE":     true,
	"DROP":       true,
	"ALTER":      true,
	"ATTACH":     true,
	"DETACH":     true,
	"VACUUM":     true,
	"REINDEX":    true,
	"TRUNCATE":   true,
	"COPY":       true,
	"GRANT":      true,
	"REVOKE":     true,
	"INSTALL":    true,
	"LOAD":       true,
	"CHECKPOINT": true,
}

// checkReadOnly accepts a single statement whose first keyword only reads and
// that names no write keyword outside literals and comments. The store handle
// is opened read-only as well; this check only gives an earlier, clearer
// rejection.
func checkReadOnly(sqlText string) error {
	body := skipLeadingNoise(sqlText)
	keyword := strings.ToUpper(leadingWord(body))
	if keyword == "" {
		return fmt.Errorf("statement has no leading keyword")
	}
	if !readOnlyKeywords[keyword] {
		return fmt.Errorf("statement kind %s is not allowed in read-only mode", keyword)
	}

	code := codeOnly(body)
	if strings.Contains(code, ";") {
		return fmt.Errorf("multiple statements are not allowed in read-only mode")
	}
	if keyword == "PRAGMA" && strings.Contains(code, "=") {
		return fmt.Errorf("pragma assignments are not allowed in read-only mode")
	}

	words := strings.FieldsFunc(code, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, word := range words {
		word = strings.ToUpper(word)
		if writeKeywords[word] {
			return fmt.Errorf("statement contains %s, which is not allowed in read-only mode", word)
		}
		// replace(x, y, z) is a scalar function; REPLACE INTO is a write.
		if word == "REPLACE" && i+1 < len(words) && strings.EqualFold(words[i+1], "INTO") {
			return fmt.Errorf("statement contains REPLACE INTO, which is not allowed in read-only mode")
		}
	}
	return nil
}

func skipLeadingNoise(s string) string {
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		return s
	}
}

func leadingWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// codeOnly blanks string literals, quoted identifiers and comments so the
// remaining text holds only keywords, names and punctuation. An unterminated
// quote or comment blanks the rest of the input.
func codeOnly(s string) string {
	out := []byte(s)
	blank := func(from, to int) {
		for k := from; k < to; k++ {
			out[k] = ' '
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				blank(i, len(s))
				return string(out)
			}
			blank(i, i+end+2)
			i += end + 1
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				blank(i, len(s))
				return string(out)
			}
			blank(i, i+end)
			i += end
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				blank(i, len(s))
				return string(out)
			}
			blank(i, i+end+4)
			i += end + 3
		}
	}
	return string(out)
}
