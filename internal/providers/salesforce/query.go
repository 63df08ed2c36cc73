package salesforce

import (
	"net/url"
	"strings"
	"unicode"
)

// FormatQuery turns a multi-line SOQL statement into the value of the q parameter
// of the query resource. Line breaks and runs of blanks collapse to one space and
// the result is query-escaped, so spaces become "+" and literals holding "%", "&"
// or "+" reach the server intact.
func FormatQuery(query string) string {
	return url.QueryEscape(strings.Join(strings.Fields(query), " "))
}

// SelectedFields returns the field list of the outermost SELECT clause in
// declaration order, e.g. ["Id", "Account.Name"]. Subqueries and aggregate
// expressions are skipped. It returns nil when the statement has no SELECT clause.
func SelectedFields(query string) []string {
	normalized := strings.Map(func(r rune) rune {
		if r == '+' || unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, query)
	normalized = strings.TrimSpace(normalized)

	if len(normalized) < len("select ") || !strings.EqualFold(normalized[:len("select ")], "select ") {
		return nil
	}
	clause := normalized[len("select "):]

	var fields []string
	depth := 0
	start := 0
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				fields = appendField(fields, clause[start:i])
				start = i + 1
			}
		case ' ':
			if depth == 0 && isKeywordAt(clause, i+1, "from") {
				return appendField(fields, clause[start:i])
			}
		}
	}

	// No FROM clause
	return nil
}

// isKeywordAt reports whether s holds the keyword at position i followed by a blank or the end
func isKeywordAt(s string, i int, keyword string) bool {
	end := i + len(keyword)
	if end > len(s) || !strings.EqualFold(s[i:end], keyword) {
		return false
	}
	return end == len(s) || s[end] == ' '
}

func appendField(fields []string, raw string) []string {
	field := strings.TrimSpace(raw)
	if field == "" || strings.ContainsAny(field, "() ") {
		return fields
	}
	return append(fields, field)
}
