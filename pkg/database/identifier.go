package database

import "strings"

// QuoteIdentifier wraps each dot separated part of name in quote. Parts that
// are already quoted are left alone, so both `mart.daily` and
// "mart"."daily" come out the same.
//
// Examples (quote = '`'):
//   - "daily" -> "`daily`"
//   - "mart.daily" -> "`mart`.`daily`"
//   - "`mart`.daily" -> "`mart`.`daily`"
//   - "`odd.name`" -> "`odd.name`"
//   - "" -> ""
func QuoteIdentifier(name string, quote byte) string {
	if name == "" {
		return ""
	}

	// a single quoted identifier may contain dots
	if isQuoted(name, quote) {
		return name
	}

	q := string(quote)
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if isQuoted(part, quote) {
			continue
		}

		parts[i] = q + strings.ReplaceAll(part, q, q+q) + q
	}

	return strings.Join(parts, ".")
}

func isQuoted(s string, quote byte) bool {
	return len(s) >= 2 &&
		s[0] == quote &&
		s[len(s)-1] == quote &&
		!strings.Contains(s[1:len(s)-1], string(quote))
}
