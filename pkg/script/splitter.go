package script

import (
	"strings"

	"github.com/pseudomuto/stagekeeper/pkg/consts"
)

type (
	// Statement is a single executable unit extracted from a script.
	//
	// Delimiter records the terminator that was active when the statement was
	// captured. It is only meaningful for diagnostics; executors send SQL as is.
	Statement struct {
		SQL       string
		Delimiter string
	}

	// Options controls how a script is split.
	Options struct {
		// QuoteAware makes boundary detection ignore delimiters that appear inside
		// string literals, quoted identifiers and comments.
		QuoteAware bool
	}

	// boundaries abstracts delimiter detection so the line scanner can run in
	// either textual or quote-aware mode.
	boundaries interface {
		// terminated reports whether the buffered block ends with delim.
		terminated(block, delim string) bool

		// explode splits a completed block into its delimiter-separated parts.
		explode(block, delim string) []string
	}

	textual struct{}
)

// Split breaks script text into ordered statements, honoring DELIMITER
// directives.
//
// The scan is line based. A line whose trimmed form starts with the DELIMITER
// keyword switches the active terminator for every following line and is not
// itself part of any statement. Any other line is buffered, and the buffer is
// emitted once a line ends with the active terminator. Content left at the
// end of input is emitted even without a terminator.
//
// Split is purely textual: a delimiter inside a quoted literal still ends a
// statement. Use SplitWithOptions with QuoteAware set when scripts contain
// such literals.
//
// Example:
//
//	stmts := script.Split(`
//	CREATE TABLE t (id INT);
//	DELIMITER $$
//	CREATE PROCEDURE p() BEGIN SELECT 1; SELECT 2; END $$
//	DELIMITER ;
//	CALL p();
//	`)
//
//	for _, s := range stmts {
//		fmt.Println(s.SQL) // 3 statements, the procedure body intact
//	}
func Split(text string) []Statement {
	return split(text, textual{})
}

// SplitWithOptions is Split with configurable boundary detection.
func SplitWithOptions(text string, opts Options) []Statement {
	if opts.QuoteAware {
		return split(text, newQuoteAware())
	}

	return split(text, textual{})
}

func split(text string, b boundaries) []Statement {
	var (
		statements []Statement
		buf        strings.Builder
		delim      = consts.DefaultDelimiter
	)

	flush := func(d string) {
		block := buf.String()
		buf.Reset()

		if strings.TrimSpace(block) == "" {
			return
		}

		for _, part := range b.explode(block, d) {
			part = strings.TrimSpace(part)
			if part == "" || isDirective(part) {
				continue
			}

			statements = append(statements, Statement{SQL: part, Delimiter: d})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)

		if isDirective(trimmed) {
			flush(delim)
			delim = directiveDelimiter(trimmed, delim)
			continue
		}

		buf.WriteString(line)
		buf.WriteString("\n")

		if trimmed != "" && b.terminated(buf.String(), delim) {
			flush(delim)
		}
	}

	flush(delim)
	return statements
}

// isDirective reports whether s starts with the DELIMITER keyword as a whole word.
func isDirective(s string) bool {
	kw := consts.DelimiterKeyword
	if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}

	if len(s) == len(kw) {
		return true
	}

	switch s[len(kw)] {
	case ' ', '\t':
		return true
	default:
		return false
	}
}

// directiveDelimiter returns the last token of a directive line. A bare
// keyword keeps the current delimiter.
func directiveDelimiter(line, current string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return current
	}

	return fields[len(fields)-1]
}

func (textual) terminated(block, delim string) bool {
	return strings.HasSuffix(strings.TrimSpace(block), delim)
}

func (textual) explode(block, delim string) []string {
	return strings.Split(block, delim)
}
