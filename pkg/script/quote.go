package script

import (
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// quoteAware finds delimiters with a lexer that understands SQL literals and
// comments. A lexer is compiled per delimiter since the terminator is part of
// the token set.
type quoteAware struct {
	lexers map[string]*scriptLexer
}

type scriptLexer struct {
	def   *lexer.StatefulDefinition
	delim lexer.TokenType
	open  map[lexer.TokenType]bool
	skip  map[lexer.TokenType]bool
}

func newQuoteAware() *quoteAware {
	return &quoteAware{lexers: make(map[string]*scriptLexer)}
}

func (q *quoteAware) lexerFor(delim string) *scriptLexer {
	if l, ok := q.lexers[delim]; ok {
		return l
	}

	def := lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `--[^\r\n]*`},
		{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
		{Name: "String", Pattern: `'([^'\\]|\\.|'')*'`},
		{Name: "DQString", Pattern: `"([^"\\]|\\.|"")*"`},
		{Name: "BacktickIdent", Pattern: "`[^`]*`"},
		{Name: "OpenComment", Pattern: `/\*(?s:.*)\z`},
		{Name: "OpenString", Pattern: `(?s:'.*)\z`},
		{Name: "OpenDQString", Pattern: `(?s:".*)\z`},
		{Name: "OpenBacktick", Pattern: "(?s:`.*)\\z"},
		{Name: "Delim", Pattern: regexp.QuoteMeta(delim)},
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Other", Pattern: `(?s:.)`},
	})

	sym := def.Symbols()
	l := &scriptLexer{
		def:   def,
		delim: sym["Delim"],
		open: map[lexer.TokenType]bool{
			sym["OpenComment"]:  true,
			sym["OpenString"]:   true,
			sym["OpenDQString"]: true,
			sym["OpenBacktick"]: true,
		},
		skip: map[lexer.TokenType]bool{
			sym["Whitespace"]:       true,
			sym["Comment"]:          true,
			sym["MultilineComment"]: true,
			lexer.EOF:               true,
		},
	}

	q.lexers[delim] = l
	return l
}

func (q *quoteAware) tokens(block, delim string) (*scriptLexer, []lexer.Token) {
	l := q.lexerFor(delim)

	lex, err := l.def.LexString("", block)
	if err != nil {
		return l, nil
	}

	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return l, nil
	}

	return l, tokens
}

// terminated is true when the last significant token is the delimiter. A
// trailing comment is ignored, so `SELECT 1; -- done` still ends a
// statement. An unterminated literal or block comment never ends one.
func (q *quoteAware) terminated(block, delim string) bool {
	l, tokens := q.tokens(block, delim)

	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		switch {
		case l.skip[tok.Type]:
			continue
		case l.open[tok.Type]:
			return false
		default:
			return tok.Type == l.delim
		}
	}

	return false
}

func (q *quoteAware) explode(block, delim string) []string {
	l, tokens := q.tokens(block, delim)
	if tokens == nil {
		return []string{block}
	}

	var (
		parts       []string
		cur         strings.Builder
		significant bool
	)

	// comment-only parts are dropped, they'd be empty queries on most servers
	emit := func() {
		if significant {
			parts = append(parts, cur.String())
		}
		cur.Reset()
		significant = false
	}

	for _, tok := range tokens {
		if tok.Type == lexer.EOF {
			break
		}

		if tok.Type == l.delim {
			emit()
			continue
		}

		if !l.skip[tok.Type] {
			significant = true
		}
		cur.WriteString(tok.Value)
	}

	emit()
	return parts
}
