package cparse

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

var keywords = []string{
	"auto", "break", "case", "char", "const", "continue", "default", "do",
	"double", "else", "enum", "extern", "float", "for", "goto", "if", "inline",
	"int", "long", "register", "restrict", "return", "short", "signed", "sizeof",
	"static", "struct", "switch", "typedef", "union", "unsigned", "void",
	"volatile", "while", "_Bool", "bool", "_Thread_local",
}

// DefaultTypeNames are typedef names assumed without any header.
var DefaultTypeNames = []string{
	"size_t", "ssize_t", "ptrdiff_t", "intptr_t", "uintptr_t",
	"int8_t", "int16_t", "int32_t", "int64_t",
	"uint8_t", "uint16_t", "uint32_t", "uint64_t",
	"FILE", "pid_t",
}

// newLexer builds the C lexer. Names in typeNames lex as TypeName instead of
// Ident; this is what keeps declarations and casts unambiguous.
func newLexer(typeNames []string) *lexer.StatefulDefinition {
	names := slices.Clone(typeNames)
	// Longest first so a name is never shadowed by its own prefix.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	names = slices.Compact(names)
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		quoted = append(quoted, "__decant_no_type__")
	}

	return lexer.MustStateful(lexer.Rules{
		"Root": {
			{"Comment", `//[^\n]*|/\*([^*]|\*+[^*/])*\*+/`, nil},
			{"Directive", `#(\\\n|[^\n])*`, nil},
			{"String", `"(\\.|[^"\\\n])*"`, nil},
			{"Char", `'(\\.|[^'\\\n])+'`, nil},
			{"Float", `(\d+\.\d*|\.\d+)([eE][-+]?\d+)?[fFlL]?|\d+[eE][-+]?\d+[fFlL]?`, nil},
			{"Int", `0[xX][0-9a-fA-F]+[uUlL]*|\d+[uUlL]*`, nil},
			{"Keyword", `\b(` + strings.Join(keywords, "|") + `)\b`, nil},
			{"TypeName", `\b(` + strings.Join(quoted, "|") + `)\b`, nil},
			{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
			{"Operator", `\.\.\.|<<=|>>=|->|\+\+|--|<<|>>|<=|>=|==|!=|&&|\|\||\+=|-=|\*=|/=|%=|&=|\|=|\^=|[-+*/%=<>!~&|^?:.,;(){}\[\]]`, nil},
			{"Whitespace", `[ \t\r\n\f\v]+`, nil},
		},
	})
}

// scanTypedefs finds the names introduced by typedef declarations so the
// real parse can lex them as TypeName. It works on raw tokens and tolerates
// anything it does not understand.
func scanTypedefs(name, src string, known []string) ([]string, error) {
	def := newLexer(known)
	lex, err := def.LexString(name, src)
	if err != nil {
		return nil, err
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}
	syms := def.Symbols()
	skip := map[lexer.TokenType]bool{syms["Whitespace"]: true, syms["Comment"]: true, syms["Directive"]: true}
	ident, typeName := syms["Ident"], syms["TypeName"]

	var toks []lexer.Token
	for _, t := range tokens {
		if !skip[t.Type] && !t.EOF() {
			toks = append(toks, t)
		}
	}

	var found []string
	for i := 0; i < len(toks); i++ {
		if toks[i].Value != "typedef" {
			continue
		}
		braces, parens := 0, 0
		last, locked := "", false
		for j := i + 1; j < len(toks); j++ {
			t := toks[j]
			switch t.Value {
			case "{":
				braces++
			case "}":
				braces--
			case "(":
				parens++
			case ")":
				parens--
			}
			if braces != 0 {
				continue
			}
			if (t.Type == ident || t.Type == typeName) && !locked {
				switch {
				case parens == 0:
					last = t.Value
				case parens == 1 && toks[j-1].Value == "*":
					last, locked = t.Value, true
				}
			}
			if parens == 0 && (t.Value == "," || t.Value == ";") {
				if last != "" {
					found = append(found, last)
				}
				last, locked = "", false
				if t.Value == ";" {
					i = j
					break
				}
			}
		}
	}
	return found, nil
}
