package codegen

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Casers are stateful, so each call builds its own.
func titleCase(s string) string { return cases.Title(language.Und, cases.NoLower).String(s) }
func upperCase(s string) string { return cases.Upper(language.Und).String(s) }
func lowerCase(s string) string { return cases.Lower(language.Und).String(s) }

// rawKeywords are Rust keywords usable through the r# prefix.
var rawKeywords = map[string]bool{
	"as": true, "async": true, "await": true, "box": true, "break": true, "const": true,
	"continue": true, "dyn": true, "else": true, "enum": true, "extern": true, "false": true,
	"fn": true, "for": true, "if": true, "impl": true, "in": true, "let": true, "loop": true,
	"match": true, "mod": true, "move": true, "mut": true, "priv": true, "pub": true,
	"ref": true, "return": true, "static": true, "struct": true, "trait": true, "true": true,
	"try": true, "type": true, "typeof": true, "unsafe": true, "use": true, "where": true,
	"while": true, "yield": true, "abstract": true, "become": true, "final": true,
	"macro": true, "override": true, "unsized": true, "virtual": true, "do": true, "gen": true,
}

// reserved identifiers cannot be raw.
var reserved = map[string]bool{"self": true, "Self": true, "super": true, "crate": true, "_": true}

// ident returns a Rust-safe identifier for a C name.
func ident(name string) string {
	switch {
	case reserved[name]:
		return name + "_"
	case rawKeywords[name]:
		return "r#" + name
	}
	return name
}

// camel turns `linked_list` and `LIST_NODE` into `LinkedList` and
// `ListNode`. Names without underscores keep their inner capitals.
func camel(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return "T"
	}
	var b strings.Builder
	for _, p := range parts {
		if strings.ToUpper(p) == p {
			p = lowerCase(p)
		}
		b.WriteString(titleCase(p))
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "T" + out
	}
	return out
}

// upperSnake renders a static or const name.
func upperSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := name[i-1]
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	out := upperCase(b.String())
	if reserved[out] || rawKeywords[out] {
		out += "_"
	}
	return out
}

// variantNames strips the prefix shared by every enumerator, so
// `COLOR_RED, COLOR_GREEN` become `Red, Green`.
func variantNames(names []string) []string {
	prefix := ""
	if len(names) > 1 {
		prefix = names[0]
		for _, n := range names[1:] {
			for !strings.HasPrefix(n, prefix) {
				prefix = prefix[:len(prefix)-1]
			}
		}
		if i := strings.LastIndexByte(prefix, '_'); i >= 0 {
			prefix = prefix[:i+1]
		} else {
			prefix = ""
		}
	}
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		v := camel(strings.TrimPrefix(n, prefix))
		if seen[v] {
			v = camel(n)
		}
		seen[v] = true
		out[i] = v
	}
	return out
}
