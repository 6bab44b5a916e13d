package codegen

import (
	"regexp"
	"strings"
)

// Rendered expressions carry their Rust type as text. These helpers take
// such types apart.

var (
	lifetimeRe     = regexp.MustCompile(`'[a-z_][a-z0-9_]* ?`)
	lifetimeListRe = regexp.MustCompile(`<'[^<>]*>`)
)

// stripLifetimes removes annotations: `&'a mut Node<'a, 'b>` → `&mut Node`.
func stripLifetimes(t string) string {
	t = lifetimeListRe.ReplaceAllString(t, "")
	return lifetimeRe.ReplaceAllString(t, "")
}

func isOption(t string) bool { return strings.HasPrefix(t, "Option<") }
func isBox(t string) bool    { return strings.HasPrefix(t, "Box<") }
func isVec(t string) bool    { return strings.HasPrefix(t, "Vec<") }
func isRaw(t string) bool    { return strings.HasPrefix(t, "*mut ") || strings.HasPrefix(t, "*const ") }
func isRefTy(t string) bool  { return strings.HasPrefix(t, "&") }
func isMutRef(t string) bool { return strings.HasPrefix(t, "&mut ") }
func isArrayTy(t string) bool {
	return strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") && strings.Contains(t, "; ")
}

// isSliceRef matches `&[T]` and `&mut [T]`.
func isSliceRef(t string) bool {
	return strings.HasPrefix(deref(t), "[") && isRefTy(t) && !isArrayTy(deref(t))
}

// inner returns the argument of a one-parameter wrapper.
func inner(t string) string {
	i := strings.IndexByte(t, '<')
	if i < 0 || !strings.HasSuffix(t, ">") {
		return t
	}
	return t[i+1 : len(t)-1]
}

// deref returns the referent of a reference or raw pointer.
func deref(t string) string {
	switch {
	case strings.HasPrefix(t, "&mut "):
		return t[5:]
	case strings.HasPrefix(t, "&"):
		return t[1:]
	case strings.HasPrefix(t, "*mut "):
		return t[5:]
	case strings.HasPrefix(t, "*const "):
		return t[7:]
	}
	return t
}

// pointee is the value a pointer-like type designates.
func pointee(t string) string {
	switch {
	case isOption(t):
		return pointee(inner(t))
	case isBox(t):
		return inner(t)
	case isRefTy(t), isRaw(t):
		return deref(t)
	}
	return t
}

// element is the item type of an indexable type.
func element(t string) string {
	switch {
	case t == "&str" || t == "String":
		return "u8"
	case isVec(t):
		return inner(t)
	case isRefTy(t) || isRaw(t):
		return element(deref(t))
	case isArrayTy(t):
		return t[1:strings.LastIndex(t, "; ")]
	case strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]"):
		return t[1 : len(t)-1]
	}
	return t
}

// copyable approximates Copy for rendered types.
func copyable(t string) bool {
	switch {
	case isNumeric(t), t == "bool", t == "()", t == "&str", isRaw(t):
		return true
	case isRefTy(t) && !isMutRef(t):
		return true
	case strings.HasPrefix(t, "fn("), strings.HasPrefix(t, "Option<fn("):
		return true
	}
	return false
}
