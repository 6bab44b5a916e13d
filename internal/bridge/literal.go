package bridge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"decant/internal/hir"
)

var errBadEscape = errors.New("bad escape sequence")

func intLiteral(s string) (*hir.Expr, error) {
	digits := strings.TrimRight(s, "uUlL")
	suffix := strings.ToLower(s[len(digits):])
	base := 10
	switch {
	case strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X"):
		base, digits = 16, digits[2:]
	case strings.HasPrefix(digits, "0b") || strings.HasPrefix(digits, "0B"):
		base, digits = 2, digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base, digits = 8, digits[1:]
	}
	u, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return nil, fmt.Errorf("integer literal %q: %w", s, err)
	}

	t := &hir.Type{Kind: hir.TInt, Unsigned: strings.Contains(suffix, "u")}
	switch {
	case strings.Count(suffix, "l") >= 2:
		t.Kind = hir.TLongLong
	case strings.Contains(suffix, "l") || u > math.MaxInt32:
		t.Kind = hir.TLong
	}
	v := int64(u) //nolint:gosec // wraps like C for values above MaxInt64
	if u > math.MaxInt64 {
		t.Unsigned = true
	}
	return &hir.Expr{Kind: hir.ExprLiteral, Type: t, Data: hir.LiteralData{Kind: hir.LitInt, Int: v, Text: s}}, nil
}

func floatLiteral(s string) (*hir.Expr, error) {
	t := hir.Double
	body := s
	switch strings.ToLower(s[len(s)-1:]) {
	case "f":
		t, body = hir.Float, s[:len(s)-1]
	case "l":
		body = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return nil, fmt.Errorf("float literal %q: %w", s, err)
	}
	return &hir.Expr{Kind: hir.ExprLiteral, Type: t, Data: hir.LiteralData{Kind: hir.LitFloat, Float: f, Text: s}}, nil
}

func charLiteral(s string) (*hir.Expr, error) {
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return nil, fmt.Errorf("char literal %s: %w", s, errBadEscape)
	}
	decoded, err := unescape(s[1 : len(s)-1])
	if err != nil {
		return nil, fmt.Errorf("char literal %s: %w", s, err)
	}
	if len(decoded) != 1 {
		return nil, fmt.Errorf("multi-character literal %s is not supported", s)
	}
	return &hir.Expr{
		Kind: hir.ExprLiteral,
		Type: hir.Char,
		Data: hir.LiteralData{Kind: hir.LitChar, Int: int64(decoded[0]), Text: s},
	}, nil
}

// unquote decodes one or more adjacent C string literals.
func unquote(s string) (string, error) {
	var sb strings.Builder
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		if s[0] != '"' {
			return "", fmt.Errorf("string literal %s: %w", s, errBadEscape)
		}
		end := 1
		for end < len(s) && s[end] != '"' {
			if s[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(s) {
			return "", fmt.Errorf("unterminated string literal %s", s)
		}
		part, err := unescape(s[1:end])
		if err != nil {
			return "", err
		}
		sb.WriteString(part)
		s = s[end+1:]
	}
	return sb.String(), nil
}

// unescape handles C escapes, including octal escapes of one to three
// digits that strconv does not accept.
func unescape(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errBadEscape
		}
		switch c = s[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '\\', '\'', '"', '?':
			sb.WriteByte(c)
		case 'x':
			j := i + 1
			for j < len(s) && isHex(s[j]) {
				j++
			}
			if j == i+1 {
				return "", errBadEscape
			}
			v, err := strconv.ParseUint(s[i+1:j], 16, 64)
			if err != nil {
				return "", errBadEscape
			}
			b, err := safecast.Conv[byte](v)
			if err != nil {
				return "", fmt.Errorf("hex escape out of range: %w", err)
			}
			sb.WriteByte(b)
			i = j - 1
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 16)
			b, err := safecast.Conv[byte](v)
			if err != nil {
				return "", fmt.Errorf("octal escape out of range: %w", err)
			}
			sb.WriteByte(b)
			i = j - 1
		default:
			return "", fmt.Errorf("\\%c: %w", c, errBadEscape)
		}
	}
	return sb.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
