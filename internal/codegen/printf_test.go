package codegen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	pieces, err := parseFormat("a=%-5d b=%.2f%%\n")
	require.NoError(t, err)
	require.Len(t, pieces, 5)
	assert.Equal(t, "a=", pieces[0].text)
	assert.Equal(t, &convSpec{flags: "-", width: 5, precision: -1, verb: 'd'}, pieces[1].conv)
	assert.Equal(t, " b=", pieces[2].text)
	assert.Equal(t, &convSpec{width: -1, precision: 2, verb: 'f'}, pieces[3].conv)
	assert.Equal(t, "%\n", pieces[4].text)
}

func TestParseFormatRejects(t *testing.T) {
	for _, f := range []string{"%n", "100%", "%l"} {
		_, err := parseFormat(f)
		assert.True(t, errors.Is(err, errUnsupportedFormat), f)
	}
}

func TestConvSpec(t *testing.T) {
	tests := []struct {
		format string
		want   string
		arg    string
	}{
		{"%d", "{}", "i32"},
		{"%ld", "{}", "i64"},
		{"%u", "{}", "u32"},
		{"%zu", "{}", "usize"},
		{"%5d", "{:5}", "i32"},
		{"%-5d", "{:<5}", "i32"},
		{"%05d", "{:05}", "i32"},
		{"%+d", "{:+}", "i32"},
		{"%x", "{:x}", "u32"},
		{"%#X", "{:#X}", "u32"},
		{"%08lx", "{:08x}", "u64"},
		{"%f", "{:.6}", "f64"},
		{"%.2f", "{:.2}", "f64"},
		{"%8.3f", "{:8.3}", "f64"},
		{"%e", "{:.6e}", "f64"},
		{"%g", "{}", "f64"},
		{"%s", "{}", "&str"},
		{"%10s", "{:>10}", "&str"},
		{"%-10s", "{:<10}", "&str"},
		{"%.3s", "{:.3}", "&str"},
		{"%c", "{}", "u8"},
		{"%p", "{:p}", ""},
	}
	for _, tt := range tests {
		pieces, err := parseFormat(tt.format)
		require.NoError(t, err, tt.format)
		require.Len(t, pieces, 1, tt.format)
		cs := pieces[0].conv
		assert.Equal(t, tt.want, cs.spec(-1, -1, -1), tt.format)
		assert.Equal(t, tt.arg, cs.argType(), tt.format)
	}
}

func TestConvSpecFromArguments(t *testing.T) {
	pieces, err := parseFormat("%*.*f")
	require.NoError(t, err)
	assert.Equal(t, "{2:0$.1$}", pieces[0].conv.spec(2, 0, 1))
}

func TestPrintMacro(t *testing.T) {
	assert.Equal(t, `println!("x={}", x);`, printMacro(false, "x={}\n", []string{"x"}))
	assert.Equal(t, `eprint!("partial");`, printMacro(true, "partial", nil))
	assert.Equal(t, `println!();`, printMacro(false, "\n", nil))
	assert.Equal(t, "{{}}", escapeBraces("{}"))
}

func TestStripLifetimes(t *testing.T) {
	assert.Equal(t, "&mut Node", stripLifetimes("&'a mut Node<'a, 'b>"))
	assert.Equal(t, "Option<&str>", stripLifetimes("Option<&'a str>"))
	assert.Equal(t, "Holder", stripLifetimes("Holder<'_>"))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "LinkedList", camel("linked_list"))
	assert.Equal(t, "ListNode", camel("LIST_NODE"))
	assert.Equal(t, "r#type", ident("type"))
	assert.Equal(t, "self_", ident("self"))
	assert.Equal(t, []string{"Red", "Green"}, variantNames([]string{"COLOR_RED", "COLOR_GREEN"}))
}
