// Package cparse parses a practical subset of C into a syntax tree.
//
// The grammar is built with participle. Typedef names are discovered by a
// token pre-scan and lexed as TypeName, so the grammar never has to guess
// whether `(x) - y` is a cast.
package cparse

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
)

const lookahead = 16

type options struct {
	typeNames []string
}

// Option configures Parse.
type Option func(*options)

// WithTypeNames adds typedef names declared outside the file (in headers).
func WithTypeNames(names ...string) Option {
	return func(o *options) {
		o.typeNames = append(o.typeNames, names...)
	}
}

// Error is a syntax error with its location.
type Error struct {
	Path   string
	Line   int
	Column int
	Offset int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Msg)
}

// Parse parses src. The returned error, if any, is an *Error.
func Parse(name, src string, opts ...Option) (*Unit, error) {
	o := options{typeNames: slices.Clone(DefaultTypeNames)}
	for _, opt := range opts {
		opt(&o)
	}

	found, err := scanTypedefs(name, src, o.typeNames)
	if err != nil {
		return nil, wrapError(name, err)
	}
	names := append(o.typeNames, found...)

	parser, err := participle.Build[Unit](
		participle.Lexer(newLexer(names)),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(lookahead),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}

	unit, err := parseString(parser, name, src)
	if err != nil {
		return nil, wrapError(name, err)
	}
	return unit, nil
}

// parseString reports a panic raised inside participle (a grammar branch
// that made no progress) as an error at the start of the file.
func parseString(p *participle.Parser[Unit], name, src string) (unit *Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			unit, err = nil, fmt.Errorf("parser fault: %v", r)
		}
	}()
	return p.ParseString(name, src)
}

func wrapError(name string, err error) error {
	var pe participle.Error
	if errors.As(err, &pe) {
		pos := pe.Position()
		path := pos.Filename
		if path == "" {
			path = name
		}
		return &Error{Path: path, Line: pos.Line, Column: pos.Column, Offset: pos.Offset, Msg: pe.Message()}
	}
	return &Error{Path: name, Line: 1, Column: 1, Msg: err.Error()}
}

// Report prints err with the offending source line and a caret.
func Report(w io.Writer, src string, err error) {
	var pe *Error
	if !errors.As(err, &pe) {
		color.New(color.FgRed).Fprintf(w, "error: %s\n", err)
		return
	}
	lines := strings.Split(src, "\n")
	if pe.Line <= 0 || pe.Line > len(lines) {
		color.New(color.FgRed).Fprintf(w, "syntax error in %s: %s\n", pe.Path, pe.Msg)
		return
	}
	line := lines[pe.Line-1]
	caret := strings.Repeat(" ", max(pe.Column-1, 0)) + "^"

	color.New(color.FgRed, color.Bold).Fprintf(w, "syntax error in %s at line %d, column %d:\n", pe.Path, pe.Line, pe.Column)
	fmt.Fprintln(w, line)
	color.New(color.FgHiRed).Fprintln(w, caret)
	fmt.Fprintf(w, "-> %s\n", pe.Msg)
}
