package cparse

import "github.com/alecthomas/participle/v2/lexer"

// Unit is one parsed C file.
type Unit struct {
	Pos       lexer.Position
	Externals []*External `@@*`
}

type External struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Directive *string      `  @Directive`
	Decl      *Declaration `| @@`
}

// Declaration covers typedefs, prototypes, globals and function definitions.
// Exactly one of Body or Semi is set.
type Declaration struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Typedef bool              `@"typedef"?`
	Specs   *DeclSpecs        `@@`
	Inits   []*InitDeclarator `( @@ ( "," @@ )* )?`
	Body    *Compound         `( @@`
	Semi    bool              `| @";" )`
}

// DeclSpecs is the unordered specifier list in front of a declarator.
type DeclSpecs struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Storage  []string    `( @("static" | "extern" | "inline" | "register" | "auto" | "_Thread_local")`
	Quals    []string    `| @("const" | "volatile" | "restrict")`
	Prims    []string    `| @("void" | "char" | "short" | "int" | "long" | "float" | "double" | "signed" | "unsigned" | "_Bool" | "bool")`
	Struct   *StructSpec `| @@`
	Enum     *EnumSpec   `| @@`
	TypeName *string     `| @TypeName )+`
}

type StructSpec struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Kind   string        `@("struct" | "union")`
	Name   *string       `( @Ident | @TypeName )?`
	Body   bool          `( @"{"`
	Fields []*FieldGroup `  @@* "}" )?`
}

// FieldGroup is `int a, *b;` inside a struct body.
type FieldGroup struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Specs  *DeclSpecs   `@@`
	Decls  []*FieldDecl `( @@ ( "," @@ )* )? ";"`
}

type FieldDecl struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Decl     *Declarator  `@@`
	BitWidth *Conditional `( ":" @@ )?`
}

type EnumSpec struct {
	Pos         lexer.Position
	EndPos      lexer.Position
	Name        *string       `"enum" ( @Ident | @TypeName )?`
	Body        bool          `( @"{"`
	Enumerators []*Enumerator `  ( @@ ( "," @@ )* ","? )? "}" )?`
}

type Enumerator struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string       `@Ident`
	Value  *Conditional `( "=" @@ )?`
}

type InitDeclarator struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Decl   *Declarator  `@@`
	Init   *Initializer `( "=" @@ )?`
}

// Declarator is a named C declarator. Suffixes bind tighter than pointers,
// so `*a[3]` is an array of pointers and `(*f)(int)` is a pointer to function.
type Declarator struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Pointers []*PointerQual `@@*`
	Name     *string        `( ( @Ident | @TypeName )`
	Nested   *Declarator    `| "(" @@ ")" )`
	Suffixes []*DeclSuffix  `@@*`
}

// AbstractDeclarator is a declarator without a name (`int *`, `void (*)(int)`).
// It may match nothing, so it is only ever used behind `@@?`.
type AbstractDeclarator struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Pointers []*PointerQual      `@@*`
	Nested   *AbstractDeclarator `( "(" @@ ")" )?`
	Suffixes []*DeclSuffix       `@@*`
}

type PointerQual struct {
	Star  string   `@"*"`
	Quals []string `@("const" | "volatile" | "restrict")*`
}

type DeclSuffix struct {
	Pos    lexer.Position
	Array  *ArraySuffix `  @@`
	Params *ParamList   `| @@`
}

type ArraySuffix struct {
	Open string       `@"["`
	Size *Conditional `@@? "]"`
}

type ParamList struct {
	Open     string   `@"("`
	Params   []*Param `( @@ ( "," @@ )*`
	Variadic bool     `  ( "," @"..." )? )? ")"`
}

type Param struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Specs    *DeclSpecs          `@@`
	Decl     *Declarator         `@@?`
	Abstract *AbstractDeclarator `@@?`
}

// TypeName is a type in a cast, sizeof or compound literal.
type TypeName struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Specs  *DeclSpecs          `@@`
	Decl   *AbstractDeclarator `@@?`
}

type Initializer struct {
	Pos    lexer.Position
	EndPos lexer.Position
	List   *InitList   `  @@`
	Expr   *Assignment `| @@`
}

type InitList struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Open   string      `@"{"`
	Items  []*InitItem `( @@ ( "," @@ )* ","? )? "}"`
}

type InitItem struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Field  *string      `( "." @Ident "="`
	Index  *Conditional `| "[" @@ "]" "=" )?`
	Value  *Initializer `@@`
}

type Compound struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Items  []*Statement `"{" @@* "}"`
}

type Statement struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Compound  *Compound    `  @@`
	If        *IfStmt      `| @@`
	While     *WhileStmt   `| @@`
	Do        *DoStmt      `| @@`
	For       *ForStmt     `| @@`
	Switch    *SwitchStmt  `| @@`
	Case      *CaseLabel   `| @@`
	Return    *ReturnStmt  `| @@`
	Break     bool         `| @"break" ";"`
	Continue  bool         `| @"continue" ";"`
	Goto      *string      `| "goto" @Ident ";"`
	Label     *string      `| @Ident ":"`
	Directive *string      `| @Directive`
	Decl      *Declaration `| @@`
	Empty     bool         `| @";"`
	Expr      *Expr        `| @@ ";"`
}

type IfStmt struct {
	Cond *Expr      `"if" "(" @@ ")"`
	Then *Statement `@@`
	Else *Statement `( "else" @@ )?`
}

type WhileStmt struct {
	Cond *Expr      `"while" "(" @@ ")"`
	Body *Statement `@@`
}

type DoStmt struct {
	Body *Statement `"do" @@`
	Cond *Expr      `"while" "(" @@ ")" ";"`
}

type ForStmt struct {
	InitDecl *Declaration `"for" "(" ( @@`
	InitExpr *Expr        `| @@? ";" )`
	Cond     *Expr        `@@? ";"`
	Post     *Expr        `@@? ")"`
	Body     *Statement   `@@`
}

type SwitchStmt struct {
	Cond *Expr      `"switch" "(" @@ ")"`
	Body *Statement `@@`
}

type CaseLabel struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Value   *Conditional `(  "case" @@ ":"`
	Default bool         `| @"default" ":" )`
}

type ReturnStmt struct {
	Keyword string `@"return"`
	Value   *Expr  `@@? ";"`
}

// Expr is a comma expression.
type Expr struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Items  []*Assignment `@@ ( "," @@ )*`
}

type Assignment struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *Conditional `@@`
	Op     string       `( @("=" | "+=" | "-=" | "*=" | "/=" | "%=" | "<<=" | ">>=" | "&=" | "|=" | "^=")`
	Right  *Assignment  `  @@ )?`
}

type Conditional struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *Binary      `@@`
	Then   *Expr        `( "?" @@`
	Else   *Conditional `  ":" @@ )?`
}

// Binary is a flat operator chain; the bridge applies precedence.
type Binary struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *Unary   `@@`
	Ops    []*BinOp `@@*`
}

type BinOp struct {
	Pos   lexer.Position
	Op    string `@("||" | "&&" | "|" | "^" | "&" | "==" | "!=" | "<=" | ">=" | "<" | ">" | "<<" | ">>" | "+" | "-" | "*" | "/" | "%")`
	Right *Unary `@@`
}

type Unary struct {
	Pos        lexer.Position
	EndPos     lexer.Position
	PreOp      *string   `(  @("++" | "--" | "-" | "+" | "!" | "~" | "*" | "&")`
	Operand    *Unary    `   @@`
	SizeofType *TypeName `| "sizeof" "(" @@ ")"`
	SizeofExpr *Unary    `| "sizeof" @@`
	Cast       *Cast     `| @@`
	Postfix    *Postfix  `| @@ )`
}

// Cast is `(T) x` or the compound literal `(T){...}`.
type Cast struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Type   *TypeName `"(" @@ ")"`
	List   *InitList `( @@`
	Value  *Unary    `| @@ )`
}

type Postfix struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Primary *Primary     `@@`
	Ops     []*PostfixOp `@@*`
}

type PostfixOp struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Index  *Expr     `  "[" @@ "]"`
	Call   *CallArgs `| @@`
	Field  *string   `| "." ( @Ident | @TypeName )`
	Arrow  *string   `| "->" ( @Ident | @TypeName )`
	IncDec *string   `| @("++" | "--")`
}

type CallArgs struct {
	Open string        `@"("`
	Args []*Assignment `( @@ ( "," @@ )* )? ")"`
}

type Primary struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Float   *string  `  @Float`
	Int     *string  `| @Int`
	Char    *string  `| @Char`
	Strings []string `| @String+`
	Ident   *string  `| @Ident`
	Paren   *Expr    `| "(" @@ ")"`
}
