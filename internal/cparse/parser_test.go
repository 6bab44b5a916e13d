package cparse_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decant/internal/cparse"
)

func TestParseFunctionDefinition(t *testing.T) {
	unit, err := cparse.Parse("add.c", `
#include <stdio.h>

int add(int a, int b) {
    return a + b * 2;
}
`)
	require.NoError(t, err)
	require.Len(t, unit.Externals, 2)

	assert.NotNil(t, unit.Externals[0].Directive)
	assert.Equal(t, "#include <stdio.h>", *unit.Externals[0].Directive)

	decl := unit.Externals[1].Decl
	require.NotNil(t, decl)
	require.NotNil(t, decl.Body)
	require.Len(t, decl.Inits, 1)
	assert.Equal(t, "add", *decl.Inits[0].Decl.Name)

	params := decl.Inits[0].Decl.Suffixes[0].Params
	require.NotNil(t, params)
	assert.Len(t, params.Params, 2)

	ret := decl.Body.Items[0].Return
	require.NotNil(t, ret)
	bin := ret.Value.Items[0].Left.Cond
	assert.Len(t, bin.Ops, 2)
	assert.Equal(t, "+", bin.Ops[0].Op)
	assert.Equal(t, "*", bin.Ops[1].Op)
}

func TestParseTypedefStruct(t *testing.T) {
	unit, err := cparse.Parse("list.c", `
typedef struct node {
    int value;
    struct node *next;
} Node;

Node *push(Node *head, int v);
`)
	require.NoError(t, err)
	require.Len(t, unit.Externals, 2)

	td := unit.Externals[0].Decl
	assert.True(t, td.Typedef)
	require.NotNil(t, td.Specs.Struct)
	assert.Equal(t, "node", *td.Specs.Struct.Name)
	assert.Len(t, td.Specs.Struct.Fields, 2)
	// The declared name lexes as a type name and lands in the specifiers.
	require.NotNil(t, td.Specs.TypeName)
	assert.Equal(t, "Node", *td.Specs.TypeName)

	proto := unit.Externals[1].Decl
	assert.True(t, proto.Semi)
	require.NotNil(t, proto.Specs.TypeName)
	assert.Equal(t, "Node", *proto.Specs.TypeName)
	assert.Len(t, proto.Inits[0].Decl.Pointers, 1)
}

func TestParseCastAndParenExpr(t *testing.T) {
	unit, err := cparse.Parse("cast.c", `
void f(int x, int y) {
    int *p = (int *)malloc(sizeof(int) * 4);
    int z = (x) - y;
}
`)
	require.NoError(t, err)
	body := unit.Externals[0].Decl.Body
	require.Len(t, body.Items, 2)

	init := body.Items[0].Decl.Inits[0].Init.Expr.Left.Cond.Left
	require.NotNil(t, init.Cast)
	assert.Equal(t, []string{"int"}, init.Cast.Type.Specs.Prims)

	z := body.Items[1].Decl.Inits[0].Init.Expr.Left.Cond
	assert.Nil(t, z.Left.Cast)
	require.Len(t, z.Ops, 1)
	assert.Equal(t, "-", z.Ops[0].Op)
}

func TestParseControlFlow(t *testing.T) {
	unit, err := cparse.Parse("flow.c", `
int classify(int n) {
    int i, total = 0;
    for (i = 0; i < n; i++) {
        if (i % 2 == 0) continue; else total += i;
    }
    switch (total) {
    case 0:
    case 1:
        return 0;
    default:
        break;
    }
    do { total--; } while (total > 10);
    return total > 5 ? 1 : 2;
}
`)
	require.NoError(t, err)
	items := unit.Externals[0].Decl.Body.Items
	require.Len(t, items, 5)
	assert.NotNil(t, items[1].For)
	assert.NotNil(t, items[2].Switch)
	assert.NotNil(t, items[3].Do)
	assert.NotNil(t, items[4].Return.Value.Items[0].Left.Then)
}

func TestParseFunctionPointerTypedef(t *testing.T) {
	unit, err := cparse.Parse("cmp.c", `
typedef int (*cmp_fn)(const void *a, const void *b);
void sort(void *base, int n, cmp_fn cmp);
`)
	require.NoError(t, err)
	require.Len(t, unit.Externals, 2)
	sort := unit.Externals[1].Decl.Inits[0].Decl.Suffixes[0].Params
	require.Len(t, sort.Params, 3)
	require.NotNil(t, sort.Params[2].Specs.TypeName)
	assert.Equal(t, "cmp_fn", *sort.Params[2].Specs.TypeName)
}

func TestParseParamForms(t *testing.T) {
	unit, err := cparse.Parse("params.c", `
int main(void) { return 0; }
void sink(int *, const char *name, int (*)(int));
`)
	require.NoError(t, err)
	require.Len(t, unit.Externals, 2)

	mainParams := unit.Externals[0].Decl.Inits[0].Decl.Suffixes[0].Params
	require.Len(t, mainParams.Params, 1)
	assert.Nil(t, mainParams.Params[0].Decl)
	assert.Equal(t, []string{"void"}, mainParams.Params[0].Specs.Prims)

	params := unit.Externals[1].Decl.Inits[0].Decl.Suffixes[0].Params.Params
	require.Len(t, params, 3)
	assert.Nil(t, params[0].Decl)
	require.NotNil(t, params[0].Abstract)
	assert.Len(t, params[0].Abstract.Pointers, 1)
	require.NotNil(t, params[1].Decl)
	assert.Equal(t, "name", *params[1].Decl.Name)
	require.NotNil(t, params[2].Abstract)
	assert.NotNil(t, params[2].Abstract.Nested)
}

func TestParseErrorHasPosition(t *testing.T) {
	src := "int main(void) {\n    return 1 +;\n}\n"
	_, err := cparse.Parse("bad.c", src)
	require.Error(t, err)

	var pe *cparse.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)

	var buf bytes.Buffer
	cparse.Report(&buf, src, err)
	assert.Contains(t, buf.String(), "return 1 +;")
	assert.Contains(t, buf.String(), "^")
}
