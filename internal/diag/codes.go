package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// parse
	ParSyntax    Code = 1001
	ParDirective Code = 1002

	// construction
	BldUnsupported        Code = 2001
	BldVariadicDefinition Code = 2002
	BldGoto               Code = 2003
	BldBitField           Code = 2004
	BldMacroCall          Code = 2005
	BldArityMismatch      Code = 2006
	BldUnknownType        Code = 2007
	BldFunctionMacro      Code = 2008
	BldRedefinition       Code = 2009

	// ownership
	OwnDoubleFree    Code = 3001
	OwnUseAfterFree  Code = 3002
	OwnForgottenFree Code = 3003
	OwnInconclusive  Code = 3004

	// locks
	LckUnprotectedAccess Code = 4001
	LckStackMismatch     Code = 4002
	LckPotentialDeadlock Code = 4003
	LckCrossBlockRegion  Code = 4004

	// lifetimes
	LftDanglingReference Code = 5001
	LftExplicitRequired  Code = 5002

	// codegen
	GenFallback Code = 6001

	// config
	CfgInvalid         Code = 7001
	CfgVersionMismatch Code = 7002
)

var codeDescription = map[Code]string{
	UnknownCode: "Unknown error",

	ParSyntax:    "Syntax error",
	ParDirective: "Unsupported preprocessor directive",

	BldUnsupported:        "Unsupported construct",
	BldVariadicDefinition: "Variadic function definition",
	BldGoto:               "goto is not supported",
	BldBitField:           "Bit-field members are not supported",
	BldMacroCall:          "Call through function-like macro",
	BldArityMismatch:      "Argument count does not match prototype",
	BldUnknownType:        "Unknown type name",
	BldFunctionMacro:      "Function-like macro ignored",
	BldRedefinition:       "Redefinition",

	OwnDoubleFree:    "Pointer freed twice on some path",
	OwnUseAfterFree:  "Pointer used after free",
	OwnForgottenFree: "Allocation neither freed nor returned on some path",
	OwnInconclusive:  "Ownership analysis inconclusive",

	LckUnprotectedAccess: "Access outside the lock that guards it elsewhere",
	LckStackMismatch:     "Lock release does not match acquisition order",
	LckPotentialDeadlock: "Inconsistent lock acquisition order",
	LckCrossBlockRegion:  "Lock region spans blocks",

	LftDanglingReference: "Reference may outlive its referent",
	LftExplicitRequired:  "Output lifetime needs explicit annotation",

	GenFallback: "Unsafe fallback emitted",

	CfgInvalid:         "Invalid configuration",
	CfgVersionMismatch: "Tool version does not satisfy min_version",
}

// ID returns the stable short identifier, e.g. OWN3001.
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("PAR%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("BLD%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("OWN%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("LCK%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("LFT%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("GEN%04d", ic)
	case ic >= 7000 && ic < 8000:
		return fmt.Sprintf("CFG%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	if desc, ok := codeDescription[c]; ok {
		return desc
	}
	return codeDescription[UnknownCode]
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
