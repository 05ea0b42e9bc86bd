package fasl

// Opcode is a single wire byte identifying what follows it. Byte values are
// assigned here rather than carried over from the source, which never
// exposed concrete opcode bytes in this retrieval pack (scan-constants.h is
// an include-only header in the filtered sources) — spec.md §6 explicitly
// leaves concrete byte assignment to the implementer, so long as it is
// consistent and published, which this file is.
type Opcode byte

const (
	OpNil Opcode = iota
	OpTrue
	OpFalse
	OpCharacter
	OpFix8
	OpFix16
	OpFix32
	OpFix64
	OpFloat
	OpComplex
	OpString
	OpList
	OpListD
	OpVector
	OpStructure
	OpStructureLayout
	OpHash
	OpInstanceMap
	OpInstance
	OpClosure
	OpMacro
	OpSymbol
	OpPackage
	OpSubr
	OpFastOp0
	OpFastOp1
	OpFastOp2
	OpFastOp3
	OpNop1
	OpNop2
	OpNop3
	OpComment1
	OpComment2
	OpResetReaderDefs
	OpReaderDefinition
	OpReaderReference
	OpEOF

	// Loader-only opcodes: valid only when Reader.allowLoaderOps is true.
	OpLoaderDefineQ
	OpLoaderDefineA0
	OpLoaderApply0
	OpLoaderApplyN
	OpBeginLoadUnit
	OpEndLoadUnit
	OpLoaderPush
	OpLoaderDrop

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpNil:               "NIL",
	OpTrue:               "TRUE",
	OpFalse:              "FALSE",
	OpCharacter:          "CHARACTER",
	OpFix8:               "FIX8",
	OpFix16:              "FIX16",
	OpFix32:              "FIX32",
	OpFix64:              "FIX64",
	OpFloat:              "FLOAT",
	OpComplex:            "COMPLEX",
	OpString:             "STRING",
	OpList:               "LIST",
	OpListD:              "LISTD",
	OpVector:             "VECTOR",
	OpStructure:          "STRUCTURE",
	OpStructureLayout:    "STRUCTURE_LAYOUT",
	OpHash:               "HASH",
	OpInstanceMap:        "INSTANCE_MAP",
	OpInstance:           "INSTANCE",
	OpClosure:            "CLOSURE",
	OpMacro:              "MACRO",
	OpSymbol:             "SYMBOL",
	OpPackage:            "PACKAGE",
	OpSubr:               "SUBR",
	OpFastOp0:            "FAST_OP_0",
	OpFastOp1:            "FAST_OP_1",
	OpFastOp2:            "FAST_OP_2",
	OpFastOp3:            "FAST_OP_3",
	OpNop1:               "NOP_1",
	OpNop2:               "NOP_2",
	OpNop3:               "NOP_3",
	OpComment1:           "COMMENT_1",
	OpComment2:           "COMMENT_2",
	OpResetReaderDefs:    "RESET_READER_DEFS",
	OpReaderDefinition:   "READER_DEFINITION",
	OpReaderReference:    "READER_REFERENCE",
	OpEOF:                "EOF",
	OpLoaderDefineQ:      "LOADER_DEFINEQ",
	OpLoaderDefineA0:     "LOADER_DEFINEA0",
	OpLoaderApply0:       "LOADER_APPLY0",
	OpLoaderApplyN:       "LOADER_APPLYN",
	OpBeginLoadUnit:      "BEGIN_LOAD_UNIT",
	OpEndLoadUnit:        "END_LOAD_UNIT",
	OpLoaderPush:         "LOADER_PUSH",
	OpLoaderDrop:         "LOADER_DROP",
}

func (o Opcode) String() string {
	if o < opcodeCount && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return "UNKNOWN_OPCODE"
}

// isLoaderOnly reports whether o may only appear when loader ops are
// enabled (Reader.Load, never Reader.ReadValue).
func isLoaderOnly(o Opcode) bool {
	return o >= OpLoaderDefineQ && o < opcodeCount
}

// Tail-looped opcodes (handled by looping for the next opcode instead of
// returning a value) are NOP/COMMENT/RESET_READER_DEFS and the two
// loader-definition opcodes — see their cases in Reader.read. This matches
// fasl.cpp's current_read_complete=false set exactly; LOADER_APPLY0/APPLYN,
// BEGIN/END_LOAD_UNIT and PUSH/DROP instead complete the read (yielding
// nil), one opcode per top-level loader slot.
