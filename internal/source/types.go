package source

type (
	// FileID identifies a translation unit inside a FileSet.
	FileID uint32
	// FileFlags records how a file's content was obtained and normalised.
	FileFlags uint8
)

const (
	// FileVirtual marks content that did not come from disk (stdin, tests).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
)

// File is one C translation unit held in memory.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32 // offsets of '\n'
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol is a 1-based line/column pair.
type LineCol struct {
	Line uint32
	Col  uint32
}
