// Package source owns file text and maps byte offsets to line/column
// positions. It is the one package every later stage depends on but which
// depends on nothing else in the compiler: tokens, AST spans and
// diagnostics all borrow a *File by FileID rather than copying text.
package source

import (
	"fmt"
	"os"
	"sort"
)

// FileID identifies a source file within a FileSet. The zero value is
// never a valid id; ids are assigned in load order starting at 1.
type FileID int

// Position is a single point in a source file.
type Position struct {
	Line   int // 1-indexed.
	Column int // 1-indexed, counted in bytes (TML source is required to be ASCII-identifier-safe UTF-8).
	Offset int // 0-indexed byte offset into the file.
}

// Span is a half-open range [Start, End) within one file.
type Span struct {
	File  FileID
	Start Position
	End   Position
}

// String renders a span's start position as "line:col"; the file path is
// not included.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
}

// Contains reports whether offset o falls within the span.
func (s Span) Contains(o int) bool {
	return o >= s.Start.Offset && o < s.End.Offset
}

// File holds the full text of one source file plus a line-start index for
// fast offset -> (line, column) lookups.
type File struct {
	ID         FileID
	Path       string
	Text       string
	lineStarts []int // byte offset of the first byte of each line; lineStarts[0] == 0.
}

func newFile(id FileID, path, text string) *File {
	f := &File{ID: id, Path: path, Text: text}
	f.lineStarts = []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			f.lineStarts = append(f.lineStarts, i+1)
		}
	}
	return f
}

// Position converts a byte offset into a line/column Position. Columns are
// counted in bytes from the start of the line, which matches the span
// convention used by the lexer (TML identifiers and operators are ASCII).
func (f *File) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(f.Text) {
		offset = len(f.Text)
	}
	// Binary search for the last line start <= offset.
	i := sort.Search(len(f.lineStarts), func(i int) bool { return f.lineStarts[i] > offset })
	line := i // lineStarts[i-1] <= offset < lineStarts[i]
	lineStart := f.lineStarts[line-1]
	return Position{Line: line, Column: offset - lineStart + 1, Offset: offset}
}

// Span builds a Span from two byte offsets within this file.
func (f *File) Span(start, end int) Span {
	return Span{File: f.ID, Start: f.Position(start), End: f.Position(end)}
}

// Line returns the text of the given 1-indexed line, without its trailing
// newline. Used by the diagnostic engine to render source snippets.
func (f *File) Line(n int) string {
	if n < 1 || n > len(f.lineStarts) {
		return ""
	}
	start := f.lineStarts[n-1]
	var end int
	if n == len(f.lineStarts) {
		end = len(f.Text)
	} else {
		end = f.lineStarts[n] - 1
	}
	if end < start {
		end = start
	}
	for end > start && (f.Text[end-1] == '\r') {
		end--
	}
	return f.Text[start:end]
}

// LineCount returns the number of lines in the file.
func (f *File) LineCount() int {
	return len(f.lineStarts)
}

// FileSet owns every file participating in one compilation. A FileSet is
// safe to read concurrently once loading has finished; loading itself is
// not synchronized because each translation unit loads its own file(s)
// before driver-level parallelism fans out (see internal/driver).
type FileSet struct {
	files []*File
}

// NewFileSet returns an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{}
}

// AddFile registers source text under path and returns the new file's id.
func (fs *FileSet) AddFile(path, text string) FileID {
	id := FileID(len(fs.files) + 1)
	fs.files = append(fs.files, newFile(id, path, text))
	return id
}

// LoadFile reads path from disk and registers its contents.
func (fs *FileSet) LoadFile(path string) (FileID, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("could not read source code: %w", err)
	}
	return fs.AddFile(path, string(b)), nil
}

// File returns the file registered under id, or nil if none matches.
func (fs *FileSet) File(id FileID) *File {
	if id < 1 || int(id) > len(fs.files) {
		return nil
	}
	return fs.files[id-1]
}

// Snippet returns the source lines from s.Start.Line through s.End.Line,
// with no surrounding context lines, plus the file path and the first
// line's number. Used by the diagnostic text renderer.
func (fs *FileSet) Snippet(s Span) (path string, lines []string, firstLine int, ok bool) {
	f := fs.File(s.File)
	if f == nil {
		return "", nil, 0, false
	}
	first := s.Start.Line
	last := s.End.Line
	if last < first {
		last = first
	}
	out := make([]string, 0, last-first+1)
	for l := first; l <= last; l++ {
		out = append(out, f.Line(l))
	}
	return f.Path, out, first, true
}
