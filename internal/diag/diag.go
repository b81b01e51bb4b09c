// Package diag implements the compiler's diagnostic engine: collection of
// structured errors/warnings/notes/help messages with source spans, and
// rendering to either colored text or stable JSON. See spec.md §4.1.
package diag

import (
	"fmt"
	"sort"
	"sync"

	"tml/internal/source"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
	Help
)

// String renders the severity the way the text renderer's header line
// expects: "error", "warning", "note", "help".
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	case Help:
		return "help"
	default:
		return "unknown"
	}
}

// LabelStyle distinguishes the primary underline from secondary ones.
type LabelStyle int

const (
	Primary LabelStyle = iota
	Secondary
)

// Label attaches a short message to a span, underlined in the rendered
// snippet.
type Label struct {
	Span    source.Span
	Message string
	Style   LabelStyle
}

// Fix is a suggested source replacement ("fix-it hint").
type Fix struct {
	Span        source.Span
	Replacement string
	Description string
}

// Diagnostic is one structured compiler message, per spec.md §4.1.
type Diagnostic struct {
	Severity Severity
	Code     string // e.g. "T001", "L004", "B002", "C015", "P013", "E001".
	Message  string
	Primary  source.Span
	Labels   []Label
	Notes    []string
	Fixes    []Fix
}

// WithLabel appends a secondary label and returns the diagnostic for
// chaining, mirroring the small builder helpers used throughout the pack's
// diagnostic-construction sites.
func (d Diagnostic) WithLabel(span source.Span, message string) Diagnostic {
	d.Labels = append(d.Labels, Label{Span: span, Message: message, Style: Secondary})
	return d
}

// WithNote appends a `= note:` line.
func (d Diagnostic) WithNote(note string) Diagnostic {
	d.Notes = append(d.Notes, note)
	return d
}

// WithFix appends a fix-it suggestion.
func (d Diagnostic) WithFix(span source.Span, replacement, description string) Diagnostic {
	d.Fixes = append(d.Fixes, Fix{Span: span, Replacement: replacement, Description: description})
	return d
}

// Bag accumulates diagnostics across one compilation. It generalizes the
// teacher's util.perror (a mutex-guarded error buffer fed by a listener
// goroutine) to carry structured Diagnostic values instead of bare errors,
// and to support the driver's parallel-translation-unit fan-out (§5) where
// multiple worker goroutines append to the same bag concurrently.
type Bag struct {
	mu   sync.Mutex
	msgs []Diagnostic
}

// NewBag returns an empty diagnostic bag.
func NewBag() *Bag {
	return &Bag{msgs: make([]Diagnostic, 0, 16)}
}

// Add appends a diagnostic. Safe for concurrent use.
func (b *Bag) Add(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, d)
}

// Errorf is a convenience constructor-and-add for the common case of an
// unlabelled error with just a message.
func (b *Bag) Errorf(code string, span source.Span, format string, args ...any) {
	b.Add(Diagnostic{Severity: Error, Code: code, Message: fmt.Sprintf(format, args...), Primary: span})
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.msgs {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics recorded so far.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// All returns a stable snapshot of every recorded diagnostic, sorted by
// file then primary span start (a stable sort, so diagnostics at the same
// position keep insertion order), so that output is deterministic across
// runs, per the determinism requirement in spec.md §5.
func (b *Bag) All() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Diagnostic, len(b.msgs))
	copy(out, b.msgs)
	sort.SliceStable(out, func(i, j int) bool {
		a, c := out[i].Primary, out[j].Primary
		if a.File != c.File {
			return a.File < c.File
		}
		if a.Start.Offset != c.Start.Offset {
			return a.Start.Offset < c.Start.Offset
		}
		return false
	})
	return out
}

// Reset empties the bag. Used between `test` subcommand runs so that one
// failing case's diagnostics don't bleed into the next.
func (b *Bag) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = b.msgs[:0]
}
