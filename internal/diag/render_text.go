package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"tml/internal/source"
)

// TextRenderer renders diagnostics as colored, human-readable text with a
// source snippet and caret underlines, per spec.md §4.1. Color selection
// mirrors the pack's convention (funvibe-funxy, sunholo-data-ailang) of
// gating github.com/fatih/color on github.com/mattn/go-isatty rather than
// always-on or always-off coloring.
type TextRenderer struct {
	w       io.Writer
	fs      *source.FileSet
	color   bool
	sev     map[Severity]*color.Color
	muted   *color.Color
	notec   *color.Color
	helpc   *color.Color
	fixc    *color.Color
	snippet *color.Color
}

// NewTextRenderer builds a renderer writing to w. Pass an *os.File so TTY
// detection is meaningful; any other io.Writer renders plain (no escapes).
func NewTextRenderer(w io.Writer, fs *source.FileSet) *TextRenderer {
	tty := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	r := &TextRenderer{w: w, fs: fs, color: tty}
	r.sev = map[Severity]*color.Color{
		Error:   color.New(color.FgRed, color.Bold),
		Warning: color.New(color.FgYellow, color.Bold),
		Note:    color.New(color.FgCyan),
		Help:    color.New(color.FgGreen),
	}
	r.muted = color.New(color.FgHiBlack)
	r.notec = color.New(color.FgCyan)
	r.helpc = color.New(color.FgGreen)
	r.fixc = color.New(color.FgBlue)
	r.snippet = color.New(color.FgBlue, color.Bold)
	for _, c := range r.sev {
		c.EnableColor()
		if !r.color {
			c.DisableColor()
		}
	}
	for _, c := range []*color.Color{r.muted, r.notec, r.helpc, r.fixc, r.snippet} {
		c.EnableColor()
		if !r.color {
			c.DisableColor()
		}
	}
	return r
}

// Render writes one diagnostic in the documented layout:
//
//	severity[CODE]: message
//	  --> path:line:col
//	   |
//	 N | source line
//	   |    ^^^^
//	   | - note (line N): label
//	  = note: ...
//	fix: replacement -- description
//
// A label line's marker is ^ for a primary label and - otherwise.
func (r *TextRenderer) Render(d Diagnostic) {
	sevc := r.sev[d.Severity]
	fmt.Fprintf(r.w, "%s%s: %s\n", sevc.Sprint(d.Severity.String()), bracket(d.Code), d.Message)

	path, lines, firstLine, ok := r.fs.Snippet(d.Primary)
	if !ok {
		// No source text available; still render a best-effort location.
		fmt.Fprintf(r.w, "  --> %d:%d\n", d.Primary.Start.Line, d.Primary.Start.Column)
	} else {
		fmt.Fprintf(r.w, "  %s %s:%d:%d\n", r.muted.Sprint("-->"), path, d.Primary.Start.Line, d.Primary.Start.Column)
		gutter := len(fmt.Sprintf("%d", firstLine+len(lines)-1))
		fmt.Fprintf(r.w, "%s%s\n", strings.Repeat(" ", gutter+1), r.muted.Sprint("|"))
		for i, line := range lines {
			ln := firstLine + i
			fmt.Fprintf(r.w, " %s%s %s %s\n",
				padLeft(fmt.Sprintf("%d", ln), gutter), "", r.muted.Sprint("|"), line)
			if ln == d.Primary.Start.Line {
				underline := caretUnderline(line, d.Primary.Start.Column, d.Primary.End.Column, d.Primary.Start.Line == d.Primary.End.Line)
				fmt.Fprintf(r.w, "%s%s %s\n", strings.Repeat(" ", gutter+1), r.muted.Sprint("|"), r.sev[d.Severity].Sprint(underline))
			}
		}
		for _, lbl := range d.Labels {
			style := "-"
			if lbl.Style == Primary {
				style = "^"
			}
			fmt.Fprintf(r.w, "%s%s %s %s (line %d): %s\n",
				strings.Repeat(" ", gutter+1), r.muted.Sprint("|"), style, r.muted.Sprint("note"), lbl.Span.Start.Line, lbl.Message)
		}
	}

	for _, n := range d.Notes {
		fmt.Fprintf(r.w, "  = %s: %s\n", r.notec.Sprint("note"), n)
	}
	for _, f := range d.Fixes {
		fmt.Fprintf(r.w, "%s: %s -- %s\n", r.helpc.Sprint("fix"), f.Replacement, f.Description)
	}
}

// RenderAll renders every diagnostic in b, in the bag's deterministic order.
func (r *TextRenderer) RenderAll(b *Bag) {
	for _, d := range b.All() {
		r.Render(d)
	}
}

func bracket(code string) string {
	if code == "" {
		return ""
	}
	return "[" + code + "]"
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = " " + s
	}
	return s
}

// caretUnderline builds a run of '^' beneath [startCol, endCol) of line,
// preserving tabs/leading whitespace width so the carets line up visually.
func caretUnderline(line string, startCol, endCol int, singleLine bool) string {
	if startCol < 1 {
		startCol = 1
	}
	n := endCol - startCol
	if !singleLine || n < 1 {
		n = 1
	}
	sb := strings.Builder{}
	for i := 1; i < startCol; i++ {
		if i-1 < len(line) && line[i-1] == '\t' {
			sb.WriteByte('\t')
		} else {
			sb.WriteByte(' ')
		}
	}
	sb.WriteString(strings.Repeat("^", n))
	return sb.String()
}
