package diag

import (
	"encoding/json"
	"io"
)

// jsonSpan matches the "span" shape embedded in labels/fixes in spec.md
// §6.3 (the schema there leaves the inner span shape implicit; this is the
// natural flattening of source.Span used consistently across labels,
// fixes, and the top-level line/column fields).
type jsonSpan struct {
	Line      int `json:"line"`
	Column    int `json:"column"`
	EndLine   int `json:"end_line"`
	EndColumn int `json:"end_column"`
}

type jsonLabel struct {
	Span    jsonSpan `json:"span"`
	Message string   `json:"message"`
	Style   string   `json:"style"`
}

type jsonFix struct {
	Span        jsonSpan `json:"span"`
	Replacement string   `json:"replacement"`
	Description string   `json:"description"`
}

// JSONDiagnostic is the exact wire schema from spec.md §6.3.
type JSONDiagnostic struct {
	Severity  string      `json:"severity"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	File      string      `json:"file"`
	Line      int         `json:"line"`
	Column    int         `json:"column"`
	EndLine   int         `json:"end_line"`
	EndColumn int         `json:"end_column"`
	Labels    []jsonLabel `json:"labels"`
	Notes     []string    `json:"notes"`
	Fixes     []jsonFix   `json:"fixes"`
}

// ToJSON converts a Diagnostic into its stable wire representation. The
// file path is supplied by the caller (the FileSet, not the Diagnostic,
// owns path strings).
func ToJSON(d Diagnostic, file string) JSONDiagnostic {
	jd := JSONDiagnostic{
		Severity:  d.Severity.String(),
		Code:      d.Code,
		Message:   d.Message,
		File:      file,
		Line:      d.Primary.Start.Line,
		Column:    d.Primary.Start.Column,
		EndLine:   d.Primary.End.Line,
		EndColumn: d.Primary.End.Column,
		Notes:     d.Notes,
	}
	if jd.Notes == nil {
		jd.Notes = []string{}
	}
	jd.Labels = make([]jsonLabel, 0, len(d.Labels))
	for _, l := range d.Labels {
		style := "secondary"
		if l.Style == Primary {
			style = "primary"
		}
		jd.Labels = append(jd.Labels, jsonLabel{
			Span:    jsonSpan{Line: l.Span.Start.Line, Column: l.Span.Start.Column, EndLine: l.Span.End.Line, EndColumn: l.Span.End.Column},
			Message: l.Message,
			Style:   style,
		})
	}
	jd.Fixes = make([]jsonFix, 0, len(d.Fixes))
	for _, f := range d.Fixes {
		jd.Fixes = append(jd.Fixes, jsonFix{
			Span:        jsonSpan{Line: f.Span.Start.Line, Column: f.Span.Start.Column, EndLine: f.Span.End.Line, EndColumn: f.Span.End.Column},
			Replacement: f.Replacement,
			Description: f.Description,
		})
	}
	return jd
}

// JSONRenderer writes one JSON object per line (JSON-lines), keeping the
// schema stable across runs as required by spec.md §4.1.
type JSONRenderer struct {
	w    io.Writer
	file func(fileID int) string
}

// NewJSONRenderer builds a renderer that resolves a diagnostic's file id to
// a path string via pathOf (typically source.FileSet.File(id).Path).
func NewJSONRenderer(w io.Writer, pathOf func(fileID int) string) *JSONRenderer {
	return &JSONRenderer{w: w, file: pathOf}
}

// RenderAll writes every diagnostic in b as one JSON object per line.
func (r *JSONRenderer) RenderAll(b *Bag) error {
	enc := json.NewEncoder(r.w)
	for _, d := range b.All() {
		path := ""
		if r.file != nil {
			path = r.file(int(d.Primary.File))
		}
		if err := enc.Encode(ToJSON(d, path)); err != nil {
			return err
		}
	}
	return nil
}
