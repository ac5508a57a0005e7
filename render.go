// Rendering of an Oof into the single-line summary and the full
// structured report. Rendering is idempotent: lazy attachments resolve
// once and memoize, so the same Oof always renders to identical bytes.
package oofs

import (
	"fmt"
	"strings"
)

const indentUnit = "    "

// Error returns the single-line summary: the outermost call description
// and its location, or the terminal cause's text for a zero-frame Oof.
func (o *Oof) Error() string {
	f := o.outermost()
	if f == nil {
		return o.cause.text()
	}
	return frameLine(f)
}

func frameLine(f *Frame) string {
	var b strings.Builder
	f.writeDescription(&b)
	b.WriteString(" failed")
	if !f.loc.IsZero() {
		fmt.Fprintf(&b, " at `%s`", f.loc)
	}
	return b.String()
}

// Report renders the full structured report: every frame from the
// outermost boundary down to the innermost, each with its Parameters
// and Attachments blocks, then the terminal cause. Attachment indices
// restart at 0 within each block. A zero-frame Oof reports only its
// cause.
func (o *Oof) Report() string {
	var b strings.Builder
	depth := 0
	for i := len(o.frames) - 1; i >= 0; i-- {
		writeFrame(&b, o.frames[i], depth)
		writeIndented(&b, depth, "Caused by:")
		b.WriteByte('\n')
		depth++
	}
	writeCause(&b, &o.cause, depth)
	return b.String()
}

// Format implements fmt.Formatter: %s and %v print the single-line
// summary, %+v the full report, %q the quoted summary.
func (o *Oof) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprint(s, o.Report())
			return
		}
		_, _ = fmt.Fprint(s, o.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", o.Error())
	default:
		_, _ = fmt.Fprint(s, o.Error())
	}
}

func writeFrame(b *strings.Builder, f *Frame, depth int) {
	writeIndented(b, depth, frameLine(f))
	b.WriteByte('\n')

	if len(f.params) > 0 {
		b.WriteByte('\n')
		writeIndented(b, depth, "Parameters:")
		b.WriteByte('\n')
		for _, p := range f.params {
			writeIndented(b, depth+1, paramLine(p))
			b.WriteByte('\n')
		}
	}

	writeAttachments(b, f.attachments, depth)
	b.WriteByte('\n')
}

func paramLine(p Param) string {
	if !p.HasValue {
		return fmt.Sprintf("%s: %s", p.Label, p.Type)
	}
	return fmt.Sprintf("%s: %s = %s", p.Label, p.Type, p.Value)
}

func writeCause(b *strings.Builder, c *causeRecord, depth int) {
	writeIndented(b, depth, c.text())
	b.WriteByte('\n')
	writeAttachments(b, c.attachments, depth)
}

func writeAttachments(b *strings.Builder, atts []*attachment, depth int) {
	if len(atts) == 0 {
		return
	}
	b.WriteByte('\n')
	writeIndented(b, depth, "Attachments:")
	b.WriteByte('\n')
	for i, a := range atts {
		writeIndented(b, depth+1, fmt.Sprintf("%d: %s", i, a.resolve()))
		b.WriteByte('\n')
	}
}

// writeIndented writes s with every line prefixed by depth indent
// units, so multi-line cause texts and attachments stay aligned.
func writeIndented(b *strings.Builder, depth int, s string) {
	prefix := strings.Repeat(indentUnit, depth)
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		if line != "" {
			b.WriteString(prefix)
		}
		b.WriteString(line)
	}
}
