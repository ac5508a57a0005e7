package oofs

import (
	"fmt"
	"strconv"
	"strings"
)

// Location identifies the source position of an instrumented call site.
type Location struct {
	File   string
	Line   int
	Column int
}

// At constructs a Location. Generated code calls this with positions
// resolved at transform time.
func At(file string, line, column int) Location {
	return Location{File: file, Line: line, Column: column}
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// IsZero reports whether no location was recorded.
func (l Location) IsZero() bool { return l.File == "" && l.Line == 0 }

// Param is one rendered argument of a failed call.
type Param struct {
	// Label is the positional display label, "$0", "$1", ...
	Label string
	// Type is the value's runtime type name.
	Type string
	// Value is the debug rendering. Only meaningful when HasValue is set;
	// capture may be disabled for an argument, in which case only the
	// label and type are reported.
	Value    string
	HasValue bool
}

// attachment is one auxiliary debug entry on a frame or on the terminal
// cause. Lazy attachments render at most once; the result is memoized so
// repeated rendering of the same Oof is byte-identical.
type attachment struct {
	rendered string
	resolved bool
	lazy     func() string
}

func eagerAttachment(v any) *attachment {
	return &attachment{rendered: debugString(v), resolved: true}
}

func lazyAttachment(f func() string) *attachment {
	return &attachment{lazy: f}
}

func (a *attachment) resolve() string {
	if !a.resolved {
		a.resolved = true
		if a.lazy != nil {
			a.rendered = a.lazy()
			a.lazy = nil
		}
	}
	return a.rendered
}

type callShape int

const (
	shapeFunc callShape = iota
	shapeMethod
	shapeMethodOn
	shapeValue
)

// Frame is the captured context for one crossed propagation boundary:
// what was called, where, and with which argument values. Frames are
// built once, appended to an Oof, and never mutated afterwards.
type Frame struct {
	shape       callShape
	name        string // callee name; full expression text for shapeValue
	recv        string // receiver text for shapeMethod
	loc         Location
	params      []Param
	attachments []*attachment
	tags        tagSet
}

// Description returns the rendered call description, e.g. "$0.Parse($1)"
// or "client.Fetch($0)".
func (f *Frame) Description() string {
	var b strings.Builder
	f.writeDescription(&b)
	return b.String()
}

func (f *Frame) writeDescription(b *strings.Builder) {
	switch f.shape {
	case shapeValue:
		b.WriteString(f.name)
		return
	case shapeMethod:
		b.WriteString(f.recv)
		b.WriteByte('.')
	case shapeMethodOn:
		if len(f.params) > 0 {
			b.WriteString(f.params[0].Label)
		} else {
			b.WriteString("$0")
		}
		b.WriteByte('.')
	}
	b.WriteString(f.name)
	b.WriteByte('(')
	for i, p := range f.callParams() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Label)
	}
	b.WriteByte(')')
}

// callParams returns the params that appear inside the call parens; for
// a captured receiver the first param is the receiver itself and is
// shown before the dot instead.
func (f *Frame) callParams() []Param {
	if f.shape == shapeMethodOn && len(f.params) > 0 {
		return f.params[1:]
	}
	return f.params
}

// Location returns the source position of the call site.
func (f *Frame) Location() Location { return f.loc }

// Params returns a copy of the frame's rendered parameters.
func (f *Frame) Params() []Param {
	out := make([]Param, len(f.params))
	copy(out, f.params)
	return out
}

// Tagged reports whether this frame carries t.
func (f *Frame) Tagged(t Tag) bool { return f.tags.has(t) }

// Captured holds an argument rendering taken eagerly, before the call
// executed. The rendering reflects the value at the moment of capture
// regardless of later mutation.
type Captured struct {
	typ string
	val string
}

// Capture eagerly renders v. Generated code hoists Capture calls in
// front of the instrumented call for arguments whose rendering could
// change before the failure is observed.
func Capture(v any) Captured {
	return Captured{typ: typeName(v), val: debugString(v)}
}

// CaptureString records a caller-rendered value with v's runtime type
// name; used for debug_with overrides.
func CaptureString(v any, rendered string) Captured {
	return Captured{typ: typeName(v), val: rendered}
}

// FrameBuilder accumulates one context frame for a failed call and
// finally wraps the failure via Wrap. The builder is only ever touched
// on the failure path; a succeeding call never constructs one.
type FrameBuilder struct {
	frame *Frame
	next  int // next positional label
}

// Func starts a frame for a function call site, e.g. Func("json.Unmarshal", loc).
func Func(name string, loc Location) *FrameBuilder {
	return &FrameBuilder{frame: &Frame{shape: shapeFunc, name: name, loc: loc}}
}

// Method starts a frame for a method call whose receiver is not
// captured; recv is the receiver's source text.
func Method(recv, name string, loc Location) *FrameBuilder {
	return &FrameBuilder{frame: &Frame{shape: shapeMethod, recv: recv, name: name, loc: loc}}
}

// MethodOn starts a frame for a method call with a captured receiver.
// The first Param added is the receiver and is labelled $0.
func MethodOn(name string, loc Location) *FrameBuilder {
	return &FrameBuilder{frame: &Frame{shape: shapeMethodOn, name: name, loc: loc}}
}

// Value starts a frame for a bare fallible expression; text is the
// expression's source text.
func Value(text string, loc Location) *FrameBuilder {
	return &FrameBuilder{frame: &Frame{shape: shapeValue, name: text, loc: loc}}
}

func (b *FrameBuilder) label() string {
	l := "$" + strconv.Itoa(b.next)
	b.next++
	return l
}

// Param renders v now and appends it. Called on the failure path, so
// the rendering cost is only paid when the call has already failed.
func (b *FrameBuilder) Param(v any) *FrameBuilder {
	b.frame.params = append(b.frame.params, Param{
		Label:    b.label(),
		Type:     typeName(v),
		Value:    debugString(v),
		HasValue: true,
	})
	return b
}

// ParamEager appends a rendering captured before the call executed.
func (b *FrameBuilder) ParamEager(c Captured) *FrameBuilder {
	b.frame.params = append(b.frame.params, Param{
		Label:    b.label(),
		Type:     c.typ,
		Value:    c.val,
		HasValue: true,
	})
	return b
}

// ParamSkipped appends an argument whose value capture is disabled;
// only the label and runtime type are reported.
func (b *FrameBuilder) ParamSkipped(v any) *FrameBuilder {
	b.frame.params = append(b.frame.params, Param{
		Label: b.label(),
		Type:  typeName(v),
	})
	return b
}

// Tag adds t to the frame's tag set; duplicates collapse.
func (b *FrameBuilder) Tag(t Tag) *FrameBuilder {
	b.frame.tags.add(t)
	return b
}

// Attach eagerly renders v and appends it to the frame's attachments.
func (b *FrameBuilder) Attach(v any) *FrameBuilder {
	b.frame.attachments = append(b.frame.attachments, eagerAttachment(v))
	return b
}

// AttachLazy appends a deferred attachment; f runs at most once, and
// only if the Oof is rendered.
func (b *FrameBuilder) AttachLazy(f func() string) *FrameBuilder {
	b.frame.attachments = append(b.frame.attachments, lazyAttachment(f))
	return b
}

// Wrap finalizes the frame onto err and returns the propagating Oof.
// If err is already an Oof the frame extends its chain; a foreign error
// is first wrapped into a fresh aggregate. Wrap(nil) returns nil so a
// generated site degenerates to a plain nil check on success.
func (b *FrameBuilder) Wrap(err error) error {
	if err == nil {
		return nil
	}
	o := Wrap(err)
	o.appendFrame(b.frame)
	return o
}

// typeName reports v's runtime type, the closest available stand-in for
// the static type of a generated capture.
func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}

// debugString renders v for diagnostic output. Strings are quoted so an
// empty or whitespace-only value stays visible.
func debugString(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return strconv.Quote(t)
	case []byte:
		return strconv.Quote(string(t))
	case error:
		return strconv.Quote(t.Error())
	}
	return fmt.Sprintf("%+v", v)
}
