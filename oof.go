// Package oofs is the runtime half of the oofs toolchain: a chained
// failure aggregate that accumulates one context frame per crossed
// propagation boundary, carries caller-chosen marker tags and debug
// attachments, and renders the accumulated chain into a structured
// report.
//
// Instrumented code (see cmd/oofgen) constructs frames through the
// FrameBuilder entry points; everything here is equally usable by hand.
// The package deliberately performs no logging and no I/O, and never
// alters the value or control flow of a successful operation.
package oofs

import "fmt"

type causeKind int

const (
	causeForeign causeKind = iota
	causeMessage
	causeAssert
)

// causeRecord is the terminal cause of an Oof: a wrapped foreign error,
// a user-supplied message, or an assertion failure. It also carries the
// tags and attachments applied before any boundary was crossed, so that
// fluent calls on a fresh zero-frame Oof are not lost.
type causeRecord struct {
	kind        causeKind
	err         error // causeForeign only
	msg         string
	tags        tagSet
	attachments []*attachment
}

func (c *causeRecord) text() string {
	if c.kind == causeForeign && c.err != nil {
		return c.err.Error()
	}
	return c.msg
}

// Oof is the chained failure aggregate. It holds an ordered sequence of
// frames - the frame for the innermost boundary is added first, the
// outermost caller's frame last - and exactly one terminal cause, set
// at construction and immutable afterwards. The frame list is
// append-only: frames are never removed or rewritten once added.
//
// Oof implements error. An Oof propagates up the call stack as an
// ordinary error value; each instrumented boundary it crosses appends
// exactly one frame.
type Oof struct {
	frames []*Frame
	cause  causeRecord
}

var _ error = (*Oof)(nil)

// Wrap turns a foreign error into a fresh, zero-frame Oof. If err is
// already an Oof it is returned unchanged, so wrapping is safe at every
// boundary of a propagation chain. Wrap(nil) returns nil.
func Wrap(err error) *Oof {
	if err == nil {
		return nil
	}
	if o, ok := err.(*Oof); ok {
		return o
	}
	return &Oof{cause: causeRecord{kind: causeForeign, err: err}}
}

// Errorf builds a fresh Oof from a formatted user message, analogous to
// fmt.Errorf but producing a taggable, attachable aggregate.
func Errorf(format string, args ...any) *Oof {
	return &Oof{cause: causeRecord{kind: causeMessage, msg: fmt.Sprintf(format, args...)}}
}

func (o *Oof) appendFrame(f *Frame) {
	o.frames = append(o.frames, f)
}

// Frames returns the frame chain, innermost boundary first.
func (o *Oof) Frames() []*Frame {
	out := make([]*Frame, len(o.frames))
	copy(out, o.frames)
	return out
}

// outermost returns the most recently added frame, or nil for a
// zero-frame Oof.
func (o *Oof) outermost() *Frame {
	if len(o.frames) == 0 {
		return nil
	}
	return o.frames[len(o.frames)-1]
}

// Tag adds t to the current frame's tag set - the outermost frame, or
// the terminal cause when no boundary has been crossed yet. Adding the
// same tag twice collapses to one membership.
func (o *Oof) Tag(t Tag) *Oof {
	if f := o.outermost(); f != nil {
		f.tags.add(t)
	} else {
		o.cause.tags.add(t)
	}
	return o
}

// Attach eagerly renders v and appends it to the current frame's
// attachments.
func (o *Oof) Attach(v any) *Oof {
	a := eagerAttachment(v)
	if f := o.outermost(); f != nil {
		f.attachments = append(f.attachments, a)
	} else {
		o.cause.attachments = append(o.cause.attachments, a)
	}
	return o
}

// AttachLazy appends a deferred attachment to the current frame. f is
// invoked at most once, and only if the Oof is rendered.
func (o *Oof) AttachLazy(f func() string) *Oof {
	a := lazyAttachment(f)
	if fr := o.outermost(); fr != nil {
		fr.attachments = append(fr.attachments, a)
	} else {
		o.cause.attachments = append(o.cause.attachments, a)
	}
	return o
}

// Tagged reports whether the outermost frame carries t. It checks one
// level only; use TaggedNested to search the whole chain.
func (o *Oof) Tagged(t Tag) bool {
	if f := o.outermost(); f != nil {
		return f.tags.has(t)
	}
	return o.cause.tags.has(t)
}

// TaggedNested reports whether any frame in the chain carries t,
// terminal cause included. This is the categorization primitive for
// caller-side retry/fallback policy: a tag applied at the innermost
// failing call stays visible at every outer boundary.
func (o *Oof) TaggedNested(t Tag) bool {
	for _, f := range o.frames {
		if f.tags.has(t) {
			return true
		}
	}
	return o.cause.tags.has(t)
}

// Unwrap exposes the terminal foreign cause for errors.Is/As traversal.
// Message and assertion causes have nothing to unwrap.
func (o *Oof) Unwrap() error {
	return o.cause.err
}

// CauseText returns the terminal cause's own text: the foreign error's
// message, the user-supplied message, or the assertion failure message.
func (o *Oof) CauseText() string {
	return o.cause.text()
}

// TagErr, AttachErr, and AttachLazyErr are the meta-call surface the
// generator folds into a site's frame; at run time they work the same
// with or without instrumentation.

// TagErr adds t to err's current frame and returns the aggregate.
// TagErr(nil, t) returns nil.
func TagErr(err error, t Tag) error {
	o := Wrap(err)
	if o == nil {
		return nil
	}
	return o.Tag(t)
}

// AttachErr eagerly renders v onto err's current frame.
// AttachErr(nil, v) returns nil.
func AttachErr(err error, v any) error {
	o := Wrap(err)
	if o == nil {
		return nil
	}
	return o.Attach(v)
}

// AttachLazyErr appends a deferred attachment to err's current frame.
// AttachLazyErr(nil, f) returns nil.
func AttachLazyErr(err error, f func() string) error {
	o := Wrap(err)
	if o == nil {
		return nil
	}
	return o.AttachLazy(f)
}
