package oofs

import (
	"fmt"
	"reflect"
)

// Ensure checks that cond holds and returns a fresh Oof when it does
// not. With no arguments the message is a generic assertion failure;
// msgAndArgs is an optional fmt.Sprintf-style override. Ensure returns
// nil on success, so the caller checks:
//
//	if e := oofs.Ensure(len(parts) == 2, "malformed pair %q", s); e != nil {
//		return e
//	}
//
// The generator rewrites bare Ensure calls into EnsureExpr so the
// default message embeds the asserted expression's source text.
func Ensure(cond bool, msgAndArgs ...any) *Oof {
	if cond {
		return nil
	}
	return assertOof("assertion failed", msgAndArgs)
}

// EnsureExpr is Ensure with the asserted expression's source text
// supplied, producing the default message "assertion failed: `<expr>`".
// Generated code provides exprText; hand-written callers may too.
func EnsureExpr(cond bool, exprText string, msgAndArgs ...any) *Oof {
	if cond {
		return nil
	}
	return assertOof(fmt.Sprintf("assertion failed: `%s`", exprText), msgAndArgs)
}

// EnsureEq checks that left equals right and returns a fresh Oof when
// they differ. Comparable operands use ==; slices, maps, and other
// non-comparable types fall back to reflect.DeepEqual instead of
// panicking. The default message embeds the
// asserted expression text and both operands are attached lazily, so a
// rendered report shows their values:
//
//	assertion failed: `(left == right)`
//
//	Attachments:
//	    0:  left: 1
//	    1: right: 2
func EnsureEq(left, right any, msgAndArgs ...any) *Oof {
	if operandsEqual(left, right) {
		return nil
	}
	o := assertOof("assertion failed: `(left == right)`", msgAndArgs)
	o.AttachLazy(func() string { return " left: " + debugString(left) })
	o.AttachLazy(func() string { return "right: " + debugString(right) })
	return o
}

// operandsEqual compares two any values without panicking: comparable
// dynamic types use ==, everything else reflect.DeepEqual.
func operandsEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == right
	}
	lt, rt := reflect.TypeOf(left), reflect.TypeOf(right)
	if lt.Comparable() && rt.Comparable() {
		return left == right
	}
	return reflect.DeepEqual(left, right)
}

func assertOof(def string, msgAndArgs []any) *Oof {
	msg := def
	if len(msgAndArgs) > 0 {
		if format, ok := msgAndArgs[0].(string); ok {
			msg = fmt.Sprintf(format, msgAndArgs[1:]...)
		} else {
			msg = fmt.Sprint(msgAndArgs...)
		}
	}
	return &Oof{cause: causeRecord{kind: causeAssert, msg: msg}}
}
