// Package capture decides, per call argument, whether its debug
// rendering is taken eagerly before the call runs, deferred to the
// failure branch, or suppressed entirely.
//
// Go has no move semantics, so the question is never "is the value
// still legally observable" but "can the rendering change between the
// call and the moment the failure is observed". Literals cannot, so
// they always render lazily. Identifiers, selector chains, pointers and
// index expressions name storage the callee may mutate, so their
// treatment follows the global mode and profile.
package capture

import (
	"fmt"
	"go/ast"
	"go/token"
)

// Policy is the per-argument rendering decision.
type Policy int

const (
	// Lazy renders the bound argument in the failure branch only.
	Lazy Policy = iota
	// Eager renders the argument before the call executes and keeps
	// the string regardless of outcome.
	Eager
	// Skip records the argument's type but never renders its value.
	Skip
)

func (p Policy) String() string {
	switch p {
	case Lazy:
		return "lazy"
	case Eager:
		return "eager"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Mode is the global override for mutable-handle arguments.
type Mode int

const (
	// Auto defers to the build profile: eager capture in development,
	// skipped in release.
	Auto Mode = iota
	// Always captures every mutable-handle argument eagerly.
	Always
	// Disabled never renders mutable-handle arguments.
	Disabled
)

// Profile selects the Auto mode's behavior. It is explicit
// configuration read once at startup, never inferred from build tags.
type Profile int

const (
	Development Profile = iota
	Release
)

// ParseMode maps the config/flag spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "auto", "":
		return Auto, nil
	case "always":
		return Always, nil
	case "disabled":
		return Disabled, nil
	}
	return Auto, fmt.Errorf("unknown capture mode %q (want auto, always, or disabled)", s)
}

// ParseProfile maps the config spelling to a Profile.
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "development", "dev", "":
		return Development, nil
	case "release":
		return Release, nil
	}
	return Development, fmt.Errorf("unknown profile %q (want development or release)", s)
}

// Config is the resolved global capture policy.
type Config struct {
	Mode    Mode
	Profile Profile
}

// Decide returns the rendering policy for one call argument.
func (c Config) Decide(arg ast.Expr) Policy {
	if duplicable(arg) {
		return Lazy
	}
	switch c.Mode {
	case Always:
		return Eager
	case Disabled:
		return Skip
	}
	if c.Profile == Release {
		return Skip
	}
	return Eager
}

// duplicable reports whether re-rendering arg's bound copy later is
// guaranteed to produce the same string the callee saw. Only
// expressions that evaluate to fresh values qualify; anything naming
// existing storage may alias state the callee mutates.
func duplicable(arg ast.Expr) bool {
	switch e := arg.(type) {
	case *ast.BasicLit:
		return true
	case *ast.Ident:
		// the predeclared constants; also the only idents that cannot
		// be bound to a temporary
		return e.Name == "nil" || e.Name == "true" || e.Name == "false"
	case *ast.FuncLit:
		// function values render by pointer; nothing mutable to lose
		return true
	case *ast.BinaryExpr:
		return duplicable(e.X) && duplicable(e.Y)
	case *ast.ParenExpr:
		return duplicable(e.X)
	case *ast.UnaryExpr:
		// &x hands the callee a handle to x; everything else on a
		// duplicable operand is itself duplicable
		if e.Op == token.AND {
			return false
		}
		return duplicable(e.X)
	case *ast.CallExpr:
		// conversions and constructors produce fresh values, but
		// without type information a call may also return a shared
		// handle; treat the result as mutable storage
		return false
	case *ast.CompositeLit:
		// a fresh literal, but slices/maps built here may be retained
		// and filled by the callee before the failure branch renders
		return false
	}
	return false
}
