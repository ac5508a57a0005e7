package classify

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

// Directive is the per-declaration configuration parsed from
// `//oofs:` comment lines on a function or method.
type Directive struct {
	// Skip excludes the declaration entirely.
	Skip bool
	// Instrument forces instrumentation even where the method rule
	// would exclude it.
	Instrument bool
	// Tags are tag expressions auto-applied to every site's frame.
	Tags []string
	// Attach / AttachLazy are expressions auto-attached to every
	// site's frame.
	Attach     []string
	AttachLazy []string
	// DebugSkip names arguments whose value is never rendered.
	DebugSkip map[string]bool
	// DebugWith maps an argument name to the rendering function that
	// replaces the default debug string.
	DebugWith map[string]string
	// Capture overrides the global capture mode for this declaration:
	// "always", "disabled", or "auto". Empty means no override.
	Capture string
	// Closures and Goroutines are recognized but unsupported; the
	// generator reports them instead of silently ignoring them.
	Closures   bool
	Goroutines bool
}

// DirectiveError wraps a malformed directive with its declaration.
type DirectiveError struct {
	Func string
	Pos  token.Position
	Err  error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s: func %s: %v", e.Pos, e.Func, e.Err)
}

func (e *DirectiveError) Unwrap() error { return e.Err }

const directivePrefix = "//oofs:"

// ParseDirectives reads every `//oofs:` line in doc. Unknown directive
// names and malformed argument lists are errors; silently ignoring a
// typo would silently change what gets instrumented.
func ParseDirectives(doc *ast.CommentGroup) (Directive, error) {
	var d Directive
	if doc == nil {
		return d, nil
	}
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, directivePrefix) {
			continue
		}
		line := strings.TrimSpace(strings.TrimPrefix(c.Text, directivePrefix))
		if err := d.parseLine(line); err != nil {
			return d, err
		}
	}
	if d.Skip && d.Instrument {
		return d, fmt.Errorf("skip and instrument are mutually exclusive")
	}
	return d, nil
}

func (d *Directive) parseLine(line string) error {
	name, args, err := splitDirective(line)
	if err != nil {
		return err
	}
	switch name {
	case "skip":
		return noArgs(name, args, func() { d.Skip = true })
	case "instrument":
		return noArgs(name, args, func() { d.Instrument = true })
	case "closures":
		return noArgs(name, args, func() { d.Closures = true })
	case "goroutines":
		return noArgs(name, args, func() { d.Goroutines = true })
	case "tag":
		d.Tags = append(d.Tags, args...)
	case "attach":
		d.Attach = append(d.Attach, args...)
	case "attach_lazy":
		d.AttachLazy = append(d.AttachLazy, args...)
	case "debug_skip":
		if len(args) == 0 {
			return fmt.Errorf("debug_skip needs at least one argument name")
		}
		if d.DebugSkip == nil {
			d.DebugSkip = make(map[string]bool)
		}
		for _, a := range args {
			d.DebugSkip[a] = true
		}
	case "debug_with":
		if len(args) != 2 {
			return fmt.Errorf("debug_with wants (argument, renderFunc), got %d arguments", len(args))
		}
		if d.DebugWith == nil {
			d.DebugWith = make(map[string]string)
		}
		d.DebugWith[args[0]] = args[1]
	case "capture":
		if len(args) != 1 {
			return fmt.Errorf("capture wants exactly one of always, disabled, auto")
		}
		switch args[0] {
		case "always", "disabled", "auto":
			d.Capture = args[0]
		default:
			return fmt.Errorf("capture: unknown mode %q", args[0])
		}
	default:
		return fmt.Errorf("unknown directive %q", name)
	}
	return nil
}

func noArgs(name string, args []string, apply func()) error {
	if len(args) > 0 {
		return fmt.Errorf("%s takes no arguments", name)
	}
	apply()
	return nil
}

// splitDirective splits "tag(Retry, Fatal)" into the name and its
// top-level comma-separated arguments, respecting nested parentheses.
func splitDirective(line string) (string, []string, error) {
	open := strings.IndexByte(line, '(')
	if open < 0 {
		if strings.ContainsAny(line, " \t)") {
			return "", nil, fmt.Errorf("malformed directive %q", line)
		}
		return line, nil, nil
	}
	if !strings.HasSuffix(line, ")") {
		return "", nil, fmt.Errorf("unbalanced parentheses in %q", line)
	}
	name := line[:open]
	body := line[open+1 : len(line)-1]

	var args []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return "", nil, fmt.Errorf("unbalanced parentheses in %q", line)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, fmt.Errorf("unbalanced parentheses in %q", line)
	}
	if tail := strings.TrimSpace(body[start:]); tail != "" {
		args = append(args, tail)
	}
	return name, args, nil
}
