// Package inject rewrites classified source so that every
// fallible-propagation site wraps its error in a context frame. The
// rewrite keeps the success path untouched apart from hoisted argument
// bindings: the frame chain is only built inside the failure branch.
//
// For each site the injector
//
//  1. binds every mutable-handle argument to a fresh temporary ahead of
//     the call, preserving left-to-right evaluation order,
//  2. hoists an eager capture of each temporary whose policy demands
//     one,
//  3. replaces the failure-branch error result with a frame-building
//     chain that records the call description, location, parameter
//     renderings, and any directive or meta-call tags and attachments.
//
// The output is gofmt-formatted and a fixed point: rewriting already
// instrumented source changes nothing.
package inject

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/tools/go/ast/astutil"

	"github.com/PoOnesNerfect/oofs/internal/capture"
	"github.com/PoOnesNerfect/oofs/internal/classify"
)

// DefaultRuntimeImport is the runtime package generated code calls into.
const DefaultRuntimeImport = "github.com/PoOnesNerfect/oofs"

// Config controls one rewriting pass.
type Config struct {
	Capture       capture.Config
	RuntimeImport string
}

// Stats summarizes what one file rewrite changed.
type Stats struct {
	// Functions with at least one instrumented site.
	Functions int
	// Sites instrumented.
	Sites int
	// Ensures rewritten to carry their expression text.
	Ensures int
}

// Changed reports whether the rewrite produced any modification.
func (s Stats) Changed() bool { return s.Functions > 0 || s.Sites > 0 || s.Ensures > 0 }

// Rewriter instruments parsed files. Safe for sequential reuse across
// files; each file gets its own FileSet.
type Rewriter struct {
	log *zap.Logger
	cfg Config
}

func New(log *zap.Logger, cfg Config) *Rewriter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RuntimeImport == "" {
		cfg.RuntimeImport = DefaultRuntimeImport
	}
	return &Rewriter{log: log, cfg: cfg}
}

// RewriteSource parses src, instruments every eligible site, and
// returns the formatted result. The input bytes are never modified.
func (r *Rewriter) RewriteSource(filename string, src []byte) ([]byte, Stats, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	cls := classify.New(fset)
	fns, err := cls.ScanFile(file)
	if err != nil {
		return nil, Stats{}, err
	}

	var stats Stats
	for _, fn := range fns {
		r.reportUnsupported(fn)
		if !fn.Directive.Skip {
			stats.Ensures += rewriteEnsures(fn.Decl, cls)
		}
		if !fn.Eligible || len(fn.Sites) == 0 {
			continue
		}
		g, err := r.newFuncGen(cls, fn)
		if err != nil {
			return nil, Stats{}, err
		}
		for _, site := range fn.Sites {
			if err := g.instrument(site); err != nil {
				return nil, Stats{}, err
			}
			stats.Sites++
		}
		stats.Functions++
		r.log.Debug("instrumented function",
			zap.String("file", filename),
			zap.String("func", fn.Decl.Name.Name),
			zap.Int("sites", len(fn.Sites)))
	}

	if stats.Sites > 0 {
		astutil.AddImport(fset, file, r.cfg.RuntimeImport)
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, Stats{}, fmt.Errorf("format %s: %w", filename, err)
	}
	return buf.Bytes(), stats, nil
}

func (r *Rewriter) reportUnsupported(fn *classify.Function) {
	if fn.Directive.Closures {
		r.log.Warn("closures directive is not supported; function literal bodies stay uninstrumented",
			zap.String("func", fn.Decl.Name.Name))
	}
	if fn.Directive.Goroutines {
		r.log.Warn("goroutines directive is not supported; spawned goroutines stay uninstrumented",
			zap.String("func", fn.Decl.Name.Name))
	}
}

// funcGen holds the per-function rewrite state: the temp-name counters
// and the capture configuration after directive overrides.
type funcGen struct {
	cls    *classify.Classifier
	fn     *classify.Function
	capCfg capture.Config
	nBind  int
	nCap   int
}

func (r *Rewriter) newFuncGen(cls *classify.Classifier, fn *classify.Function) (*funcGen, error) {
	capCfg := r.cfg.Capture
	if o := fn.Directive.Capture; o != "" {
		mode, err := capture.ParseMode(o)
		if err != nil {
			return nil, fmt.Errorf("func %s: %w", fn.Decl.Name.Name, err)
		}
		capCfg.Mode = mode
	}
	return &funcGen{cls: cls, fn: fn, capCfg: capCfg}, nil
}

func (g *funcGen) bindName() string {
	n := fmt.Sprintf("__oof%d", g.nBind)
	g.nBind++
	return n
}

func (g *funcGen) capName() string {
	n := fmt.Sprintf("__oofCap%d", g.nCap)
	g.nCap++
	return n
}

// instrument rewrites one site in place.
func (g *funcGen) instrument(site *classify.Site) error {
	var (
		bindings []ast.Stmt
		chain    strings.Builder
	)

	loc := fmt.Sprintf("%s.At(%q, %d, %d)",
		classify.RuntimeAlias, site.Pos.Filename, site.Pos.Line, site.Pos.Column)

	switch site.Shape.Kind {
	case classify.KindFunc:
		fmt.Fprintf(&chain, "%s.Func(%q, %s)", classify.RuntimeAlias, site.Shape.Name, loc)
	case classify.KindMethod:
		fmt.Fprintf(&chain, "%s.Method(%q, %q, %s)", classify.RuntimeAlias, site.Shape.Recv, site.Shape.Name, loc)
	case classify.KindMethodOn:
		fmt.Fprintf(&chain, "%s.MethodOn(%q, %s)", classify.RuntimeAlias, site.Shape.Name, loc)
		if err := g.bindReceiver(site, &bindings, &chain); err != nil {
			return err
		}
	case classify.KindValue:
		fmt.Fprintf(&chain, "%s.Value(%q, %s)", classify.RuntimeAlias, site.Shape.Name, loc)
	}

	for i, arg := range site.Args {
		if err := g.bindArg(site, i, arg, &bindings, &chain); err != nil {
			return err
		}
	}

	writeDirectiveMeta(&chain, g.fn.Directive, site.Meta, g.cls)
	fmt.Fprintf(&chain, ".Wrap(%s)", site.ErrName)

	chainExpr, err := parser.ParseExpr(chain.String())
	if err != nil {
		return fmt.Errorf("%s: building frame chain: %w", site.Pos, err)
	}
	site.Return.Results[len(site.Return.Results)-1] = chainExpr

	if len(bindings) > 0 {
		insertBefore(g.fn.Decl, anchorStmt(site), bindings)
	}
	return nil
}

// bindReceiver hoists the captured receiver of a KindMethodOn site.
// The receiver is always bound so the call evaluates it exactly once.
func (g *funcGen) bindReceiver(site *classify.Site, bindings *[]ast.Stmt, chain *strings.Builder) error {
	recv := site.Shape.RecvExpr
	temp := g.bindName()
	*bindings = append(*bindings, defineStmt(temp, recv))
	site.Call.Fun.(*ast.SelectorExpr).X = ast.NewIdent(temp)

	switch g.capCfg.Decide(recv) {
	case capture.Skip:
		fmt.Fprintf(chain, ".ParamSkipped(%s)", temp)
	case capture.Lazy:
		fmt.Fprintf(chain, ".Param(%s)", temp)
	default:
		cp := g.capName()
		*bindings = append(*bindings, captureStmt(cp, temp))
		fmt.Fprintf(chain, ".ParamEager(%s)", cp)
	}
	return nil
}

// bindArg plans one call argument: inline literals stay in place and
// re-render in the failure branch; everything else is bound to a temp,
// with an eager capture hoisted when the policy demands one.
func (g *funcGen) bindArg(site *classify.Site, i int, arg ast.Expr, bindings *[]ast.Stmt, chain *strings.Builder) error {
	argText := g.cls.ExprText(arg)

	if fn, ok := g.fn.Directive.DebugWith[argText]; ok {
		temp := g.bindName()
		*bindings = append(*bindings, defineStmt(temp, arg))
		site.Call.Args[i] = ast.NewIdent(temp)

		cp := g.capName()
		capExpr, err := parser.ParseExpr(fmt.Sprintf("%s.CaptureString(%s, %s(%s))",
			classify.RuntimeAlias, temp, fn, temp))
		if err != nil {
			return fmt.Errorf("%s: debug_with(%s, %s): %w", site.Pos, argText, fn, err)
		}
		*bindings = append(*bindings, defineStmt(cp, capExpr))
		fmt.Fprintf(chain, ".ParamEager(%s)", cp)
		return nil
	}

	policy := g.capCfg.Decide(arg)
	if g.fn.Directive.DebugSkip[argText] {
		policy = capture.Skip
	}

	if policy == capture.Lazy {
		fmt.Fprintf(chain, ".Param(%s)", argText)
		return nil
	}

	temp := g.bindName()
	*bindings = append(*bindings, defineStmt(temp, arg))
	site.Call.Args[i] = ast.NewIdent(temp)

	switch policy {
	case capture.Skip:
		fmt.Fprintf(chain, ".ParamSkipped(%s)", temp)
	default:
		cp := g.capName()
		*bindings = append(*bindings, captureStmt(cp, temp))
		fmt.Fprintf(chain, ".ParamEager(%s)", cp)
	}
	return nil
}

// writeDirectiveMeta folds declaration directives and site meta-calls
// into the chain, directives first, meta-calls in application order.
func writeDirectiveMeta(chain *strings.Builder, dir classify.Directive, meta []classify.MetaCall, cls *classify.Classifier) {
	for _, t := range dir.Tags {
		fmt.Fprintf(chain, ".Tag(%s)", t)
	}
	for _, a := range dir.Attach {
		fmt.Fprintf(chain, ".Attach(%s)", a)
	}
	for _, a := range dir.AttachLazy {
		fmt.Fprintf(chain, ".AttachLazy(%s)", a)
	}
	for _, m := range meta {
		arg := cls.ExprText(m.Arg)
		switch m.Kind {
		case classify.MetaTag:
			fmt.Fprintf(chain, ".Tag(%s)", arg)
		case classify.MetaAttach:
			fmt.Fprintf(chain, ".Attach(%s)", arg)
		case classify.MetaAttachLazy:
			fmt.Fprintf(chain, ".AttachLazy(%s)", arg)
		}
	}
}

func defineStmt(name string, rhs ast.Expr) ast.Stmt {
	return &ast.AssignStmt{
		Lhs: []ast.Expr{ast.NewIdent(name)},
		Tok: token.DEFINE,
		Rhs: []ast.Expr{rhs},
	}
}

func captureStmt(capName, bindName string) ast.Stmt {
	return defineStmt(capName, &ast.CallExpr{
		Fun: &ast.SelectorExpr{
			X:   ast.NewIdent(classify.RuntimeAlias),
			Sel: ast.NewIdent("Capture"),
		},
		Args: []ast.Expr{ast.NewIdent(bindName)},
	})
}

// anchorStmt is the statement the hoisted bindings go in front of: the
// binding assignment for the two-statement form, the if itself when
// the call sits in the if's init.
func anchorStmt(site *classify.Site) ast.Stmt {
	if site.Assign != nil && site.If.Init != site.Assign {
		return site.Assign
	}
	return site.If
}

// insertBefore splices stmts ahead of anchor inside decl.
func insertBefore(decl *ast.FuncDecl, anchor ast.Stmt, stmts []ast.Stmt) {
	astutil.Apply(decl, func(c *astutil.Cursor) bool {
		if c.Node() == anchor {
			for _, s := range stmts {
				c.InsertBefore(s)
			}
			return false
		}
		return true
	}, nil)
}

// rewriteEnsures rewrites oofs.Ensure(cond, ...) calls inside one
// declaration into oofs.EnsureExpr(cond, "<cond source>", ...) so the
// default assertion message names the asserted expression. Skipped
// declarations never reach here: skip excludes the whole item.
func rewriteEnsures(decl *ast.FuncDecl, cls *classify.Classifier) int {
	count := 0
	ast.Inspect(decl, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Ensure" {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok || pkg.Name != classify.RuntimeAlias {
			return true
		}
		lit := &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(cls.ExprText(call.Args[0]))}
		call.Args = append([]ast.Expr{call.Args[0], lit}, call.Args[1:]...)
		sel.Sel = ast.NewIdent("EnsureExpr")
		count++
		return true
	})
	return count
}
