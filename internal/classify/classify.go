// Package classify discovers fallible-propagation sites in parsed Go
// source and describes each one precisely enough for injection: the
// call's shape, its arguments, the error variable, the failure-branch
// return to rewrite, and any meta-calls already chained onto the error.
//
// Classification is purely syntactic. No type information is loaded;
// the shape rules are chosen so that the rendered description is right
// for both package-qualified functions and method calls without
// distinguishing the two.
package classify

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"
)

// RuntimeAlias is the package identifier generated wrappers are
// addressed through. Meta-call recognition and the idempotence check
// both key on it.
const RuntimeAlias = "oofs"

// ShapeKind distinguishes how a site's callee is addressed.
type ShapeKind int

const (
	// KindFunc is a bare identifier call: parse(s).
	KindFunc ShapeKind = iota
	// KindMethod is a selector call whose base is an identifier chain:
	// c.Fetch(id), json.Unmarshal(b, &v). The base is rendered as
	// source text, never captured.
	KindMethod
	// KindMethodOn is a selector call on anything else (a call result,
	// a literal, an index): the receiver is captured as $0.
	KindMethodOn
	// KindValue is a fallible non-call expression, currently a channel
	// receive: err := <-errc. The expression text is the description.
	KindValue
)

// Shape is the classified callee of one site.
type Shape struct {
	Kind ShapeKind
	// Name is the callee identifier: "parse", "Unmarshal", "Fetch".
	Name string
	// Recv is the receiver/qualifier source text for KindMethod.
	Recv string
	// RecvExpr is the receiver expression to capture for KindMethodOn.
	RecvExpr ast.Expr
}

// MetaKind identifies one recognized meta-call wrapper.
type MetaKind int

const (
	MetaTag MetaKind = iota
	MetaAttach
	MetaAttachLazy
)

// MetaCall is one oofs.TagErr / oofs.AttachErr / oofs.AttachLazyErr
// application found wrapping the propagated error, innermost first.
type MetaCall struct {
	Kind MetaKind
	Arg  ast.Expr
}

// Site is one instrumentable propagation boundary.
type Site struct {
	// Call is the fallible call expression; nil for a KindValue site.
	Call *ast.CallExpr
	// Shape describes the callee.
	Shape Shape
	// Args are the call's arguments in order (receiver excluded).
	Args []ast.Expr
	// ErrName is the error variable the failure branch checks.
	ErrName string
	// Assign binds the error: the `v, err := call(...)` statement, or
	// the if's init assignment for the inline form.
	Assign *ast.AssignStmt
	// If is the `if err != nil` statement guarding the failure branch.
	If *ast.IfStmt
	// Return is the failure-branch return whose error result will be
	// replaced by a frame-building chain.
	Return *ast.ReturnStmt
	// Meta holds meta-calls already wrapped around the returned error,
	// innermost application first. Injection folds them into the frame.
	Meta []MetaCall
	// Pos is the call's source position.
	Pos token.Position
}

// Function is one declaration with its directives, eligibility, and
// discovered sites.
type Function struct {
	Decl      *ast.FuncDecl
	Directive Directive
	// Eligible reports whether this declaration's sites are
	// instrumented at all.
	Eligible bool
	Sites    []*Site
}

// Classifier scans files for instrumentable sites.
type Classifier struct {
	fset *token.FileSet
}

func New(fset *token.FileSet) *Classifier {
	return &Classifier{fset: fset}
}

// ScanFile classifies every function declaration in file. Parse errors
// in directives are reported per declaration.
func (c *Classifier) ScanFile(file *ast.File) ([]*Function, error) {
	var fns []*Function
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		fn, err := c.scanFunc(fd)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func (c *Classifier) scanFunc(fd *ast.FuncDecl) (*Function, error) {
	dir, err := ParseDirectives(fd.Doc)
	if err != nil {
		return nil, &DirectiveError{Func: fd.Name.Name, Pos: c.fset.Position(fd.Pos()), Err: err}
	}

	fn := &Function{Decl: fd, Directive: dir, Eligible: eligible(fd, dir)}
	if !fn.Eligible {
		return fn, nil
	}
	fn.Sites = c.scanStmts(fd.Body.List)
	return fn, nil
}

// eligible applies the instrumentation rule: free functions always,
// methods only when the result list ends in error. Directives override
// in both directions.
func eligible(fd *ast.FuncDecl, dir Directive) bool {
	if dir.Skip {
		return false
	}
	if dir.Instrument {
		return true
	}
	if fd.Recv == nil {
		return true
	}
	return resultsEndInError(fd.Type)
}

func resultsEndInError(ft *ast.FuncType) bool {
	if ft.Results == nil || len(ft.Results.List) == 0 {
		return false
	}
	last := ft.Results.List[len(ft.Results.List)-1]
	id, ok := last.Type.(*ast.Ident)
	return ok && id.Name == "error"
}

// scanStmts walks one statement list, recognizing the two site forms
// and recursing into nested blocks. Function literal bodies are never
// entered; failures raised inside a closure accumulate no frame here.
func (c *Classifier) scanStmts(stmts []ast.Stmt) []*Site {
	var sites []*Site
	for i := 0; i < len(stmts); i++ {
		switch s := stmts[i].(type) {
		case *ast.AssignStmt:
			if i+1 < len(stmts) {
				if next, ok := stmts[i+1].(*ast.IfStmt); ok {
					if site := c.matchAssignSite(s, next); site != nil {
						sites = append(sites, site)
						i++ // the if belongs to this site
						continue
					}
				}
			}
		case *ast.IfStmt:
			if site := c.matchIfInitSite(s); site != nil {
				sites = append(sites, site)
				// the body is owned by the site; still scan an else
				sites = append(sites, c.scanElse(s.Else)...)
				continue
			}
			sites = append(sites, c.scanStmts(s.Body.List)...)
			sites = append(sites, c.scanElse(s.Else)...)
		case *ast.BlockStmt:
			sites = append(sites, c.scanStmts(s.List)...)
		case *ast.ForStmt:
			sites = append(sites, c.scanStmts(s.Body.List)...)
		case *ast.RangeStmt:
			sites = append(sites, c.scanStmts(s.Body.List)...)
		case *ast.SwitchStmt:
			sites = append(sites, c.scanCases(s.Body)...)
		case *ast.TypeSwitchStmt:
			sites = append(sites, c.scanCases(s.Body)...)
		case *ast.SelectStmt:
			sites = append(sites, c.scanCases(s.Body)...)
		case *ast.LabeledStmt:
			sites = append(sites, c.scanNested(s.Stmt)...)
		}
	}
	return sites
}

// scanNested scans a labeled statement's body without treating the
// statement itself as a site; there is no slot in front of it for
// hoisted bindings.
func (c *Classifier) scanNested(s ast.Stmt) []*Site {
	switch t := s.(type) {
	case *ast.BlockStmt:
		return c.scanStmts(t.List)
	case *ast.IfStmt:
		sites := c.scanStmts(t.Body.List)
		return append(sites, c.scanElse(t.Else)...)
	case *ast.ForStmt:
		return c.scanStmts(t.Body.List)
	case *ast.RangeStmt:
		return c.scanStmts(t.Body.List)
	case *ast.SwitchStmt:
		return c.scanCases(t.Body)
	case *ast.TypeSwitchStmt:
		return c.scanCases(t.Body)
	case *ast.SelectStmt:
		return c.scanCases(t.Body)
	}
	return nil
}

// scanElse descends into an else branch. An `else if` is never itself
// a site - there is no statement slot in front of it for hoisted
// bindings - but its body and its own else still are scanned.
func (c *Classifier) scanElse(els ast.Stmt) []*Site {
	switch e := els.(type) {
	case *ast.BlockStmt:
		return c.scanStmts(e.List)
	case *ast.IfStmt:
		sites := c.scanStmts(e.Body.List)
		return append(sites, c.scanElse(e.Else)...)
	}
	return nil
}

func (c *Classifier) scanCases(body *ast.BlockStmt) []*Site {
	var sites []*Site
	for _, cs := range body.List {
		switch cc := cs.(type) {
		case *ast.CaseClause:
			sites = append(sites, c.scanStmts(cc.Body)...)
		case *ast.CommClause:
			sites = append(sites, c.scanStmts(cc.Body)...)
		}
	}
	return sites
}

// matchAssignSite recognizes
//
//	v, err := call(...)
//	if err != nil { ...; return ..., err }
func (c *Classifier) matchAssignSite(assign *ast.AssignStmt, ifs *ast.IfStmt) *Site {
	if assign.Tok != token.DEFINE && assign.Tok != token.ASSIGN {
		return nil
	}
	if len(assign.Rhs) != 1 || !fallibleRHS(assign.Rhs[0]) {
		return nil
	}
	last, ok := assign.Lhs[len(assign.Lhs)-1].(*ast.Ident)
	if !ok || last.Name == "_" {
		return nil
	}
	if ifs.Init != nil || condName(ifs.Cond) != last.Name {
		return nil
	}
	ret, meta := c.failureReturn(ifs.Body, last.Name)
	if ret == nil {
		return nil
	}
	site := c.newSite(assign.Rhs[0], last.Name, ifs, ret, meta)
	if site != nil {
		site.Assign = assign
	}
	return site
}

// matchIfInitSite recognizes
//
//	if err := call(...); err != nil { return ..., err }
func (c *Classifier) matchIfInitSite(ifs *ast.IfStmt) *Site {
	assign, ok := ifs.Init.(*ast.AssignStmt)
	if !ok || assign.Tok != token.DEFINE || len(assign.Rhs) != 1 || !fallibleRHS(assign.Rhs[0]) {
		return nil
	}
	last, ok := assign.Lhs[len(assign.Lhs)-1].(*ast.Ident)
	if !ok || last.Name == "_" {
		return nil
	}
	if condName(ifs.Cond) != last.Name {
		return nil
	}
	ret, meta := c.failureReturn(ifs.Body, last.Name)
	if ret == nil {
		return nil
	}
	site := c.newSite(assign.Rhs[0], last.Name, ifs, ret, meta)
	if site != nil {
		site.Assign = assign
	}
	return site
}

func (c *Classifier) newSite(rhs ast.Expr, errName string, ifs *ast.IfStmt, ret *ast.ReturnStmt, meta []MetaCall) *Site {
	site := &Site{
		ErrName: errName,
		If:      ifs,
		Return:  ret,
		Meta:    meta,
		Pos:     c.fset.Position(rhs.Pos()),
	}
	call, ok := rhs.(*ast.CallExpr)
	if !ok {
		site.Shape = Shape{Kind: KindValue, Name: c.ExprText(rhs)}
		return site
	}
	if isRuntimeCall(call) {
		return nil // a runtime entry point, never re-wrapped
	}
	site.Call = call
	site.Shape, site.Args = c.classifyCall(call)
	return site
}

// fallibleRHS reports whether e can bind an error in a one-result
// position: any call, or a channel receive. Plain identifiers and
// literals never cross a boundary.
func fallibleRHS(e ast.Expr) bool {
	switch t := e.(type) {
	case *ast.CallExpr:
		return true
	case *ast.UnaryExpr:
		return t.Op == token.ARROW
	}
	return false
}

// condName extracts the checked identifier from `<ident> != nil`.
func condName(cond ast.Expr) string {
	be, ok := cond.(*ast.BinaryExpr)
	if !ok || be.Op != token.NEQ {
		return ""
	}
	id, ok := be.X.(*ast.Ident)
	if !ok {
		return ""
	}
	if nilIdent, ok := be.Y.(*ast.Ident); !ok || nilIdent.Name != "nil" {
		return ""
	}
	return id.Name
}

// failureReturn finds the return statement terminating the failure
// branch whose final result propagates errName, peeling recognized
// meta-call wrappers. It returns nil when the branch does not
// propagate, or when the result is already a frame-building chain.
func (c *Classifier) failureReturn(body *ast.BlockStmt, errName string) (*ast.ReturnStmt, []MetaCall) {
	if len(body.List) == 0 {
		return nil, nil
	}
	ret, ok := body.List[len(body.List)-1].(*ast.ReturnStmt)
	if !ok || len(ret.Results) == 0 {
		return nil, nil
	}
	final := ret.Results[len(ret.Results)-1]
	if alreadyInstrumented(final) {
		return nil, nil
	}
	inner, meta := peelMeta(final)
	id, ok := inner.(*ast.Ident)
	if !ok || id.Name != errName {
		return nil, nil
	}
	return ret, meta
}

// peelMeta unwraps nested meta-calls around an error expression,
// returning the innermost expression and the wrappers innermost first.
func peelMeta(e ast.Expr) (ast.Expr, []MetaCall) {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return e, nil
	}
	kind, ok := metaKind(call)
	if !ok || len(call.Args) != 2 {
		return e, nil
	}
	inner, meta := peelMeta(call.Args[0])
	return inner, append(meta, MetaCall{Kind: kind, Arg: call.Args[1]})
}

func metaKind(call *ast.CallExpr) (MetaKind, bool) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return 0, false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Name != RuntimeAlias {
		return 0, false
	}
	switch sel.Sel.Name {
	case "TagErr":
		return MetaTag, true
	case "AttachErr":
		return MetaAttach, true
	case "AttachLazyErr":
		return MetaAttachLazy, true
	}
	return 0, false
}

// alreadyInstrumented reports whether e is a frame-building chain
// rooted in the runtime package, i.e. the site was generated before.
// Re-running the generator over its own output must change nothing.
func alreadyInstrumented(e ast.Expr) bool {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	switch x := sel.X.(type) {
	case *ast.Ident:
		return x.Name == RuntimeAlias
	case *ast.CallExpr:
		return alreadyInstrumented(x)
	}
	return false
}

// isRuntimeCall reports whether call addresses the runtime package
// itself; its own entry points are never re-wrapped.
func isRuntimeCall(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	id, ok := sel.X.(*ast.Ident)
	return ok && id.Name == RuntimeAlias
}

// classifyCall decides the site's shape and argument list.
func (c *Classifier) classifyCall(call *ast.CallExpr) (Shape, []ast.Expr) {
	switch fun := call.Fun.(type) {
	case *ast.Ident:
		return Shape{Kind: KindFunc, Name: fun.Name}, call.Args
	case *ast.SelectorExpr:
		if identChain(fun.X) {
			return Shape{Kind: KindMethod, Name: fun.Sel.Name, Recv: c.ExprText(fun.X)}, call.Args
		}
		return Shape{Kind: KindMethodOn, Name: fun.Sel.Name, RecvExpr: fun.X}, call.Args
	}
	// indexed/generic or parenthesized callee: render the whole callee
	// text as the name
	return Shape{Kind: KindFunc, Name: c.ExprText(call.Fun)}, call.Args
}

// identChain reports whether e is an identifier or a dotted chain of
// identifiers (x, x.y, x.y.z). Such a base reads the same before and
// after the call, so its source text is the best description and no
// capture slot is spent on it.
func identChain(e ast.Expr) bool {
	for {
		switch t := e.(type) {
		case *ast.Ident:
			return true
		case *ast.SelectorExpr:
			e = t.X
		default:
			return false
		}
	}
}

// ExprText renders an expression back to source text.
func (c *Classifier) ExprText(e ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, c.fset, e); err != nil {
		return "<expr>"
	}
	return strings.TrimSpace(buf.String())
}
