package classify

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanSrc(t *testing.T, src string) []*Function {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	require.NoError(t, err)
	fns, scanErr := New(fset).ScanFile(f)
	require.NoError(t, scanErr)
	return fns
}

func TestAssignSite(t *testing.T) {
	fns := scanSrc(t, `package p

func load(path string) (int, error) {
	n, err := parse(path)
	if err != nil {
		return 0, err
	}
	return n, nil
}
`)
	require.Len(t, fns, 1)
	require.Len(t, fns[0].Sites, 1)

	s := fns[0].Sites[0]
	assert.Equal(t, KindFunc, s.Shape.Kind)
	assert.Equal(t, "parse", s.Shape.Name)
	assert.Equal(t, "err", s.ErrName)
	assert.Len(t, s.Args, 1)
	assert.NotNil(t, s.Assign)
	assert.NotNil(t, s.Return)
	assert.Empty(t, s.Meta)
}

func TestIfInitSite(t *testing.T) {
	fns := scanSrc(t, `package p

func touch(c *conn) error {
	if err := c.Ping(); err != nil {
		return err
	}
	return nil
}
`)
	require.Len(t, fns[0].Sites, 1)

	s := fns[0].Sites[0]
	assert.Equal(t, KindMethod, s.Shape.Kind)
	assert.Equal(t, "Ping", s.Shape.Name)
	assert.Equal(t, "c", s.Shape.Recv)
	assert.Same(t, s.If.Init, ast.Stmt(s.Assign), "the binding is the if's init")
}

func TestShapes(t *testing.T) {
	fns := scanSrc(t, `package p

func shapes(b []byte) error {
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := cfg.db.primary.Ping(); err != nil {
		return err
	}
	if err := open().Close(); err != nil {
		return err
	}
	return nil
}
`)
	sites := fns[0].Sites
	require.Len(t, sites, 3)

	assert.Equal(t, KindMethod, sites[0].Shape.Kind)
	assert.Equal(t, "json", sites[0].Shape.Recv)
	assert.Equal(t, "Unmarshal", sites[0].Shape.Name)
	assert.Len(t, sites[0].Args, 2)

	assert.Equal(t, KindMethod, sites[1].Shape.Kind)
	assert.Equal(t, "cfg.db.primary", sites[1].Shape.Recv)

	assert.Equal(t, KindMethodOn, sites[2].Shape.Kind)
	assert.Equal(t, "Close", sites[2].Shape.Name)
	require.NotNil(t, sites[2].Shape.RecvExpr)
}

func TestBareValueSite(t *testing.T) {
	fns := scanSrc(t, `package p

func wait(errc chan error) error {
	if err := <-errc; err != nil {
		return err
	}
	return nil
}
`)
	require.Len(t, fns[0].Sites, 1)

	s := fns[0].Sites[0]
	assert.Equal(t, KindValue, s.Shape.Kind)
	assert.Equal(t, "<-errc", s.Shape.Name)
	assert.Nil(t, s.Call)
	assert.Empty(t, s.Args)
}

func TestNonSites(t *testing.T) {
	fns := scanSrc(t, `package p

func skip(path string) error {
	n, err := parse(path) // checked against a different variable
	if other != nil {
		return err
	}
	_ = n

	v, _ := lookup(path) // error discarded
	_ = v

	if err := validate(path); err != nil {
		return errors.New("wrapped by hand") // not propagating err
	}

	err2 := errors.New("tail") // plain value, no call boundary
	return err2
}
`)
	assert.Empty(t, fns[0].Sites)
}

func TestMetaCalls(t *testing.T) {
	fns := scanSrc(t, `package p

func fetch(id string) error {
	if err := dial(id); err != nil {
		return oofs.TagErr(oofs.AttachErr(err, id), Retry)
	}
	return nil
}
`)
	require.Len(t, fns[0].Sites, 1)

	meta := fns[0].Sites[0].Meta
	require.Len(t, meta, 2)
	assert.Equal(t, MetaAttach, meta[0].Kind, "innermost application first")
	assert.Equal(t, MetaTag, meta[1].Kind)
}

func TestAlreadyInstrumented(t *testing.T) {
	fns := scanSrc(t, `package p

func load(path string) (int, error) {
	__oof0 := path
	n, err := parse(__oof0)
	if err != nil {
		return 0, oofs.Func("parse", oofs.At("src.go", 5, 12)).Param(__oof0).Wrap(err)
	}
	return n, nil
}
`)
	assert.Empty(t, fns[0].Sites, "generated output must classify to zero sites")
}

func TestRuntimeCallsNotWrapped(t *testing.T) {
	fns := scanSrc(t, `package p

func check(n int) error {
	if err := oofs.EnsureExpr(n > 0, "n > 0"); err != nil {
		return err
	}
	return nil
}
`)
	assert.Empty(t, fns[0].Sites)
}

func TestMethodEligibility(t *testing.T) {
	fns := scanSrc(t, `package p

func (s *server) Start() error {
	if err := s.listen(); err != nil {
		return err
	}
	return nil
}

func (s *server) Addr() string {
	if err := s.refresh(); err != nil {
		return err
	}
	return s.addr
}

//oofs:instrument
func (s *server) forced() string {
	if err := s.refresh(); err != nil {
		return err
	}
	return s.addr
}
`)
	require.Len(t, fns, 3)
	assert.True(t, fns[0].Eligible)
	assert.Len(t, fns[0].Sites, 1)

	assert.False(t, fns[1].Eligible, "method results do not end in error")
	assert.Empty(t, fns[1].Sites)

	assert.True(t, fns[2].Eligible)
	assert.Len(t, fns[2].Sites, 1)
}

func TestClosureBodiesNotEntered(t *testing.T) {
	fns := scanSrc(t, `package p

func spawn() error {
	go func() {
		if err := work(); err != nil {
			return
		}
	}()
	run(func() error {
		if err := work(); err != nil {
			return err
		}
		return nil
	})
	return nil
}
`)
	assert.Empty(t, fns[0].Sites)
}

func TestNestedBlocks(t *testing.T) {
	fns := scanSrc(t, `package p

func retry(paths []string) error {
	for _, p := range paths {
		switch {
		case p != "":
			if err := open(p); err != nil {
				return err
			}
		}
	}
	return nil
}
`)
	require.Len(t, fns[0].Sites, 1)
	assert.Equal(t, "open", fns[0].Sites[0].Shape.Name)
}
