package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempSource writes src to a fresh .tml file under t.TempDir() and
// returns its path.
func writeTempSource(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// S1 — Hello: a trivial program must check and build cleanly, and the
// emitted IR must declare and call printf and return 0 from @main.
func TestBuildHello(t *testing.T) {
	path := writeTempSource(t, "hello.tml", `func main() -> I32 { print("hello"); return 0 }`)

	d := New()
	res, err := d.Build(Options{Src: path})
	require.NoError(t, err)
	for _, diagMsg := range res.Bag.All() {
		t.Logf("diagnostic: %s %s", diagMsg.Code, diagMsg.Message)
	}
	require.False(t, res.Bag.HasErrors())

	assert.Contains(t, res.IR, "@main")
	assert.Contains(t, res.IR, "printf")
	assert.Contains(t, res.IR, "hello")
}

// S2 — Generic instantiation: a call site with explicit type arguments
// must trigger monomorphization of a mangled definition.
func TestBuildGenericInstantiation(t *testing.T) {
	src := `
func id[T](x: T) -> T { return x }
func main() -> I32 { return id[I32](7) }
`
	path := writeTempSource(t, "generic.tml", src)

	d := New()
	res, err := d.Build(Options{Src: path})
	require.NoError(t, err)
	require.False(t, res.Bag.HasErrors())

	assert.Contains(t, res.IR, "id__I32")
}

// S4 — Borrow rejection: reassigning a variable while a shared borrow of
// it is still live must be rejected by the checker with no IR produced.
func TestCheckBorrowRejection(t *testing.T) {
	src := `
func main() -> I32 {
    var x = 1
    let r = ref x
    x = 2
    return r
}
`
	path := writeTempSource(t, "borrow.tml", src)

	d := New()
	res, err := d.Check(Options{Src: path})
	require.NoError(t, err)
	require.True(t, res.Bag.HasErrors())

	var codes []string
	for _, diagMsg := range res.Bag.All() {
		codes = append(codes, diagMsg.Code)
	}
	assert.Contains(t, codes, "B002")
}

// S5 — Virtual dispatch: a base/derived class pair with an overridden
// virtual method must emit a vtable per class and dispatch through it.
func TestBuildVirtualDispatch(t *testing.T) {
	src := `
class Animal { virtual func speak(this) -> Str { return "?" } }
class Dog extends Animal { override func speak(this) -> Str { return "woof" } }
func main() -> I32 { let a: Animal = new Dog(); print(a.speak()); return 0 }
`
	path := writeTempSource(t, "virtual.tml", src)

	d := New()
	res, err := d.Build(Options{Src: path})
	require.NoError(t, err)
	for _, diagMsg := range res.Bag.All() {
		t.Logf("diagnostic: %s %s", diagMsg.Code, diagMsg.Message)
	}
	require.False(t, res.Bag.HasErrors())

	assert.Contains(t, res.IR, "vtable.Animal")
	assert.Contains(t, res.IR, "vtable.Dog")
	assert.Contains(t, res.IR, "woof")
}

// S6 — Closure capture: a closure that mutates an enclosing `var` must
// write through the captured variable's own alloca, so the effect is
// observable after the closure returns.
func TestBuildClosureCapture(t *testing.T) {
	src := `
func main() -> I32 {
    var n = 10
    let add = |x: I32| -> I32 { n = n + x; n };
    add(5);
    add(3);
    return n
}
`
	path := writeTempSource(t, "capture.tml", src)

	d := New()
	res, err := d.Build(Options{Src: path})
	require.NoError(t, err)
	for _, diagMsg := range res.Bag.All() {
		t.Logf("diagnostic: %s %s", diagMsg.Code, diagMsg.Message)
	}
	require.False(t, res.Bag.HasErrors())

	assert.Contains(t, res.IR, "closure$")
	assert.Contains(t, res.IR, "malloc")
}

// Build with no --src must fall back to reading one program from stdin,
// the way the teacher's util.ReadSource let VSL compile from a pipe.
func TestBuildReadsFromStdinWhenSrcEmpty(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString(`func main() -> I32 { return 0 }`)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()

	d := New()
	res, err := d.Build(Options{})
	require.NoError(t, err)
	require.False(t, res.Bag.HasErrors())
	assert.Contains(t, res.IR, "@main")
}

func TestBuildReportsLoadErrorForMissingFile(t *testing.T) {
	d := New()
	res, err := d.Build(Options{Src: filepath.Join(t.TempDir(), "missing.tml")})
	require.NoError(t, err)
	require.True(t, res.Bag.HasErrors())
	assert.Equal(t, "E001", res.Bag.All()[0].Code)
}

func TestBuildCachesRepeatCompiles(t *testing.T) {
	path := writeTempSource(t, "hello.tml", `func main() -> I32 { return 0 }`)

	d := New()
	first, err := d.Build(Options{Src: path})
	require.NoError(t, err)
	require.False(t, first.Bag.HasErrors())

	second, err := d.Build(Options{Src: path})
	require.NoError(t, err)
	require.False(t, second.Bag.HasErrors())
	assert.Equal(t, first.IR, second.IR)
}

func TestRunReturnsIRPathNextToSource(t *testing.T) {
	path := writeTempSource(t, "prog.tml", `func main() -> I32 { return 0 }`)

	d := New()
	res, err := d.Run(Options{Src: path})
	require.NoError(t, err)
	require.False(t, res.Bag.HasErrors())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "prog.ll"), res.IRPath)
}

func TestCompileAllIndependentUnits(t *testing.T) {
	a := writeTempSource(t, "a.tml", `func helper() -> I32 { return 1 }`)
	b := writeTempSource(t, "b.tml", `func main() -> I32 { return 0 }`)

	d := New()
	res, err := d.CompileAll([]string{a, b}, Options{})
	require.NoError(t, err)
	for _, diagMsg := range res.Bag.All() {
		t.Logf("diagnostic: %s %s", diagMsg.Code, diagMsg.Message)
	}
	require.False(t, res.Bag.HasErrors())
	assert.Len(t, res.IR, 2)
}
