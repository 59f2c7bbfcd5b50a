package kernels

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/reusee/tainb/outputs"
	"go.starlark.net/starlark"
)

func mustSucceed(t *testing.T, k *Kernel, fragment string) *ExecutionRecord {
	t.Helper()
	record := k.Execute(fragment)
	if !record.Success {
		t.Fatalf("%q: got %+v", fragment, record.Diagnostics())
	}
	if text := record.StreamText(outputs.Stderr); text != "" {
		t.Fatalf("%q: %s", fragment, text)
	}
	return record
}

func TestExecuteResult(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "x = 10")
	record := mustSucceed(t, k, "x * 3")
	if record.Sequence != 2 {
		t.Fatalf("got %d", record.Sequence)
	}
	eq, err := starlark.Equal(record.ReturnValue, starlark.MakeInt(30))
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Fatalf("got %v", record.ReturnValue)
	}
	results := record.Results()
	if len(results) != 1 || len(record.Outputs) != 1 {
		t.Fatalf("got %+v", record.Outputs)
	}
	if s := results[0].Data.Plain(); s != "30" {
		t.Fatalf("got %q", s)
	}
	if results[0].ExecutionCount != 2 {
		t.Fatalf("got %d", results[0].ExecutionCount)
	}
}

func TestExecuteDivisionByZero(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "x = 1")
	record := k.Execute("1/0")
	if record.Success {
		t.Fatal("should fail")
	}
	diags := record.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("got %+v", record.Outputs)
	}
	if diags[0].EName != KindZeroDivision {
		t.Fatalf("got %+v", diags[0])
	}
	if record.Error == "" || record.ReturnValue != nil {
		t.Fatalf("got %+v", record)
	}
	if len(diags[0].Traceback) == 0 {
		t.Fatal("expecting traceback")
	}
	mustSucceed(t, k, "x")
}

func TestExecutePreservesBindingsOnError(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "a = 1\nb = 2")
	record := k.Execute("a = 100\nc = 3\n{}['missing']\nb = 200")
	if record.Success {
		t.Fatal("should fail")
	}
	if kind := record.Diagnostics()[0].EName; kind != KindKey {
		t.Fatalf("got %s", kind)
	}
	for name, want := range map[string]int{
		"a": 100,
		"b": 2,
		"c": 3,
	} {
		v, ok := k.Binding(name)
		if !ok {
			t.Fatalf("%s not bound", name)
		}
		if v.String() != starlark.MakeInt(want).String() {
			t.Fatalf("%s: got %v", name, v)
		}
	}
}

func TestExecuteSyntaxNotice(t *testing.T) {
	k := New(nil, 0)
	record := k.Execute("x = (")
	if !record.Success {
		t.Fatalf("got %+v", record)
	}
	if len(record.Diagnostics()) != 0 {
		t.Fatalf("got %+v", record.Outputs)
	}
	if text := record.StreamText(outputs.Stderr); !strings.Contains(text, "<cell-1>") {
		t.Fatalf("got %q", text)
	}
	if record.Sequence != 1 || k.Sequence() != 1 {
		t.Fatalf("got %d", record.Sequence)
	}

	record = k.Execute("return 1")
	if !record.Success || record.StreamText(outputs.Stderr) == "" {
		t.Fatalf("got %+v", record)
	}
}

func TestExecuteStreams(t *testing.T) {
	k := New(nil, 0)
	record := k.Execute(`
load("notebook", "eprint")
print("hello")
eprint("oops", 42)
print("world")
"done"
`)
	if !record.Success {
		t.Fatalf("got %+v", record.Diagnostics())
	}
	if len(record.Outputs) != 3 {
		t.Fatalf("got %+v", record.Outputs)
	}
	stdout, ok := record.Outputs[0].(outputs.Stream)
	if !ok || stdout.Name != outputs.Stdout || stdout.Text != "hello\nworld\n" {
		t.Fatalf("got %+v", record.Outputs[0])
	}
	stderr, ok := record.Outputs[1].(outputs.Stream)
	if !ok || stderr.Name != outputs.Stderr || stderr.Text != "oops 42\n" {
		t.Fatalf("got %+v", record.Outputs[1])
	}
	if _, ok := record.Outputs[2].(outputs.EvaluatedResult); !ok {
		t.Fatalf("got %+v", record.Outputs[2])
	}
	if k.Stdout() != os.Stdout || k.Stderr() != os.Stderr {
		t.Fatal("channels not restored")
	}
}

func TestExecuteNoneResult(t *testing.T) {
	k := New(nil, 0)
	record := mustSucceed(t, k, `print("x")`)
	if record.ReturnValue != nil || len(record.Results()) != 0 {
		t.Fatalf("got %+v", record)
	}
	record = mustSucceed(t, k, "None")
	if len(record.Outputs) != 0 {
		t.Fatalf("got %+v", record.Outputs)
	}
}

func TestExecuteRebinding(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "x = 1")
	mustSucceed(t, k, "x = x + 1")
	mustSucceed(t, k, "x += 1")
	mustSucceed(t, k, "for i in range(3):\n    x += 1")
	v, _ := k.Binding("x")
	if v.String() != "6" {
		t.Fatalf("got %v", v)
	}
}

func TestExecuteLateBinding(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "def f():\n    return g() + y")
	mustSucceed(t, k, "def g():\n    return 10")
	mustSucceed(t, k, "y = 1")
	record := mustSucceed(t, k, "f()")
	if record.ReturnValue.String() != "11" {
		t.Fatalf("got %v", record.ReturnValue)
	}
	mustSucceed(t, k, "y = 2")
	record = mustSucceed(t, k, "f()")
	if record.ReturnValue.String() != "12" {
		t.Fatalf("got %v", record.ReturnValue)
	}
}

func TestExecuteErrorKinds(t *testing.T) {
	cases := []struct {
		fragment string
		kind     string
	}{
		{"1 // 0", KindZeroDivision},
		{"1 % 0", KindZeroDivision},
		{"undefined_thing", KindName},
		{"[1][5]", KindIndex},
		{"{}['a']", KindKey},
		{"1 + 'a'", KindType},
		{"fail('boom')", KindFailure},
		{`load("nope", "x")`, KindLoad},
		{"'abc'.nope", KindAttribute},
	}
	for _, c := range cases {
		k := New(nil, 0)
		record := k.Execute(c.fragment)
		if record.Success {
			t.Fatalf("%s: should fail", c.fragment)
		}
		diags := record.Diagnostics()
		if len(diags) != 1 || diags[0].EName != c.kind {
			t.Fatalf("%s: got %+v", c.fragment, diags)
		}
	}

	k := New(nil, 0)
	record := k.Execute("undefined_thing")
	if record.Error != `name "undefined_thing" is not defined` {
		t.Fatalf("got %q", record.Error)
	}
}

func TestExecutePanic(t *testing.T) {
	k := New(nil, 0)
	if err := k.SetBinding("boom", starlark.NewBuiltin("boom", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		panic("bad")
	})); err != nil {
		t.Fatal(err)
	}
	record := k.Execute("print('before')\nboom()")
	if record.Success {
		t.Fatal("should fail")
	}
	if kind := record.Diagnostics()[0].EName; kind != KindPanic {
		t.Fatalf("got %s", kind)
	}
	if text := record.StreamText(outputs.Stdout); text != "before\n" {
		t.Fatalf("got %q", text)
	}
	if k.Stdout() != os.Stdout {
		t.Fatal("stdout not restored")
	}
	mustSucceed(t, k, "1")
}

func TestExecuteContextCancel(t *testing.T) {
	k := New(nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	record := k.ExecuteContext(ctx, "x = 1")
	if record.Success || record.Diagnostics()[0].EName != KindCancelled {
		t.Fatalf("got %+v", record)
	}
	if _, ok := k.Binding("x"); ok {
		t.Fatal("should not run")
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	record = k.ExecuteContext(ctx, "while True:\n    pass")
	if record.Success || record.Diagnostics()[0].EName != KindCancelled {
		t.Fatalf("got %+v", record)
	}
	if k.Sequence() != 2 {
		t.Fatalf("got %d", k.Sequence())
	}
}

func TestExecuteLibraries(t *testing.T) {
	k := New(nil, 0)
	record := mustSucceed(t, k, `
load("json", "json")
load("math", "sqrt")
json.encode({"a": sqrt(16)})
`)
	if s, ok := record.ReturnValue.(starlark.String); !ok || string(s) != `{"a":4.0}` {
		t.Fatalf("got %v", record.ReturnValue)
	}
	if names := k.UserBindings(); len(names) != 2 || names[0] != "json" || names[1] != "sqrt" {
		t.Fatalf("got %v", names)
	}
}

func TestBindings(t *testing.T) {
	k := New(nil, 0)
	if err := k.SetBinding("n", 42); err != nil {
		t.Fatal(err)
	}
	if err := k.SetBinding("m", map[string]any{"a": []any{1, "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := k.SetBinding(notebookName, 1); err == nil {
		t.Fatal("should error")
	}
	if err := k.SetBinding("ch", make(chan int)); err == nil {
		t.Fatal("should error")
	}
	record := mustSucceed(t, k, "n + len(m['a'])")
	if record.ReturnValue.String() != "44" {
		t.Fatalf("got %v", record.ReturnValue)
	}
	mustSucceed(t, k, "_hidden = 1")

	if names := k.UserBindings(); strings.Join(names, ",") != "m,n" {
		t.Fatalf("got %v", names)
	}

	snapshot := k.BindingsSnapshot()
	delete(snapshot, "n")
	snapshot["z"] = starlark.None
	if _, ok := k.Binding("n"); !ok {
		t.Fatal("snapshot should be a copy")
	}
	if _, ok := k.Binding("z"); ok {
		t.Fatal("snapshot should be a copy")
	}

	k.DeleteBinding("n")
	k.DeleteBinding("n")
	k.DeleteBinding(priorName)
	if _, ok := k.Binding("n"); ok {
		t.Fatal("should be deleted")
	}
	if _, ok := k.Binding(priorName); !ok {
		t.Fatal("sentinel should stay")
	}
}

func TestReset(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "x = 1")
	mustSucceed(t, k, "def f():\n    return x")
	k.Reset()
	if k.Sequence() != 0 || len(k.History()) != 0 || len(k.UserBindings()) != 0 {
		t.Fatalf("got %d %v %v", k.Sequence(), k.History(), k.UserBindings())
	}
	if _, ok := k.Binding(notebookName); !ok {
		t.Fatal("sentinel not reinstalled")
	}
	record := mustSucceed(t, k, "x = 2\nx")
	if record.Sequence != 1 || record.ReturnValue.String() != "2" {
		t.Fatalf("got %+v", record)
	}
}

func TestHistory(t *testing.T) {
	k := New(nil, 3)
	for _, fragment := range []string{"1", "1/0", "x = (", "2", "3"} {
		k.Execute(fragment)
	}
	history := k.History()
	if len(history) != 3 {
		t.Fatalf("got %d", len(history))
	}
	if history[0].Sequence != 3 || history[0].Fragment != "x = (" {
		t.Fatalf("got %+v", history[0])
	}
	if history[2].Record.ReturnValue.String() != "3" {
		t.Fatalf("got %+v", history[2])
	}
	history[0].Fragment = "changed"
	if k.History()[0].Fragment == "changed" {
		t.Fatal("history should be a copy")
	}

	k.RestoreState(10, history[:1])
	if k.Sequence() != 10 || len(k.History()) != 1 {
		t.Fatalf("got %d %d", k.Sequence(), len(k.History()))
	}
	if record := k.Execute("1"); record.Sequence != 11 {
		t.Fatalf("got %d", record.Sequence)
	}
}

func TestFunctionSource(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, "base = 3\ndef f(x):\n    return x * base\n\ng = lambda y: f(y) + 1")

	fv, _ := k.Binding("f")
	src, ok := k.FunctionSource(fv.(*starlark.Function))
	if !ok {
		t.Fatal("no source")
	}
	if src.Name != "f" || src.Source != "def f(x):\n    return x * base\n" {
		t.Fatalf("got %+v", src)
	}
	gv, _ := k.Binding("g")
	gsrc, ok := k.FunctionSource(gv.(*starlark.Function))
	if !ok || gsrc.Name != "g" || gsrc.Source != "g = lambda y: f(y) + 1\n" {
		t.Fatalf("got %+v", gsrc)
	}

	k2 := New(nil, 0)
	if err := k2.SetBinding("base", 3); err != nil {
		t.Fatal(err)
	}
	for _, s := range []FunctionSource{gsrc, src} {
		fn, err := k2.DefineFunction(s)
		if err != nil {
			t.Fatal(err)
		}
		if err := k2.SetBinding(s.Name, fn); err != nil {
			t.Fatal(err)
		}
	}
	record := mustSucceed(t, k2, "g(2)")
	if record.ReturnValue.String() != "7" {
		t.Fatalf("got %v", record.ReturnValue)
	}
	if k2.Sequence() != 1 {
		t.Fatalf("got %d", k2.Sequence())
	}

	if _, err := k2.DefineFunction(FunctionSource{Name: "h", Source: "print(1)\n"}); err == nil {
		t.Fatal("should error")
	}
}

func TestJSONBindings(t *testing.T) {
	k := New(nil, 0)
	mustSucceed(t, k, `
a = 1
s = "str"
l = [1, 2.5, None, True]
d = {"k": [1]}
f = float("nan")
def fn():
    pass
`)
	bindings := k.JSONBindings()
	if len(bindings) != 4 {
		t.Fatalf("got %v", bindings)
	}
	if bindings["a"] != int64(1) {
		t.Fatalf("got %#v", bindings["a"])
	}

	k2 := New(nil, 0)
	if err := k2.RestoreJSONBindings(bindings); err != nil {
		t.Fatal(err)
	}
	record := mustSucceed(t, k2, "a + len(l) + len(d['k'])")
	if record.ReturnValue.String() != "6" {
		t.Fatalf("got %v", record.ReturnValue)
	}
}

var propertyFragments = []string{
	"x = 1",
	"x = x + 1",
	"1/0",
	"x = (",
	"print(x)",
	"undefined_name",
	"def f():\n    return x",
	"f()",
	"fail('no')",
}

func TestSequenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)
	properties.Property("sequence equals number of executions", prop.ForAll(
		func(picks []int) bool {
			k := New(nil, 0)
			for i, pick := range picks {
				record := k.Execute(propertyFragments[pick])
				if record.Sequence != i+1 {
					return false
				}
			}
			return k.Sequence() == len(picks) &&
				len(k.History()) == len(picks)
		},
		gen.SliceOf(gen.IntRange(0, len(propertyFragments)-1)),
	))
	properties.Property("failed fragments keep prior bindings", prop.ForAll(
		func(n int) bool {
			k := New(nil, 0)
			if err := k.SetBinding("kept", n); err != nil {
				return false
			}
			record := k.Execute("other = kept\nkept // 0")
			v, ok := k.Binding("kept")
			return !record.Success && ok && v.String() == starlark.MakeInt(n).String()
		},
		gen.Int(),
	))
	properties.TestingRun(t)
}
