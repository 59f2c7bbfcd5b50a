package cmds

import (
	"strings"
	"testing"
)

func TestUsage(t *testing.T) {
	executor := NewExecutor()
	executor.Define("foo", Sub(map[string]*Command{
		"bar": Func(func() {
		}).Desc("BAR"),
		"baz": Sub(map[string]*Command{
			"qux": Func(func() {}).Desc("QUX"),
		}).Desc("BAZ"),
	}).Desc("FOO"))

	buf := new(strings.Builder)
	executor.WriteUsage(buf)
	usage := buf.String()
	for _, want := range []string{
		"foo\tFOO",
		"  bar\tBAR",
		"  baz\tBAZ",
		"    qux\tQUX",
		"-h (help, -help, --help)\tprint this usage",
	} {
		if !strings.Contains(usage, want) {
			t.Fatalf("got %s", usage)
		}
	}
	if strings.Count(usage, "print this usage") != 1 {
		t.Fatalf("got %s", usage)
	}
}
