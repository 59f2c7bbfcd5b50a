package kernels

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reusee/tainb/outputs"
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const (
	notebookName = "__notebook__"
	kernelKey    = "tainb.kernel"
)

var notebookModule = &starlarkstruct.Module{
	Name: "notebook",
	Members: starlark.StringDict{
		"display":  starlark.NewBuiltin("display", display),
		"eprint":   starlark.NewBuiltin("eprint", eprint),
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"HTML":     htmlConstructor,
		"Markdown": markdownConstructor,
		"JSON":     jsonConstructor,
		"Latex":    latexConstructor,
		"SVG":      svgConstructor,
		"PNG":      pngConstructor,
	},
}

var libraries = map[string]*starlarkstruct.Module{
	"notebook": notebookModule,
	"json":     json.Module,
	"math":     math.Module,
	"time":     time.Module,
}

func kernelOf(thread *starlark.Thread) (*Kernel, error) {
	k, ok := thread.Local(kernelKey).(*Kernel)
	if !ok {
		return nil, fmt.Errorf("not running in a kernel")
	}
	return k, nil
}

func display(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	k, err := kernelOf(thread)
	if err != nil {
		return nil, err
	}
	for _, arg := range args {
		k.displays = append(k.displays, outputs.DisplayData{
			Data: outputs.BuildMimeBundle(displayable(thread, arg)),
		})
	}
	return starlark.None, nil
}

func eprint(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep := " "
	if err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "sep?", &sep); err != nil {
		return nil, err
	}
	k, err := kernelOf(thread)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if s, ok := arg.(starlark.String); ok {
			parts = append(parts, string(s))
		} else {
			parts = append(parts, arg.String())
		}
	}
	if _, err := fmt.Fprintln(k.stderr, strings.Join(parts, sep)); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

type loadError struct {
	module string
}

func (l loadError) Error() string {
	return fmt.Sprintf("no such module: %s", l.module)
}

func (l loadError) ErrorKind() string {
	return KindLoad
}

func load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	lib, ok := libraries[module]
	if !ok {
		return nil, loadError{module: module}
	}
	ret := make(starlark.StringDict, len(lib.Members)+1)
	for name, value := range lib.Members {
		ret[name] = value
	}
	ret[module] = lib
	return ret, nil
}

// qualifiedNames maps builtins and library modules to stable names.
var qualifiedNames, qualifiedValues = func() (map[starlark.Value]string, map[string]starlark.Value) {
	names := make(map[starlark.Value]string)
	values := make(map[string]starlark.Value)
	add := func(name string, value starlark.Value) {
		switch value.(type) {
		case *starlark.Builtin, *starlarkstruct.Module:
		default:
			return
		}
		if _, ok := names[value]; !ok {
			names[value] = name
		}
		values[name] = value
	}

	universe := make([]string, 0, len(starlark.Universe))
	for name := range starlark.Universe {
		universe = append(universe, name)
	}
	sort.Strings(universe)
	for _, name := range universe {
		add(name, starlark.Universe[name])
	}

	modules := make([]string, 0, len(libraries))
	for name := range libraries {
		modules = append(modules, name)
	}
	sort.Strings(modules)
	for _, module := range modules {
		lib := libraries[module]
		add(module, lib)
		for member, value := range lib.Members {
			add(module+"."+member, value)
		}
	}
	return names, values
}()

// QualifiedName returns the stable name of a builtin function or library module.
func QualifiedName(v starlark.Value) (string, bool) {
	switch v.(type) {
	case *starlark.Builtin, *starlarkstruct.Module:
	default:
		return "", false
	}
	name, ok := qualifiedNames[v]
	return name, ok
}

// ResolveQualified is the inverse of QualifiedName.
func ResolveQualified(name string) (starlark.Value, bool) {
	v, ok := qualifiedValues[name]
	return v, ok
}
