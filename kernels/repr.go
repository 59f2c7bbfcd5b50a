package kernels

import (
	"errors"
	"fmt"

	"github.com/reusee/tainb/outputs"
	"go.starlark.net/starlark"
)

var errNoRepr = errors.New("no representation")

// guestValue adapts a guest value carrying _repr_*_ attributes to the output hooks.
type guestValue struct {
	thread *starlark.Thread
	value  starlark.Value
}

var (
	_ outputs.HTMLRepr     = guestValue{}
	_ outputs.MarkdownRepr = guestValue{}
	_ outputs.JSONRepr     = guestValue{}
	_ outputs.LatexRepr    = guestValue{}
	_ outputs.SVGRepr      = guestValue{}
	_ outputs.PNGRepr      = guestValue{}
)

// displayable returns the value BuildMimeBundle should inspect for v.
func displayable(thread *starlark.Thread, v starlark.Value) any {
	switch v.(type) {
	case *Rich:
		return v
	case starlark.HasAttrs:
		return guestValue{
			thread: thread,
			value:  v,
		}
	}
	return v
}

func (g guestValue) String() string {
	return g.value.String()
}

func (g guestValue) call(attr string) (starlark.Value, error) {
	hasAttrs, ok := g.value.(starlark.HasAttrs)
	if !ok {
		return nil, errNoRepr
	}
	method, err := hasAttrs.Attr(attr)
	if err != nil || method == nil {
		return nil, errNoRepr
	}
	callable, ok := method.(starlark.Callable)
	if !ok {
		return nil, errNoRepr
	}
	return starlark.Call(g.thread, callable, nil, nil)
}

func (g guestValue) text(attr string) (string, error) {
	ret, err := g.call(attr)
	if err != nil {
		return "", err
	}
	s, ok := ret.(starlark.String)
	if !ok {
		return "", fmt.Errorf("%s returned %s, want string", attr, ret.Type())
	}
	return string(s), nil
}

func (g guestValue) ReprHTML() (string, error)     { return g.text("_repr_html_") }
func (g guestValue) ReprMarkdown() (string, error) { return g.text("_repr_markdown_") }
func (g guestValue) ReprLatex() (string, error)    { return g.text("_repr_latex_") }
func (g guestValue) ReprSVG() (string, error)      { return g.text("_repr_svg_") }

func (g guestValue) ReprJSON() (map[string]any, error) {
	ret, err := g.call("_repr_json_")
	if err != nil {
		return nil, err
	}
	dict, ok := ret.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("_repr_json_ returned %s, want dict", ret.Type())
	}
	obj, ok := FromStarlark(dict)
	if !ok {
		return nil, fmt.Errorf("_repr_json_ returned a dict that is not JSON-safe")
	}
	return obj.(map[string]any), nil
}

func (g guestValue) ReprPNG() ([]byte, error) {
	ret, err := g.call("_repr_png_")
	if err != nil {
		return nil, err
	}
	data, ok := ret.(starlark.Bytes)
	if !ok {
		return nil, fmt.Errorf("_repr_png_ returned %s, want bytes", ret.Type())
	}
	return []byte(data), nil
}
