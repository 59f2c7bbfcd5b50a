package kernels

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// prior exposes the live namespace as attributes.
type prior struct {
	globals starlark.StringDict
}

var _ starlark.HasAttrs = prior{}

func (p prior) String() string        { return "<prior>" }
func (p prior) Type() string          { return "prior" }
func (p prior) Freeze()               {}
func (p prior) Truth() starlark.Bool  { return starlark.True }
func (p prior) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: prior") }

func (p prior) Attr(name string) (starlark.Value, error) {
	return p.globals[name], nil
}

func (p prior) AttrNames() []string {
	names := make([]string, 0, len(p.globals))
	for name := range p.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
