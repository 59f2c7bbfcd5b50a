package sessions

import (
	"errors"

	"github.com/reusee/tainb/kernels"
	"go.starlark.net/starlark"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported value")
	ErrCyclic      = errors.New("cyclic value")
)

// Env is the kernel side a serializer needs for function bindings.
type Env interface {
	FunctionSource(fn *starlark.Function) (kernels.FunctionSource, bool)
	DefineFunction(src kernels.FunctionSource) (*starlark.Function, error)
}

// Serializer converts one binding value to and from bytes.
// Encode fails for values it cannot represent; the binding is then skipped.
type Serializer interface {
	Encode(env Env, value starlark.Value) ([]byte, error)
	Decode(env Env, data []byte) (starlark.Value, error)
}

// Kernel is the part of a kernel the store reads and restores.
type Kernel interface {
	Env
	BindingsSnapshot() starlark.StringDict
	SetBinding(name string, value any) error
	Sequence() int
	History() []kernels.HistoryEntry
	RestoreState(sequence int, history []kernels.HistoryEntry)
}

var _ Kernel = new(kernels.Kernel)
