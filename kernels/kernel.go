package kernels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/reusee/tainb/outputs"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const DefaultMaxHistory = 1000

// Kernel owns one persistent Starlark execution context.
// It is not safe for concurrent use.
type Kernel struct {
	logger     *slog.Logger
	maxHistory int

	globals  starlark.StringDict
	sources  map[*starlark.Function]FunctionSource
	sequence int
	history  []HistoryEntry
	chunks   int

	stdout   io.Writer
	stderr   io.Writer
	displays []outputs.DisplayData
}

func New(logger *slog.Logger, maxHistory int) *Kernel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	k := &Kernel{
		logger:     logger,
		maxHistory: maxHistory,
		globals:    make(starlark.StringDict),
		sources:    make(map[*starlark.Function]FunctionSource),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	k.installSentinels()
	return k
}

func (k *Kernel) installSentinels() {
	k.globals[notebookName] = notebookModule
	k.globals[priorName] = prior{globals: k.globals}
}

// IsReserved reports whether name is hidden from user bindings.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, "_")
}

func (k *Kernel) Execute(fragment string) *ExecutionRecord {
	return k.ExecuteContext(context.Background(), fragment)
}

// ExecuteContext runs fragment, cancelling the guest computation when ctx is done.
func (k *Kernel) ExecuteContext(ctx context.Context, fragment string) *ExecutionRecord {
	k.sequence++
	k.chunks++
	record := &ExecutionRecord{
		Sequence: k.sequence,
		Success:  true,
	}
	filename := fmt.Sprintf("<cell-%d>", k.chunks)

	var stdout, stderr strings.Builder
	var bundle *outputs.MimeBundle
	var displays []outputs.DisplayData
	var value starlark.Value
	var err error
	func() {
		restore := k.redirect(&stdout, &stderr)
		defer restore()
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p}
			}
		}()
		var thread *starlark.Thread
		value, thread, err = k.run(ctx, filename, fragment)
		if err == nil && value != nil && value != starlark.None {
			b := outputs.BuildMimeBundle(displayable(thread, value))
			bundle = &b
		}
		displays = k.displays
	}()

	if stdout.Len() > 0 {
		record.Outputs = append(record.Outputs, outputs.Stream{
			Name: outputs.Stdout,
			Text: stdout.String(),
		})
	}
	if stderr.Len() > 0 {
		record.Outputs = append(record.Outputs, outputs.Stream{
			Name: outputs.Stderr,
			Text: stderr.String(),
		})
	}
	for _, d := range displays {
		record.Outputs = append(record.Outputs, d)
	}

	if err != nil {
		diag := diagnose(err)
		record.Success = false
		record.Error = diag.EValue
		record.Outputs = append(record.Outputs, diag)
		k.logger.DebugContext(ctx, "execution failed",
			"sequence", record.Sequence,
			"kind", diag.EName,
			"error", diag.EValue,
		)
	} else if bundle != nil {
		record.ReturnValue = value
		record.Outputs = append(record.Outputs, outputs.EvaluatedResult{
			Data:           *bundle,
			ExecutionCount: record.Sequence,
		})
	}

	k.appendHistory(HistoryEntry{
		Sequence: record.Sequence,
		Fragment: fragment,
		Record:   record,
	})

	return record
}

func (k *Kernel) redirect(stdout, stderr io.Writer) func() {
	prevStdout, prevStderr := k.stdout, k.stderr
	k.stdout, k.stderr = stdout, stderr
	k.displays = nil
	return func() {
		k.stdout, k.stderr = prevStdout, prevStderr
		k.displays = nil
	}
}

// Stdout is the writer guest print output currently goes to.
func (k *Kernel) Stdout() io.Writer {
	return k.stdout
}

func (k *Kernel) Stderr() io.Writer {
	return k.stderr
}

type cancelledError struct {
	cause error
}

func (c cancelledError) Error() string {
	return fmt.Sprintf("cancelled: %v", c.cause)
}

func (c cancelledError) Unwrap() error {
	return c.cause
}

func (c cancelledError) ErrorKind() string {
	return KindCancelled
}

func (k *Kernel) run(ctx context.Context, filename string, fragment string) (starlark.Value, *starlark.Thread, error) {
	file, err := fileOptions.Parse(filename, fragment, 0)
	if err != nil {
		var syntaxErr syntax.Error
		if errors.As(err, &syntaxErr) {
			k.notice(err)
			return nil, nil, nil
		}
		return nil, nil, err
	}

	p := prepare(file, fragment, k.globals.Has)

	prog, err := starlark.FileProgram(file, k.isPredeclared)
	if err != nil {
		if isUndefined(err) {
			return nil, nil, err
		}
		k.notice(err)
		return nil, nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, cancelledError{cause: context.Cause(ctx)}
	}

	thread := k.newThread(filename)
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			thread.Cancel(context.Cause(ctx).Error())
		})
		defer stop()
	}

	globals, err := prog.Init(thread, k.globals)
	k.absorb(filename, p, globals)
	if err != nil {
		return nil, thread, err
	}
	if !p.hasResult {
		return nil, thread, nil
	}
	return globals[resultName], thread, nil
}

// isPredeclared resolves every name that is not universal against the live namespace,
// so functions may refer to names bound by later fragments.
func (k *Kernel) isPredeclared(name string) bool {
	return k.globals.Has(name) || !starlark.Universe.Has(name)
}

func (k *Kernel) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(k.stdout, msg)
		},
		Load: load,
	}
	thread.SetLocal(kernelKey, k)
	return thread
}

func (k *Kernel) notice(err error) {
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		for _, e := range resolveErrs {
			fmt.Fprintln(k.stderr, e)
		}
		return
	}
	fmt.Fprintln(k.stderr, err)
}

// absorb copies the bindings of one fragment into the live namespace.
func (k *Kernel) absorb(filename string, p *prepared, globals starlark.StringDict) {
	for name, value := range globals {
		if name == resultName {
			continue
		}
		k.globals[name] = value
		k.register(filename, p, value)
	}
}

func (k *Kernel) register(filename string, p *prepared, value starlark.Value) {
	fn, ok := value.(*starlark.Function)
	if !ok {
		return
	}
	pos := fn.Position()
	if pos.Filename() != filename {
		return
	}
	if src, ok := p.sources[keyOf(pos)]; ok {
		k.sources[fn] = src
	}
}

func (k *Kernel) appendHistory(entry HistoryEntry) {
	k.history = append(k.history, entry)
	if over := len(k.history) - k.maxHistory; over > 0 {
		k.history = append(k.history[:0:0], k.history[over:]...)
	}
}

func (k *Kernel) Binding(name string) (starlark.Value, bool) {
	v, ok := k.globals[name]
	return v, ok
}

// SetBinding binds name to value, converting Go values to Starlark.
func (k *Kernel) SetBinding(name string, value any) error {
	if name == notebookName || name == priorName {
		return fmt.Errorf("%s is reserved", name)
	}
	v, err := ToStarlark(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	k.globals[name] = v
	return nil
}

func (k *Kernel) DeleteBinding(name string) {
	if name == notebookName || name == priorName {
		return
	}
	delete(k.globals, name)
}

// UserBindings returns the sorted names of user-visible bindings.
func (k *Kernel) UserBindings() []string {
	var names []string
	for name := range k.globals {
		if IsReserved(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BindingsSnapshot returns a copy of the user-visible bindings.
func (k *Kernel) BindingsSnapshot() starlark.StringDict {
	ret := make(starlark.StringDict, len(k.globals))
	for name, value := range k.globals {
		if IsReserved(name) {
			continue
		}
		ret[name] = value
	}
	return ret
}

// Reset clears bindings, sequence and history, then reinstalls the sentinels.
func (k *Kernel) Reset() {
	clear(k.globals)
	clear(k.sources)
	k.sequence = 0
	k.history = nil
	k.installSentinels()
	k.logger.Info("kernel reset")
}

func (k *Kernel) Sequence() int {
	return k.sequence
}

// History returns a copy of the execution history, oldest first.
func (k *Kernel) History() []HistoryEntry {
	ret := make([]HistoryEntry, len(k.history))
	copy(ret, k.history)
	return ret
}

// RestoreState replaces the sequence counter and the history.
func (k *Kernel) RestoreState(sequence int, history []HistoryEntry) {
	k.sequence = sequence
	k.history = nil
	for _, entry := range history {
		k.appendHistory(entry)
	}
}

// FunctionSource returns the defining text of a top-level guest function.
func (k *Kernel) FunctionSource(fn *starlark.Function) (FunctionSource, bool) {
	src, ok := k.sources[fn]
	return src, ok
}

// DefineFunction executes the defining text of a function and returns the function,
// without binding it or touching the sequence and history.
func (k *Kernel) DefineFunction(src FunctionSource) (*starlark.Function, error) {
	k.chunks++
	filename := fmt.Sprintf("<define-%d>", k.chunks)
	file, err := fileOptions.Parse(filename, src.Source, 0)
	if err != nil {
		return nil, err
	}
	for _, stmt := range file.Stmts {
		switch stmt.(type) {
		case *syntax.DefStmt, *syntax.AssignStmt:
		default:
			return nil, fmt.Errorf("%s: not a function definition", src.Name)
		}
	}
	p := prepare(file, src.Source, k.globals.Has)
	prog, err := starlark.FileProgram(file, k.isPredeclared)
	if err != nil {
		return nil, err
	}
	globals, err := prog.Init(k.newThread(filename), k.globals)
	if err != nil {
		return nil, err
	}
	fn, ok := globals[src.Name].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%s: source does not define a function", src.Name)
	}
	k.register(filename, p, fn)
	return fn, nil
}

// JSONBindings returns the user bindings that have a JSON form.
func (k *Kernel) JSONBindings() map[string]any {
	ret := make(map[string]any)
	for name, value := range k.globals {
		if IsReserved(name) {
			continue
		}
		if v, ok := FromStarlark(value); ok {
			ret[name] = v
		}
	}
	return ret
}

// RestoreJSONBindings merges JSON-decoded values into the bindings.
func (k *Kernel) RestoreJSONBindings(bindings map[string]any) error {
	var errs []error
	for name, value := range bindings {
		if err := k.SetBinding(name, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
