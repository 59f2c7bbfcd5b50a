package kernels

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/reusee/tainb/outputs"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
)

const (
	KindZeroDivision = "ZeroDivisionError"
	KindName         = "NameError"
	KindAttribute    = "AttributeError"
	KindType         = "TypeError"
	KindIndex        = "IndexError"
	KindKey          = "KeyError"
	KindValue        = "ValueError"
	KindFailure      = "Failure"
	KindLoad         = "LoadError"
	KindCancelled    = "Cancelled"
	KindPanic        = "Panic"
	KindEval         = "EvalError"
)

// Go errors raised by host functions may name their own kind.
type kindedError interface {
	ErrorKind() string
}

type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func (p *PanicError) ErrorKind() string {
	return KindPanic
}

var messageKinds = []struct {
	pattern string
	kind    string
}{
	{"Starlark computation cancelled", KindCancelled},
	{"division by zero", KindZeroDivision},
	{"modulo by zero", KindZeroDivision},
	{"referenced before assignment", KindName},
	{"is uninitialized", KindName},
	{"undefined:", KindName},
	{"is not defined", KindName},
	{"cannot load", KindLoad},
	{"not in dict", KindKey},
	{"out of range", KindIndex},
	{"has no .", KindAttribute},
	{"unknown binary op", KindType},
	{"unknown unary op", KindType},
	{"invalid call of non-function", KindType},
	{"not iterable", KindType},
	{"unhashable", KindType},
	{"not supported", KindType},
	{", want ", KindType},
	{"missing argument", KindType},
	{"unexpected keyword argument", KindType},
	{"invalid literal", KindValue},
	{"invalid", KindValue},
}

func errorKind(err error) string {
	var kinded kindedError
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}
	msg := errorMessage(err)
	if strings.HasPrefix(msg, "fail: ") {
		return KindFailure
	}
	for _, mk := range messageKinds {
		if strings.Contains(msg, mk.pattern) {
			return mk.kind
		}
	}
	return KindEval
}

var uninitialized = regexp.MustCompile(`predeclared variable (\S+) is uninitialized`)

func errorMessage(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		if m := uninitialized.FindStringSubmatch(evalErr.Msg); m != nil {
			return fmt.Sprintf("name %q is not defined", m[1])
		}
		return evalErr.Msg
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		msgs := make([]string, 0, len(resolveErrs))
		for _, e := range resolveErrs {
			msgs = append(msgs, e.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}

func traceback(err error) []string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		ret := make([]string, 0, len(evalErr.CallStack))
		for _, frame := range evalErr.CallStack {
			ret = append(ret, fmt.Sprintf("%s: in %s", frame.Pos, frame.Name))
		}
		return ret
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		ret := make([]string, 0, len(resolveErrs))
		for _, e := range resolveErrs {
			ret = append(ret, fmt.Sprintf("%s: %s", e.Pos, e.Msg))
		}
		return ret
	}
	return []string{}
}

func diagnose(err error) outputs.Diagnostic {
	return outputs.Diagnostic{
		EName:     errorKind(err),
		EValue:    errorMessage(err),
		Traceback: traceback(err),
	}
}

// isUndefined reports whether a resolve failure is only about unknown names.
func isUndefined(err error) bool {
	var resolveErrs resolve.ErrorList
	if !errors.As(err, &resolveErrs) {
		return false
	}
	for _, e := range resolveErrs {
		if strings.HasPrefix(e.Msg, "undefined:") {
			return true
		}
	}
	return false
}
