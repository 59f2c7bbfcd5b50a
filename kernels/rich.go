package kernels

import (
	"fmt"
	"hash/fnv"

	"github.com/reusee/tainb/outputs"
	"go.starlark.net/starlark"
)

// Rich is an immutable guest value carrying one explicit representation.
type Rich struct {
	MIME   string
	Text   string
	Object map[string]any
	Data   []byte
}

var (
	_ starlark.Value        = new(Rich)
	_ outputs.HTMLRepr      = new(Rich)
	_ outputs.MarkdownRepr  = new(Rich)
	_ outputs.JSONRepr      = new(Rich)
	_ outputs.LatexRepr     = new(Rich)
	_ outputs.SVGRepr       = new(Rich)
	_ outputs.PNGRepr       = new(Rich)
)

func (r *Rich) String() string {
	return fmt.Sprintf("<display %s>", r.MIME)
}

func (r *Rich) Type() string {
	return "display"
}

func (r *Rich) Freeze() {}

func (r *Rich) Truth() starlark.Bool {
	return starlark.True
}

func (r *Rich) Hash() (uint32, error) {
	h := fnv.New32a()
	h.Write([]byte(r.MIME))
	h.Write([]byte(r.Text))
	h.Write(r.Data)
	return h.Sum32(), nil
}

func (r *Rich) text(mime string) (string, error) {
	if r.MIME != mime {
		return "", nil
	}
	return r.Text, nil
}

func (r *Rich) ReprHTML() (string, error)     { return r.text(outputs.MIMEHTML) }
func (r *Rich) ReprMarkdown() (string, error) { return r.text(outputs.MIMEMarkdown) }
func (r *Rich) ReprLatex() (string, error)    { return r.text(outputs.MIMELatex) }
func (r *Rich) ReprSVG() (string, error)      { return r.text(outputs.MIMESVG) }

func (r *Rich) ReprJSON() (map[string]any, error) {
	if r.MIME != outputs.MIMEJSON {
		return nil, nil
	}
	return r.Object, nil
}

func (r *Rich) ReprPNG() ([]byte, error) {
	if r.MIME != outputs.MIMEPNG {
		return nil, nil
	}
	return r.Data, nil
}

func textConstructor(name string, mime string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		return &Rich{
			MIME: mime,
			Text: text,
		}, nil
	})
}

var (
	htmlConstructor     = textConstructor("HTML", outputs.MIMEHTML)
	markdownConstructor = textConstructor("Markdown", outputs.MIMEMarkdown)
	latexConstructor    = textConstructor("Latex", outputs.MIMELatex)
	svgConstructor      = textConstructor("SVG", outputs.MIMESVG)

	jsonConstructor = starlark.NewBuiltin("JSON", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var dict *starlark.Dict
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dict); err != nil {
			return nil, err
		}
		obj, ok := FromStarlark(dict)
		if !ok {
			return nil, fmt.Errorf("%s: dict is not JSON-safe", fn.Name())
		}
		return &Rich{
			MIME:   outputs.MIMEJSON,
			Object: obj.(map[string]any),
		}, nil
	})

	pngConstructor = starlark.NewBuiltin("PNG", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var data starlark.Bytes
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &data); err != nil {
			return nil, err
		}
		return &Rich{
			MIME: outputs.MIMEPNG,
			Data: []byte(data),
		}, nil
	})
)
