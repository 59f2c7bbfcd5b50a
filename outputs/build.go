package outputs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type HTMLRepr interface {
	ReprHTML() (string, error)
}

type MarkdownRepr interface {
	ReprMarkdown() (string, error)
}

type JSONRepr interface {
	ReprJSON() (map[string]any, error)
}

type LatexRepr interface {
	ReprLatex() (string, error)
}

type SVGRepr interface {
	ReprSVG() (string, error)
}

type PNGRepr interface {
	ReprPNG() ([]byte, error)
}

type hook struct {
	mimeType string
	probe    func(value any) (rich any, plain string, ok bool)
}

// priority order of rich representations
var hooks = []hook{
	{MIMEHTML, func(value any) (any, string, bool) {
		r, ok := value.(HTMLRepr)
		if !ok {
			return nil, "", false
		}
		return textHook(r.ReprHTML)
	}},
	{MIMEMarkdown, func(value any) (any, string, bool) {
		r, ok := value.(MarkdownRepr)
		if !ok {
			return nil, "", false
		}
		return textHook(r.ReprMarkdown)
	}},
	{MIMEJSON, func(value any) (any, string, bool) {
		r, ok := value.(JSONRepr)
		if !ok {
			return nil, "", false
		}
		obj, err := r.ReprJSON()
		if err != nil || len(obj) == 0 {
			return nil, "", false
		}
		text, err := json.Marshal(obj)
		if err != nil {
			return nil, "", false
		}
		return obj, string(text), true
	}},
	{MIMELatex, func(value any) (any, string, bool) {
		r, ok := value.(LatexRepr)
		if !ok {
			return nil, "", false
		}
		return textHook(r.ReprLatex)
	}},
	{MIMESVG, func(value any) (any, string, bool) {
		r, ok := value.(SVGRepr)
		if !ok {
			return nil, "", false
		}
		return textHook(r.ReprSVG)
	}},
	{MIMEPNG, func(value any) (any, string, bool) {
		r, ok := value.(PNGRepr)
		if !ok {
			return nil, "", false
		}
		data, err := r.ReprPNG()
		if err != nil || len(data) == 0 {
			return nil, "", false
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		return encoded, encoded, true
	}},
}

func textHook(fn func() (string, error)) (any, string, bool) {
	s, err := fn()
	if err != nil || s == "" {
		return nil, "", false
	}
	return s, s, true
}

// BuildMimeBundle collects the rich representations value opts into.
// The first rich representation found also serves as text/plain.
func BuildMimeBundle(value any) MimeBundle {
	type entry struct {
		mimeType string
		rich     any
	}
	var entries []entry
	var plain string
	var hasRich bool

	for _, h := range hooks {
		rich, text, ok := safeProbe(h, value)
		if !ok {
			continue
		}
		entries = append(entries, entry{h.mimeType, rich})
		if !hasRich {
			plain = text
			hasRich = true
		}
	}

	if !hasRich {
		plain = plainText(value)
	}

	bundle := NewMimeBundle()
	bundle.Set(MIMEPlain, plain)
	for _, e := range entries {
		bundle.Set(e.mimeType, e.rich)
	}
	return bundle
}

func safeProbe(h hook, value any) (rich any, text string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			rich, text, ok = nil, "", false
		}
	}()
	return h.probe(value)
}

func plainText(value any) (ret string) {
	defer func() {
		if p := recover(); p != nil {
			ret = fmt.Sprintf("<%T>", value)
		}
	}()
	if s, ok := value.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(value)
}
