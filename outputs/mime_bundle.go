package outputs

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	MIMEPlain    = "text/plain"
	MIMEHTML     = "text/html"
	MIMEMarkdown = "text/markdown"
	MIMEJSON     = "application/json"
	MIMELatex    = "text/latex"
	MIMESVG      = "image/svg+xml"
	MIMEPNG      = "image/png"
)

// MimeBundle maps MIME types to representations, keeping insertion order.
type MimeBundle struct {
	m *orderedmap.OrderedMap[string, any]
}

func NewMimeBundle() MimeBundle {
	return MimeBundle{
		m: orderedmap.New[string, any](),
	}
}

func (b *MimeBundle) Set(mimeType string, value any) {
	if b.m == nil {
		b.m = orderedmap.New[string, any]()
	}
	b.m.Set(mimeType, value)
}

func (b MimeBundle) Get(mimeType string) (any, bool) {
	if b.m == nil {
		return nil, false
	}
	return b.m.Get(mimeType)
}

// Text returns the representation under mimeType if it is a string.
func (b MimeBundle) Text(mimeType string) string {
	v, ok := b.Get(mimeType)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (b MimeBundle) Plain() string {
	return b.Text(MIMEPlain)
}

func (b MimeBundle) Len() int {
	if b.m == nil {
		return 0
	}
	return b.m.Len()
}

func (b MimeBundle) Keys() []string {
	if b.m == nil {
		return nil
	}
	keys := make([]string, 0, b.m.Len())
	for pair := b.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (b MimeBundle) MarshalJSON() ([]byte, error) {
	if b.m == nil {
		return []byte("{}"), nil
	}
	return b.m.MarshalJSON()
}

func (b *MimeBundle) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	b.m = m
	return nil
}
