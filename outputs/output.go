package outputs

import (
	"encoding/json"
	"fmt"
)

const (
	TypeStream          = "stream"
	TypeDisplayData     = "display_data"
	TypeEvaluatedResult = "execute_result"
	TypeDiagnostic      = "error"
)

type Channel string

const (
	Stdout Channel = "stdout"
	Stderr Channel = "stderr"
)

// Output is one record emitted while executing a fragment.
type Output interface {
	OutputType() string
}

type Stream struct {
	Name Channel `json:"name"`
	Text string  `json:"text"`
}

type DisplayData struct {
	Data MimeBundle `json:"data"`
}

type EvaluatedResult struct {
	Data           MimeBundle `json:"data"`
	ExecutionCount int        `json:"execution_count"`
}

type Diagnostic struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

var (
	_ Output = Stream{}
	_ Output = DisplayData{}
	_ Output = EvaluatedResult{}
	_ Output = Diagnostic{}
)

func (Stream) OutputType() string          { return TypeStream }
func (DisplayData) OutputType() string     { return TypeDisplayData }
func (EvaluatedResult) OutputType() string { return TypeEvaluatedResult }
func (Diagnostic) OutputType() string      { return TypeDiagnostic }

func (s Stream) MarshalJSON() ([]byte, error) {
	type plain Stream
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeStream, plain(s)})
}

func (d DisplayData) MarshalJSON() ([]byte, error) {
	type plain DisplayData
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeDisplayData, plain(d)})
}

func (r EvaluatedResult) MarshalJSON() ([]byte, error) {
	type plain EvaluatedResult
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeEvaluatedResult, plain(r)})
}

func (d Diagnostic) MarshalJSON() ([]byte, error) {
	type plain Diagnostic
	if d.Traceback == nil {
		d.Traceback = []string{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeDiagnostic, plain(d)})
}

// List is an ordered sequence of outputs with a tagged JSON form.
type List []Output

func (l *List) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	ret := make(List, 0, len(raws))
	for _, raw := range raws {
		output, err := Unmarshal(raw)
		if err != nil {
			return err
		}
		ret = append(ret, output)
	}
	*l = ret
	return nil
}

// Unmarshal decodes one tagged output.
func Unmarshal(data []byte) (Output, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case TypeStream:
		var s Stream
		err := json.Unmarshal(data, &s)
		return s, err
	case TypeDisplayData:
		var d DisplayData
		err := json.Unmarshal(data, &d)
		return d, err
	case TypeEvaluatedResult:
		var r EvaluatedResult
		err := json.Unmarshal(data, &r)
		return r, err
	case TypeDiagnostic:
		var d Diagnostic
		err := json.Unmarshal(data, &d)
		return d, err
	}
	return nil, fmt.Errorf("unknown output type: %q", head.Type)
}
